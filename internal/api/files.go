package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// SetStar stores the starred flag of one file.
func (c *Client) SetStar(ctx context.Context, id string, starred bool) error {
	resp, err := c.do(ctx, request{
		service: ServiceFile,
		op:      "star file",
		method:  "POST",
		path:    "/api/star/" + url.PathEscape(id),
		body:    starred,
		kind:    callWrite,
	})
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// MoveToRecycleBin moves the files to the trash in one call.
func (c *Client) MoveToRecycleBin(ctx context.Context, ids []string) error {
	return c.batch(ctx, "move to recycle bin", "DELETE", "/api/MoveToRecycleBin", ids)
}

// RestoreFiles brings files back from the trash.
func (c *Client) RestoreFiles(ctx context.Context, ids []string) error {
	return c.batch(ctx, "restore files", "POST", "/api/RestoreFiles", ids)
}

// PermanentlyDeleteFiles removes files for good.
func (c *Client) PermanentlyDeleteFiles(ctx context.Context, ids []string) error {
	return c.batch(ctx, "delete files", "DELETE", "/api/PermanentlyDeleteFiles", ids)
}

func (c *Client) batch(ctx context.Context, op, method, path string, ids []string) error {
	resp, err := c.do(ctx, request{
		service: ServiceFile,
		op:      op,
		method:  method,
		path:    path,
		body:    ids,
		kind:    callWrite,
	})
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// DownloadFiles streams the archive of the given files into w and returns
// the bytes written. The response is not buffered in memory. sizeHint, when
// set, receives the announced length (-1 when unknown) before streaming.
func (c *Client) DownloadFiles(ctx context.Context, ids []string, w io.Writer, sizeHint func(int64)) (int64, error) {
	resp, err := c.do(ctx, request{
		service: ServiceFile,
		op:      "download files",
		method:  "POST",
		path:    "/api/DownloadFiles",
		body:    ids,
		kind:    callTransfer,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if sizeHint != nil {
		size := resp.ContentLength
		if size <= 0 {
			size = -1
		}
		sizeHint(size)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download files: stream interrupted after %d bytes: %w", n, err)
	}
	return n, nil
}
