package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/models"
)

// ProcessFile uploads one file to the processing service as a multipart
// form and returns its verdict. The body is streamed from r through a pipe,
// so a progress-wrapped reader reports bytes as they leave.
//
// 200 and 202 (unsafe file) are both decoded. The ban business error comes
// back as an error matching ErrAccountSuspended.
func (c *Client) ProcessFile(ctx context.Context, name string, r io.Reader) (*models.ProcessedDocument, error) {
	const endpoint = "POST /api/genai/process"

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(constants.UploadFormField, filepath.Base(name))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("read %s: %w", name, err))
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	resp, err := c.do(ctx, request{
		service:     ServiceProcess,
		op:          "process " + filepath.Base(name),
		method:      "POST",
		path:        "/api/genai/process",
		raw:         pr,
		contentType: mw.FormDataContentType(),
		kind:        callTransfer,
	})
	if err != nil {
		return nil, err
	}

	var doc models.ProcessedDocument
	if err := decodeJSON(resp, endpoint, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, &DecodeError{Endpoint: endpoint, Err: err}
	}
	return &doc, nil
}
