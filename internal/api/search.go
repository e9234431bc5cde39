package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rescale/drivectl/internal/models"
)

// ListFiles returns the user's files, or the search hits for query when it
// is not blank.
func (c *Client) ListFiles(ctx context.Context, query string) ([]models.FileMetadata, error) {
	if q := strings.TrimSpace(query); q != "" {
		return c.listMetadata(ctx, "search files", "/api/metadata/search", url.Values{"query": {q}})
	}
	return c.listMetadata(ctx, "list files", "/api/metadata/user/search", nil)
}

// ListTrash returns the recycle bin, or the search hits inside it.
func (c *Client) ListTrash(ctx context.Context, query string) ([]models.FileMetadata, error) {
	if q := strings.TrimSpace(query); q != "" {
		return c.listMetadata(ctx, "search trash", "/api/metadata/search/trash", url.Values{"query": {q}})
	}
	return c.listMetadata(ctx, "list trash", "/api/metadata/user/trash", nil)
}

// ListStarred returns the starred files.
func (c *Client) ListStarred(ctx context.Context) ([]models.FileMetadata, error) {
	return c.listMetadata(ctx, "list starred", "/api/metadata/user/starred", nil)
}

// ListRecent returns recently processed files.
func (c *Client) ListRecent(ctx context.Context) ([]models.FileMetadata, error) {
	return c.listMetadata(ctx, "list recent", "/api/metadata/user/recent", nil)
}

// GetTagsAndCategories returns the tags and categories extracted for the user.
func (c *Client) GetTagsAndCategories(ctx context.Context) (*models.TagsAndCategories, error) {
	const endpoint = "GET /api/metadata/user/tagsAndCategories"
	resp, err := c.do(ctx, request{
		service: ServiceSearch,
		op:      "get tags and categories",
		method:  "GET",
		path:    "/api/metadata/user/tagsAndCategories",
	})
	if err != nil {
		return nil, err
	}

	var tc models.TagsAndCategories
	if err := decodeJSON(resp, endpoint, &tc); err != nil {
		return nil, err
	}
	if tc.Tags == nil {
		tc.Tags = []string{}
	}
	if tc.Categories == nil {
		tc.Categories = []string{}
	}
	return &tc, nil
}

func (c *Client) listMetadata(ctx context.Context, op, path string, query url.Values) ([]models.FileMetadata, error) {
	endpoint := "GET " + path
	resp, err := c.do(ctx, request{
		service: ServiceSearch,
		op:      op,
		method:  "GET",
		path:    path,
		query:   query,
	})
	if err != nil {
		return nil, err
	}

	var rows []models.FileMetadata
	if err := decodeArray(resp, endpoint, &rows); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, &DecodeError{Endpoint: endpoint, Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}
	return rows, nil
}
