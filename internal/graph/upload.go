package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// PutContent replaces (or creates) the file name inside folder parentID with
// the bytes read from r, addressing it as items/{parentID}:/{name}:/content.
// size is sent as Content-Length when non-negative; a negative size streams
// the body with chunked transfer encoding.
//
// r is consumed by the request: a failed attempt cannot be replayed with the
// same reader, so callers retrying an upload must open a fresh one.
func (c *Client) PutContent(
	ctx context.Context, driveID, parentID, name, contentType string, r io.Reader, size int64,
) (*Item, error) {
	c.logger.Info("uploading content",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.String("content_type", contentType),
		slog.Int64("size", size),
	)

	path := fmt.Sprintf("/drives/%s/items/%s:/%s:/content?@microsoft.graph.conflictBehavior=%s",
		driveID, parentID, url.PathEscape(name), conflictReplace)

	body := r
	if size == 0 {
		body = http.NoBody
	}

	resp, err := c.do(ctx, http.MethodPut, path, contentType, body, size)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "upload")
}
