package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// listChildrenPageSize is the $top value for children requests.
// 200 is the maximum allowed by the Graph API for drive item collections.
const listChildrenPageSize = 200

// Conflict behaviors understood by the Graph API.
const (
	conflictFail    = "fail"
	conflictReplace = "replace"
)

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Callers see Item, built by toItem().
type driveItemResponse struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	ETag                 string       `json:"eTag"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	ParentReference      *parentRef   `json:"parentReference"`
	File                 *fileFacet   `json:"file"`
	Folder               *folderFacet `json:"folder"`
}

type parentRef struct {
	ID      string `json:"id"`
	DriveID string `json:"driveId"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:         d.ID,
		Name:       d.Name,
		Size:       d.Size,
		ETag:       d.ETag,
		IsFolder:   d.Folder != nil,
		ChildCount: ChildCountUnknown,
	}

	if d.ParentReference != nil {
		item.DriveID = d.ParentReference.DriveID
		item.ParentID = d.ParentReference.ID
	}

	if d.Folder != nil {
		item.ChildCount = d.Folder.ChildCount
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType

		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
		}
	}

	if d.LastModifiedDateTime != "" {
		t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime)
		if err != nil {
			logger.Warn("invalid timestamp in item response",
				slog.String("item_id", d.ID),
				slog.String("raw", d.LastModifiedDateTime),
			)
		} else {
			item.ModifiedAt = t
		}
	}

	return item
}

// decodeItem reads a single driveItem body.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// CreateFolder creates a new folder under the given parent.
// Uses conflictBehavior "fail": returns a KindConflict error (409) on name
// collision instead of letting the service auto-rename.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentID, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	path := fmt.Sprintf("/drives/%s/items/%s/children", driveID, parentID)

	bodyBytes, err := json.Marshal(createFolderRequest{
		Name:             name,
		Folder:           folderFacet{},
		ConflictBehavior: conflictFail,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create folder request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, "", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}

// ListChildrenByName returns the children of parentID whose name matches
// name according to the service's own comparison rules (case-insensitive on
// OneDrive and SharePoint). Pagination is followed automatically.
func (c *Client) ListChildrenByName(ctx context.Context, driveID, parentID, name string) ([]Item, error) {
	c.logger.Info("listing children by name",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	filter := "name eq '" + strings.ReplaceAll(name, "'", "''") + "'"
	apiPath := fmt.Sprintf("/drives/%s/items/%s/children?$filter=%s&$top=%d",
		driveID, parentID, strings.ReplaceAll(url.QueryEscape(filter), "+", "%20"), listChildrenPageSize)

	var items []Item

	for page := 1; apiPath != ""; page++ {
		pageItems, next, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		apiPath = next
	}

	c.logger.Debug("listed children by name",
		slog.String("name", name),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// listChildrenPage fetches a single page of children and returns the items
// and the next page path (empty if no more pages).
func (c *Client) listChildrenPage(ctx context.Context, path string, page int) ([]Item, string, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	items := make([]Item, 0, len(lcr.Value))
	for i := range lcr.Value {
		items = append(items, lcr.Value[i].toItem(c.logger))
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(items)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		var stripErr error

		nextPath, stripErr = c.stripBaseURL(lcr.NextLink)
		if stripErr != nil {
			return nil, "", stripErr
		}
	}

	return items, nextPath, nil
}
