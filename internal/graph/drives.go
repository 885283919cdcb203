package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Drive is a normalized drive resource.
type Drive struct {
	ID         string
	Name       string
	DriveType  string // "personal", "business", or "documentLibrary"
	OwnerName  string
	QuotaUsed  int64
	QuotaTotal int64
}

// driveResponse mirrors the Graph API drive JSON response.
type driveResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DriveType string      `json:"driveType"`
	Owner     *ownerFacet `json:"owner"`
	Quota     *quotaFacet `json:"quota"`
}

type ownerFacet struct {
	User struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

type quotaFacet struct {
	Used  int64 `json:"used"`
	Total int64 `json:"total"`
}

// toDrive normalizes a drive response. Owner and quota are optional: service
// accounts and some document libraries omit them.
func (d *driveResponse) toDrive() Drive {
	drive := Drive{
		ID:        d.ID,
		Name:      d.Name,
		DriveType: d.DriveType,
	}

	if d.Owner != nil {
		drive.OwnerName = d.Owner.User.DisplayName
	}

	if d.Quota != nil {
		drive.QuotaUsed = d.Quota.Used
		drive.QuotaTotal = d.Quota.Total
	}

	return drive
}

// Drive returns a drive by ID.
func (c *Client) Drive(ctx context.Context, driveID string) (*Drive, error) {
	c.logger.Debug("fetching drive", slog.String("drive_id", driveID))

	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/drives/%s", driveID), "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr driveResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	drive := dr.toDrive()

	return &drive, nil
}

// GetItem returns one item by ID.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	c.logger.Debug("fetching item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/drives/%s/items/%s", driveID, itemID), "", nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}
