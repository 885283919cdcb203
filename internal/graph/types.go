package graph

import "time"

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a drive item (file or folder).
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	DriveID      string
	ParentID     string
	Size         int64
	ETag         string
	IsFolder     bool
	MimeType     string
	QuickXorHash string // base64-encoded; empty when the service did not report one
	ModifiedAt   time.Time
	ChildCount   int // ChildCountUnknown if not present
}
