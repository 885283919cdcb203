package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/graph"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

const (
	testDriveID = "drive-1"
	testRootID  = "root-1"
)

// fakeNode is one item stored by fakeDrive.
type fakeNode struct {
	id       string
	name     string
	parentID string
	isFolder bool
	content  []byte
	ctype    string
}

// fakeDrive is an in-memory drive with the service's conflict semantics:
// folder names collide case-insensitively and content PUTs replace.
type fakeDrive struct {
	nodes  map[string]*fakeNode
	nextID int

	// createCalls records "parentID/name" for every CreateFolder call.
	createCalls []string
	listCalls   int
	putCalls    map[string]int // by file name

	// failPut maps a file name to the error every PUT of it returns.
	failPut map[string]error
	// flakyPut maps a file name to the number of 503s before success.
	flakyPut map[string]int
	// extraMatches adds folders to every ListChildrenByName result.
	extraMatches []graph.Item
	// hashOverride replaces the QuickXorHash returned on upload.
	hashOverride string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		nodes: map[string]*fakeNode{
			testRootID: {id: testRootID, isFolder: true},
		},
		putCalls: make(map[string]int),
		failPut:  make(map[string]error),
		flakyPut: make(map[string]int),
	}
}

func statusError(code int) *graph.GraphError {
	return &graph.GraphError{
		StatusCode: code,
		Message:    http.StatusText(code),
		Kind:       kindForStatus(code),
		Err:        sentinelForStatus(code),
	}
}

func sentinelForStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return graph.ErrNotFound
	case http.StatusConflict:
		return graph.ErrConflict
	case http.StatusLocked:
		return graph.ErrLocked
	case http.StatusBadRequest:
		return graph.ErrBadRequest
	default:
		return graph.ErrServerError
	}
}

func kindForStatus(code int) graph.Kind {
	switch {
	case code == http.StatusConflict:
		return graph.KindConflict
	case code == http.StatusLocked:
		return graph.KindLocked
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return graph.KindTransient
	default:
		return graph.KindFatal
	}
}

func (d *fakeDrive) child(parentID, name string) *fakeNode {
	for _, n := range d.nodes {
		if n.parentID == parentID && n.id != testRootID && strings.EqualFold(n.name, name) {
			return n
		}
	}

	return nil
}

func (d *fakeDrive) add(parentID, name string, isFolder bool) *fakeNode {
	d.nextID++
	n := &fakeNode{
		id:       fmt.Sprintf("item-%d", d.nextID),
		name:     name,
		parentID: parentID,
		isFolder: isFolder,
	}
	d.nodes[n.id] = n

	return n
}

// mkdirAll creates a folder chain directly, bypassing call recording.
func (d *fakeDrive) mkdirAll(relPath string) string {
	parent := testRootID
	for _, seg := range strings.Split(relPath, "/") {
		n := d.child(parent, seg)
		if n == nil {
			n = d.add(parent, seg, true)
		}

		parent = n.id
	}

	return parent
}

// lookup resolves a slash path from the root.
func (d *fakeDrive) lookup(relPath string) *fakeNode {
	cur := d.nodes[testRootID]
	for _, seg := range strings.Split(relPath, "/") {
		cur = d.child(cur.id, seg)
		if cur == nil {
			return nil
		}
	}

	return cur
}

func (d *fakeDrive) CreateFolder(_ context.Context, driveID, parentID, name string) (*graph.Item, error) {
	d.createCalls = append(d.createCalls, parentID+"/"+name)

	parent, ok := d.nodes[parentID]
	if driveID != testDriveID || !ok || !parent.isFolder {
		return nil, statusError(http.StatusNotFound)
	}

	if d.child(parentID, name) != nil {
		return nil, statusError(http.StatusConflict)
	}

	n := d.add(parentID, name, true)

	return &graph.Item{ID: n.id, Name: n.name, ParentID: parentID, IsFolder: true}, nil
}

func (d *fakeDrive) ListChildrenByName(_ context.Context, _, parentID, name string) ([]graph.Item, error) {
	d.listCalls++

	var items []graph.Item

	for _, n := range d.nodes {
		if n.parentID == parentID && n.id != testRootID && strings.EqualFold(n.name, name) {
			items = append(items, graph.Item{ID: n.id, Name: n.name, ParentID: parentID, IsFolder: n.isFolder})
		}
	}

	return append(items, d.extraMatches...), nil
}

func (d *fakeDrive) PutContent(
	_ context.Context, _, parentID, name, contentType string, r io.Reader, size int64,
) (*graph.Item, error) {
	d.putCalls[name]++

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) != size {
		return nil, fmt.Errorf("fake: size %d does not match body length %d", size, len(data))
	}

	if err, ok := d.failPut[name]; ok {
		return nil, err
	}

	if d.flakyPut[name] > 0 {
		d.flakyPut[name]--
		return nil, statusError(http.StatusServiceUnavailable)
	}

	if _, ok := d.nodes[parentID]; !ok {
		return nil, statusError(http.StatusNotFound)
	}

	n := d.child(parentID, name)
	if n == nil {
		n = d.add(parentID, name, false)
	}

	n.content = data
	n.ctype = contentType

	return &graph.Item{ID: n.id, Name: n.name, ParentID: parentID, Size: size, QuickXorHash: d.hashOverride}, nil
}

// noSleep records nothing and never blocks.
func noSleep(context.Context, time.Duration) error { return nil }

func newTestExecutor() *retry.Executor {
	return retry.New(retry.GraphPolicy(3, time.Second), nil).WithSleep(noSleep)
}

// writeTree creates files (slash paths → content) under a temp dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	return root
}

func testRemote() RemoteLocation {
	return RemoteLocation{DriveID: testDriveID, FolderID: testRootID}
}
