package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/graph"
)

func newTestEngine(api DriveAPI) *Engine {
	e := NewEngine(api, newTestExecutor(), nil)
	e.sleepFunc = noSleep
	e.nowFunc = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	e.newRunID = func() string { return "test-run" }

	return e
}

func runOptions(root string) Options {
	return Options{Remote: testRemote(), SyncRoot: root, Delay: 10 * time.Millisecond}
}

func TestRun_EndToEnd(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one", "a/b/two.txt": "two"})
	drive := newFakeDrive()

	report, err := newTestEngine(drive).Run(context.Background(), runOptions(root))
	require.NoError(t, err)

	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, 2, report.UploadedCount)
	assert.Equal(t, []string{"a/b/two.txt", "a/one.txt"}, report.UploadedPaths)
	assert.Equal(t, 2, report.FoldersCreated)
	assert.Zero(t, report.FailedCount)
	assert.True(t, report.Succeeded())

	a := drive.lookup("a")
	b := drive.lookup("a/b")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, testRootID, a.parentID)
	assert.Equal(t, a.id, b.parentID)
	assert.Equal(t, a.id, drive.lookup("a/one.txt").parentID)
	assert.Equal(t, "two", string(drive.lookup("a/b/two.txt").content))
}

func TestRun_PreExistingFolderIsReused(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one", "a/b/two.txt": "two"})
	drive := newFakeDrive()
	existing := drive.mkdirAll("a")

	report, err := newTestEngine(drive).Run(context.Background(), runOptions(root))
	require.NoError(t, err)

	assert.Equal(t, 1, report.FoldersReused)
	assert.Equal(t, 1, report.FoldersCreated)
	assert.Equal(t, existing, drive.lookup("a/b").parentID)
	assert.Equal(t, 2, report.UploadedCount)
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one", "a/b/two.txt": "two", "top.txt": "t"})
	drive := newFakeDrive()
	engine := newTestEngine(drive)

	_, err := engine.Run(context.Background(), runOptions(root))
	require.NoError(t, err)

	nodesAfterFirst := len(drive.nodes)

	report, err := engine.Run(context.Background(), runOptions(root))
	require.NoError(t, err)

	assert.Equal(t, nodesAfterFirst, len(drive.nodes), "no duplicate items")
	assert.Equal(t, 2, report.FoldersReused)
	assert.Zero(t, report.FoldersCreated)
	assert.Equal(t, 3, report.UploadedCount)
}

func TestRun_OneFileFailsPermanently(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one", "a/b/two.txt": "two", "c.txt": "c"})
	drive := newFakeDrive()
	drive.failPut["one.txt"] = statusError(http.StatusForbidden)

	report, err := newTestEngine(drive).Run(context.Background(), runOptions(root))
	require.ErrorIs(t, err, ErrFilesFailed)

	assert.Equal(t, 2, report.UploadedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, 3, report.UploadedCount+report.FailedCount)
	require.Len(t, report.FailedPaths, 1)
	assert.True(t, strings.HasSuffix(report.FailedPaths[0], "one.txt"))
	assert.Equal(t, "1 of 3 files failed to upload", report.Error)
}

func TestRun_FolderFailureAbortsBeforeUploads(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one"})
	drive := newFakeDrive()
	drive.add(testRootID, "a", false)

	report, err := newTestEngine(drive).Run(context.Background(), runOptions(root))

	var fe *FolderError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, report.FailedFolderCreations)
	assert.Zero(t, report.UploadedCount)
	assert.Empty(t, drive.putCalls)
	assert.NotEmpty(t, report.Error)
}

func TestRun_EmptySourceIsNoContent(t *testing.T) {
	report, err := newTestEngine(newFakeDrive()).Run(context.Background(), runOptions(t.TempDir()))

	var nc *NoContentError
	require.ErrorAs(t, err, &nc)
	assert.Zero(t, report.UploadedCount)
	assert.Contains(t, report.Error, "no content")
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := newTestEngine(newFakeDrive()).Run(context.Background(), Options{Delay: -time.Second})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "drive ID")
	assert.Contains(t, msg, "folder ID")
	assert.Contains(t, msg, "sync root")
	assert.Contains(t, msg, "request delay")
}

func TestPlan_ListsWithoutRemoteCalls(t *testing.T) {
	root := writeTree(t, map[string]string{"a/one.txt": "one", "b.txt": "b"})

	plan, err := NewEngine(nil, newTestExecutor(), nil).Plan(context.Background(), runOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, plan.Folders)
	assert.Equal(t, []string{"a/one.txt", "b.txt"}, plan.Files)
}

// graphServer exposes a fakeDrive over the subset of the Graph REST API the
// client uses.
func graphServer(t *testing.T, drive *fakeDrive) *httptest.Server {
	t.Helper()

	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		// /drives/{drive}/items/{rest}
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/drives/"), "/items/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}

		driveID, rest := parts[0], parts[1]

		var (
			item  *graph.Item
			items []graph.Item
			err   error
		)

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/children"):
			var body struct {
				Name string `json:"name"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			item, err = drive.CreateFolder(r.Context(), driveID, strings.TrimSuffix(rest, "/children"), body.Name)

		case r.Method == http.MethodGet && strings.HasSuffix(rest, "/children"):
			filter := r.URL.Query().Get("$filter")
			name := strings.TrimSuffix(strings.TrimPrefix(filter, "name eq '"), "'")
			name = strings.ReplaceAll(name, "''", "'")
			items, err = drive.ListChildrenByName(r.Context(), driveID, strings.TrimSuffix(rest, "/children"), name)

		case r.Method == http.MethodPut && strings.HasSuffix(rest, ":/content"):
			segs := strings.SplitN(strings.TrimSuffix(rest, ":/content"), ":/", 2)
			require.Len(t, segs, 2)
			assert.Equal(t, "replace", r.URL.Query().Get("@microsoft.graph.conflictBehavior"))
			item, err = drive.PutContent(r.Context(), driveID, segs[0], segs[1],
				r.Header.Get("Content-Type"), r.Body, r.ContentLength)

		default:
			http.NotFound(w, r)
			return
		}

		var ge *graph.GraphError
		if errors.As(err, &ge) {
			w.WriteHeader(ge.StatusCode)
			fmt.Fprintf(w, `{"error":{"code":%q}}`, ge.Message)

			return
		}

		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")

		if items != nil || item == nil {
			values := make([]map[string]any, 0, len(items))
			for _, it := range items {
				values = append(values, itemJSON(it))
			}

			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"value": values}))

			return
		}

		require.NoError(t, json.NewEncoder(w).Encode(itemJSON(*item)))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func itemJSON(it graph.Item) map[string]any {
	m := map[string]any{"id": it.ID, "name": it.Name, "size": it.Size}
	if it.IsFolder {
		m["folder"] = map[string]any{"childCount": 0}
	} else {
		m["file"] = map[string]any{"mimeType": "application/octet-stream"}
	}

	return m
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func TestRun_ThroughGraphClient(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a/one.txt":       "one",
		"a/b/two.txt":     "two",
		"it's here/x.txt": "quoted",
		"empty.txt":       "",
	})
	drive := newFakeDrive()
	drive.mkdirAll("A")
	drive.flakyPut["two.txt"] = 1

	srv := graphServer(t, drive)
	client := graph.NewClient(srv.URL, srv.Client(), staticToken("tok"), nil, "")

	report, err := newTestEngine(client).Run(context.Background(), runOptions(root))
	require.NoError(t, err)

	assert.Equal(t, 4, report.UploadedCount)
	assert.Equal(t, 1, report.FoldersReused, "a resolves to existing A")
	assert.Equal(t, 2, report.FoldersCreated)
	assert.Equal(t, "quoted", string(drive.lookup("it's here/x.txt").content))
	assert.Equal(t, drive.lookup("A").id, drive.lookup("a/b").parentID)
	assert.Empty(t, drive.lookup("empty.txt").content)
}
