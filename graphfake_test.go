package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	fakeDriveID = "drive-1"
	fakeRootID  = "root-1"
)

// fakeGraph serves the three drive endpoints a sync run uses, backed by an
// in-memory tree keyed by parent ID.
type fakeGraph struct {
	mu       sync.Mutex
	nextID   int
	children map[string]map[string]fakeItem // parent ID -> lower name -> item
	content  map[string]string              // item ID -> body
	auth     []string
}

type fakeItem struct {
	ID     string
	Name   string
	Folder bool
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	t.Helper()

	g := &fakeGraph{
		children: map[string]map[string]fakeItem{},
		content:  map[string]string{},
	}

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	return g, srv
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.auth = append(g.auth, r.Header.Get("Authorization"))

	if r.Method == http.MethodGet && r.URL.Path == "/drives/"+fakeDriveID {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": fakeDriveID, "name": "Documents", "driveType": "business"})

		return
	}

	prefix := "/drives/" + fakeDriveID + "/items/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeGraphError(w, http.StatusNotFound, "itemNotFound")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case r.Method == http.MethodPut && strings.HasSuffix(rest, ":/content"):
		parent, name, _ := strings.Cut(strings.TrimSuffix(rest, ":/content"), ":/")
		g.put(w, r, parent, name)
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/children"):
		g.create(w, r, strings.TrimSuffix(rest, "/children"))
	case r.Method == http.MethodGet && strings.HasSuffix(rest, "/children"):
		g.list(w, r, strings.TrimSuffix(rest, "/children"))
	case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
		g.get(w, rest)
	default:
		writeGraphError(w, http.StatusBadRequest, "invalidRequest")
	}
}

func (g *fakeGraph) exists(id string) bool {
	if id == fakeRootID {
		return true
	}

	for _, kids := range g.children {
		for _, it := range kids {
			if it.ID == id && it.Folder {
				return true
			}
		}
	}

	return false
}

func (g *fakeGraph) add(parent, name string, folder bool) fakeItem {
	if g.children[parent] == nil {
		g.children[parent] = map[string]fakeItem{}
	}

	key := strings.ToLower(name)
	if it, ok := g.children[parent][key]; ok {
		return it
	}

	g.nextID++
	it := fakeItem{ID: fmt.Sprintf("id-%d", g.nextID), Name: name, Folder: folder}
	g.children[parent][key] = it

	return it
}

func (g *fakeGraph) create(w http.ResponseWriter, r *http.Request, parent string) {
	if !g.exists(parent) {
		writeGraphError(w, http.StatusNotFound, "itemNotFound")
		return
	}

	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGraphError(w, http.StatusBadRequest, "invalidRequest")
		return
	}

	if _, taken := g.children[parent][strings.ToLower(req.Name)]; taken {
		writeGraphError(w, http.StatusConflict, "nameAlreadyExists")
		return
	}

	writeGraphItem(w, http.StatusCreated, g.add(parent, req.Name, true))
}

func (g *fakeGraph) list(w http.ResponseWriter, r *http.Request, parent string) {
	filter := r.URL.Query().Get("$filter")
	name := strings.TrimSuffix(strings.TrimPrefix(filter, "name eq '"), "'")
	name = strings.ReplaceAll(name, "''", "'")

	value := []map[string]any{}
	if it, ok := g.children[parent][strings.ToLower(name)]; ok {
		value = append(value, itemJSON(it))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
}

func (g *fakeGraph) get(w http.ResponseWriter, id string) {
	if id == fakeRootID {
		writeGraphItem(w, http.StatusOK, fakeItem{ID: fakeRootID, Name: "root", Folder: true})
		return
	}

	for _, kids := range g.children {
		for _, it := range kids {
			if it.ID == id {
				writeGraphItem(w, http.StatusOK, it)
				return
			}
		}
	}

	writeGraphError(w, http.StatusNotFound, "itemNotFound")
}

func (g *fakeGraph) put(w http.ResponseWriter, r *http.Request, parent, name string) {
	if !g.exists(parent) {
		writeGraphError(w, http.StatusNotFound, "itemNotFound")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeGraphError(w, http.StatusBadRequest, "invalidRequest")
		return
	}

	it := g.add(parent, name, false)
	g.content[it.ID] = string(body)

	writeGraphItem(w, http.StatusOK, it)
}

// file returns the content stored at a slash path below the root.
func (g *fakeGraph) file(path string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent := fakeRootID
	parts := strings.Split(path, "/")

	for i, p := range parts {
		it, ok := g.children[parent][strings.ToLower(p)]
		if !ok {
			return "", false
		}

		if i == len(parts)-1 {
			body, ok := g.content[it.ID]
			return body, ok
		}

		parent = it.ID
	}

	return "", false
}

func itemJSON(it fakeItem) map[string]any {
	m := map[string]any{"id": it.ID, "name": it.Name}
	if it.Folder {
		m["folder"] = map[string]any{"childCount": 0}
	} else {
		m["file"] = map[string]any{"mimeType": "application/octet-stream"}
	}

	return m
}

func writeGraphItem(w http.ResponseWriter, status int, it fakeItem) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(itemJSON(it))
}

func writeGraphError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": code},
	})
}
