package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrive_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/drives/b!abc", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "b!abc",
			"name": "Documents",
			"driveType": "documentLibrary",
			"owner": {"user": {"displayName": "Site Owner"}},
			"quota": {"used": 1024, "total": 4096}
		}`)
	}))
	defer srv.Close()

	drive, err := newTestClient(t, srv.URL).Drive(context.Background(), "b!abc")
	require.NoError(t, err)

	assert.Equal(t, "b!abc", drive.ID)
	assert.Equal(t, "Documents", drive.Name)
	assert.Equal(t, "documentLibrary", drive.DriveType)
	assert.Equal(t, "Site Owner", drive.OwnerName)
	assert.Equal(t, int64(1024), drive.QuotaUsed)
	assert.Equal(t, int64(4096), drive.QuotaTotal)
}

func TestDrive_MissingFacets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "d", "name": "OneDrive", "driveType": "business"}`)
	}))
	defer srv.Close()

	drive, err := newTestClient(t, srv.URL).Drive(context.Background(), "d")
	require.NoError(t, err)
	assert.Empty(t, drive.OwnerName)
	assert.Zero(t, drive.QuotaTotal)
}

func TestDrive_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"itemNotFound"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Drive(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestDrive_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Drive(context.Background(), "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding drive response")
}

func TestGetItem_Folder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drives/d/items/folder-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "folder-1",
			"name": "Site",
			"parentReference": {"id": "root", "driveId": "d"},
			"folder": {"childCount": 3}
		}`)
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItem(context.Background(), "d", "folder-1")
	require.NoError(t, err)
	assert.True(t, item.IsFolder)
	assert.Equal(t, 3, item.ChildCount)
	assert.Equal(t, "Site", item.Name)
}

func TestGetItem_File(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "f", "name": "a.txt", "size": 3, "file": {"mimeType": "text/plain"}}`)
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).GetItem(context.Background(), "d", "f")
	require.NoError(t, err)
	assert.False(t, item.IsFolder)
	assert.Equal(t, ChildCountUnknown, item.ChildCount)
}
