package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/cache"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// noopLimiter never blocks, so tests run fast.
type noopLimiter struct{}

func (noopLimiter) Wait(ctx context.Context) error { return nil }

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := cache.New(t.TempDir(), "schema", nil)
	require.NoError(t, err)
	return New(srv.URL, "test-token", noopLimiter{}, c, nil)
}

func schemaHandler(databaseID string, properties map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"database_id": databaseID,
			"properties":  properties,
		})
	}
}

func TestGetPageDecodesProperties(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/databases/db-1", schemaHandler("db-1", map[string]any{
		"Name": map[string]any{"Kind": "title"},
	}))
	mux.HandleFunc("/pages/page-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "page-1",
			"database_id": "db-1",
			"properties": map[string]any{
				"Name": []any{map[string]any{"plain_text": "Jane Doe"}},
			},
			"last_edited_time": time.Now().Format(time.RFC3339),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.GetPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", page.ID)
}

func TestDoJSONReturnsPermanentOn404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pages/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
	mux.HandleFunc("/databases/", schemaHandler("db-1", map[string]any{}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetPage(context.Background(), "missing")
	require.Error(t, err)

	var perr *pipelineerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipelineerr.KindPermanent, perr.Kind)
}

func TestDoJSONRetriesOn500ThenSucceeds(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/databases/db-1", schemaHandler("db-1", map[string]any{
		"Name": map[string]any{"Kind": "title"},
	}))
	mux.HandleFunc("/pages/page-1", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "page-1",
			"database_id": "db-1",
			"properties":  map[string]any{},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestCreatePageRejectsUnknownProperty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/databases/db-1", schemaHandler("db-1", map[string]any{
		"Name": map[string]any{"Kind": "title"},
	}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.CreatePage(context.Background(), "db-1", map[string]any{"NotAField": "x"})
	require.Error(t, err)

	var perr *pipelineerr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipelineerr.KindValidation, perr.Kind)
}
