package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/geopages/internal/command"
	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/pipeline"
)

type fixedSource struct{}

func (fixedSource) Generate(_ context.Context, e pipeline.EntityInfo) (pipeline.Draft, error) {
	return pipeline.Draft{
		Content: content.Document{
			Title: "Dentists in " + e.Name,
			Intro: "Finding a **dentist** in " + e.Name + " is easy.",
			Sections: []content.Section{
				{Heading: "Emergency care", Level: 2, Body: strings.TrimSpace(strings.Repeat("care ", 400))},
			},
		},
		Confidence: 0.99,
	}, nil
}

type testServer struct {
	db   *database.DB
	srv  *Server
	city int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	city, err := db.InsertGeoEntity(database.PageTypeCity, "Springfield", "springfield", nil)
	require.NoError(t, err)

	pipe := pipeline.New(db, fixedSource{}, pipeline.DefaultOptions())
	srv, err := New(db, command.NewHandler(db, pipe))
	require.NoError(t, err)
	return &testServer{db: db, srv: srv, city: city}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do("GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeResponse(t, rec)["status"])
}

func TestCommandSuccess(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do("POST", "/api/command", `{"action": "get_settings"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse(t, rec)
	require.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	require.Equal(t, 0.85, data["auto_publish_threshold"])
	require.NotContains(t, out, "error")
}

func TestCommandFailure(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do("POST", "/api/command", `{"action": "publish_page", "payload": {"queue_id": 77}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	out := decodeResponse(t, rec)
	require.Equal(t, false, out["success"])
	require.Contains(t, out["error"], "queue item not found")
	require.NotEmpty(t, out["request_id"])
}

func TestCommandMalformed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", "/api/command", `{"action": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, decodeResponse(t, rec)["request_id"])

	rec = ts.do("POST", "/api/command", `{"payload": {}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do("GET", "/api/command", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPagePreview(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/pages/city/springfield", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do("POST", "/api/command", `{"action": "update_settings", "payload": {"key": "require_admin_approval", "value": false}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do("POST", "/api/command", `{"action": "update_settings", "payload": {"key": "auto_publish_enabled", "value": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := json.Marshal(map[string]any{"action": "generate_city_content", "payload": map[string]any{"entity_id": ts.city}})
	require.NoError(t, err)
	rec = ts.do("POST", "/api/command", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do("GET", "/pages/city/springfield", "")
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	require.Contains(t, html, "<title>Dentists in Springfield</title>")
	require.Contains(t, html, "<strong>dentist</strong>")
	require.Contains(t, html, "<h2>Emergency care</h2>")

	rec = ts.do("GET", "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `href="/pages/city/springfield"`)

	rec = ts.do("GET", "/pages/county/springfield", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do("GET", "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No pages published yet.")
}
