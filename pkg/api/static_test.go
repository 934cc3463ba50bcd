package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFileServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dash</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600))

	ts := newTestServer(t, &fakeGitHub{})
	ts.cfg.Server.StaticDir = dir
	ts.handler = ts.buildRouter()

	tests := []struct {
		name string
		path string
		code int
		body string
	}{
		{name: "root", path: "/", code: http.StatusOK, body: "<html>dash</html>"},
		{name: "asset", path: "/assets/app.js", code: http.StatusOK, body: "console.log(1)"},
		{name: "client route", path: "/runs/42", code: http.StatusOK, body: "<html>dash</html>"},
		{name: "traversal", path: "/../../etc/passwd", code: http.StatusBadRequest},
		{name: "unknown api route", path: "/api/nope", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, "", nil)

			assert.Equal(t, tt.code, rec.Code)

			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestStaticFileServer_MissingIndex(t *testing.T) {
	ts := newTestServer(t, &fakeGitHub{})
	ts.cfg.Server.StaticDir = t.TempDir()
	ts.handler = ts.buildRouter()

	rec := ts.do(t, http.MethodGet, "/anything", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFileServer_Disabled(t *testing.T) {
	ts := newTestServer(t, &fakeGitHub{})

	rec := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
