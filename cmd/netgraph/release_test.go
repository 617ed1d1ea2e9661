package main

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Of(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func serveBytes(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMermaidASCIIAsset(t *testing.T) {
	asset, err := mermaidASCIIAsset("linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "mermaid-ascii_Linux_x86_64.tar.gz", asset.name)
	assert.Equal(t, mermaidASCIIChecksums[asset.name], asset.sha256)
	assert.True(t, strings.HasSuffix(asset.url, "/"+mermaidASCIIVersion+"/"+asset.name), asset.url)

	_, err = mermaidASCIIAsset("windows", "amd64")
	assert.ErrorContains(t, err, "unsupported OS")
}

func TestReleaseAsset_Fetch(t *testing.T) {
	payload := []byte("netgraph test data")
	srv := serveBytes(t, payload)
	dir := t.TempDir()

	asset := releaseAsset{name: "tool.tar.gz", url: srv.URL + "/tool.tar.gz", sha256: sha256Of(payload)}
	path, err := asset.fetch(srv.Client(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReleaseAsset_FetchRejects(t *testing.T) {
	payload := []byte("tampered")
	srv := serveBytes(t, payload)
	dir := t.TempDir()

	tests := []struct {
		name    string
		asset   releaseAsset
		wantErr string
	}{
		{"digest differs", releaseAsset{name: "a.tar.gz", url: srv.URL + "/a", sha256: sha256Of([]byte("original"))}, "checksum mismatch for a.tar.gz"},
		{"no pinned digest", releaseAsset{name: "b.tar.gz", url: srv.URL + "/b"}, "no known checksum for b.tar.gz"},
		{"not found", releaseAsset{name: "c.tar.gz", url: srv.URL + "/missing", sha256: sha256Of(payload)}, "download of c.tar.gz returned 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.asset.fetch(srv.Client(), dir)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected downloads leave no temp file")
}

func TestInstallAsset(t *testing.T) {
	archive := tarGz(t, map[string]string{"mermaid-ascii": "binary"})
	srv := serveBytes(t, archive)
	dir := t.TempDir()

	good := releaseAsset{name: "m.tar.gz", url: srv.URL + "/m", sha256: sha256Of(archive)}
	require.NoError(t, installAsset(srv.Client(), good, dir))
	info, err := os.Stat(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	other := t.TempDir()
	bad := releaseAsset{name: "m.tar.gz", url: srv.URL + "/m", sha256: sha256Of([]byte("other"))}
	assert.ErrorContains(t, installAsset(srv.Client(), bad, other), "checksum mismatch")
	entries, _ := os.ReadDir(other)
	assert.Empty(t, entries, "nothing is extracted from an unverified archive")
}
