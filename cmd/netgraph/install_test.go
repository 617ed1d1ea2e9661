package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestMermaidASCIIAssetName(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"darwin", "arm64", "mermaid-ascii_Darwin_arm64.tar.gz", false},
		{"linux", "amd64", "mermaid-ascii_Linux_x86_64.tar.gz", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}
	for _, tt := range tests {
		got, err := mermaidASCIIAssetName(tt.goos, tt.goarch)
		if tt.wantErr {
			assert.Error(t, err, tt.goos+"/"+tt.goarch)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Contains(t, mermaidASCIIChecksums, got, "every supported platform has a pinned checksum")
	}
}

func TestExtractTarGz(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"README.md":                         "docs",
		"mermaid-ascii_1.1.0/mermaid-ascii": "#!/bin/sh\necho ok\n",
	})
	dir := t.TempDir()

	require.NoError(t, extractTarGz(bytes.NewReader(archive), dir, "mermaid-ascii"))
	data, err := os.ReadFile(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho ok\n", string(data))

	err = extractTarGz(bytes.NewReader(archive), dir, "other")
	assert.ErrorContains(t, err, `file "other" not found`)

	err = extractTarGz(bytes.NewReader([]byte("not gzip")), dir, "mermaid-ascii")
	assert.ErrorContains(t, err, "gzip")
}
