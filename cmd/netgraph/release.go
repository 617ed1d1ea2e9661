package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
)

const mermaidASCIIReleaseURL = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download"

// httpGetter is satisfied by *http.Client.
type httpGetter interface {
	Get(url string) (*http.Response, error)
}

// releaseAsset is one downloadable archive with its pinned digest.
type releaseAsset struct {
	name   string
	url    string
	sha256 string
}

// mermaidASCIIAsset resolves the pinned release archive for a platform.
func mermaidASCIIAsset(goos, goarch string) (releaseAsset, error) {
	name, err := mermaidASCIIAssetName(goos, goarch)
	if err != nil {
		return releaseAsset{}, err
	}
	sum, ok := mermaidASCIIChecksums[name]
	if !ok {
		return releaseAsset{}, fmt.Errorf("no known checksum for %s", name)
	}
	return releaseAsset{
		name:   name,
		url:    fmt.Sprintf("%s/%s/%s", mermaidASCIIReleaseURL, mermaidASCIIVersion, name),
		sha256: sum,
	}, nil
}

// fetch streams the asset into a temp file under dir, hashing as it writes.
// The file is only kept when its digest matches; the caller removes it.
func (a releaseAsset) fetch(client httpGetter, dir string) (string, error) {
	if a.sha256 == "" {
		return "", fmt.Errorf("no known checksum for %s", a.name)
	}
	resp, err := client.Get(a.url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of %s returned %d", a.name, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", err
	}
	path := f.Name()

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != a.sha256 {
		os.Remove(path)
		return "", fmt.Errorf("checksum mismatch for %s (expected %s, got %s)", a.name, a.sha256, got)
	}
	return path, nil
}
