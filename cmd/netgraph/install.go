package main

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const mermaidASCIIVersion = "1.1.0"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// runInstall writes settings.json and installs the mermaid-ascii renderer
// used for ASCII diagrams. Only flags given on the command line change an
// existing settings file.
func runInstall(args []string) {
	defaults := defaultConfig()
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", defaults.ListenAddr, "TCP listen address")
	logLevel := fs.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	debounce := fs.Int("debounce-ms", defaults.DebounceMs, "quiet period before a session is re-analysed")
	poolSize := fs.Int("pool-size", defaults.PoolSize, "concurrent analyses")
	inputShape := fs.String("input-shape", "784", "default input shape, e.g. 28,28,1")
	mcpFlag := fs.Bool("mcp", false, "serve MCP on stdio alongside the panel")
	skipTools := fs.Bool("skip-tools", false, "do not download mermaid-ascii")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := netgraphDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	path := settingsPath()
	cfg, err := loadConfigFrom(path, func(string) string { return "" })
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen-addr":
			cfg.ListenAddr = *listenAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "debounce-ms":
			cfg.DebounceMs = *debounce
		case "pool-size":
			cfg.PoolSize = *poolSize
		case "input-shape":
			shape, err := parseShape(*inputShape)
			if err != nil {
				flagErr = err
				return
			}
			cfg.DefaultInputShape = shape
		case "mcp":
			cfg.MCP = *mcpFlag
		}
	})
	if flagErr == nil {
		flagErr = cfg.validate()
	}
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", flagErr)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)

	if !*skipTools {
		installMermaidASCII(cfg.DiagramBinDir)
	}

	if !signalRunningServer() {
		fmt.Println("Start the editor API with: netgraph serve")
	}
}

// signalRunningServer sends SIGHUP to a running netgraph server (via pidfile).
// Returns true if the server was signaled.
func signalRunningServer() bool {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", pid)
	return true
}

// installMermaidASCII downloads the mermaid-ascii binary to binDir.
// Non-fatal: ASCII diagrams fall back to the built-in renderer.
func installMermaidASCII(binDir string) {
	destPath := filepath.Join(binDir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("mermaid-ascii already installed at %s\n", destPath)
		return
	}

	asset, err := mermaidASCIIAsset(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; ASCII diagrams will use the built-in renderer\n", err)
		return
	}

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot create %s: %v\n", binDir, err)
		return
	}

	fmt.Printf("Downloading mermaid-ascii %s...\n", mermaidASCIIVersion)
	client := &http.Client{Timeout: 60 * time.Second}
	if err := installAsset(client, asset, binDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; ASCII diagrams will use the built-in renderer\n", err)
		_ = os.Remove(destPath)
		return
	}
	fmt.Printf("mermaid-ascii installed to %s\n", destPath)
}

// installAsset downloads and verifies the archive, then extracts
// mermaid-ascii into binDir.
func installAsset(client httpGetter, asset releaseAsset, binDir string) error {
	tmpPath, err := asset.fetch(client, binDir)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.Remove(tmpPath)

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := extractTarGz(f, binDir, "mermaid-ascii"); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return os.Chmod(filepath.Join(binDir, "mermaid-ascii"), 0o755)
}

// mermaidASCIIAssetName returns the GitHub release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	var archName string
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// extractTarGz extracts a specific file from a tar.gz archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		// Archives may carry a directory prefix.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
