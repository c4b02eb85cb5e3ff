// Package plugin provides embedded companion plugin management.
//
// The manager-side plugin is embedded at build time and extracted to a
// temporary directory on first use, so the ascent binary is
// self-contained without requiring a separate plugin installation.
package plugin

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ascent-project/ascent/plan"
	"github.com/ascent-project/ascent/types"
)

//go:embed bundle/ascent_upgrade.py
var embeddedPlugin []byte

// extractOnce ensures extraction happens only once per process.
var extractOnce sync.Once
var extractedPath string
var extractErr error

// EmbeddedVersion returns the version of the embedded plugin. Plugin and
// binary version in lockstep.
func EmbeddedVersion() string {
	return types.Version
}

// EmbeddedSize returns the size of the embedded plugin in bytes.
func EmbeddedSize() int {
	return len(embeddedPlugin)
}

// EmbeddedChecksum returns the SHA256 checksum of the embedded plugin.
func EmbeddedChecksum() string {
	hash := sha256.Sum256(embeddedPlugin)
	return hex.EncodeToString(hash[:])
}

// IsEmbedded returns true if a plugin is embedded in this binary.
func IsEmbedded() bool {
	return len(embeddedPlugin) > 0
}

// ExtractedPath returns the path to the extracted plugin. Extracts on
// first call; subsequent calls return the cached path.
func ExtractedPath() (string, error) {
	extractOnce.Do(func() {
		extractedPath, extractErr = extractPlugin()
	})
	return extractedPath, extractErr
}

// extractPlugin extracts the embedded plugin to a temp directory. A
// hash-based directory name lets multiple versions coexist.
func extractPlugin() (string, error) {
	if !IsEmbedded() {
		return "", fmt.Errorf("no embedded plugin available")
	}

	checksum := EmbeddedChecksum()[:16]
	dirName := fmt.Sprintf("ascent-plugin-%s-%s", types.Version, checksum)
	tempDir := filepath.Join(os.TempDir(), dirName)

	pluginPath := filepath.Join(tempDir, plan.PluginName)

	// Already extracted (idempotent)
	if info, err := os.Stat(pluginPath); err == nil && info.Size() == int64(len(embeddedPlugin)) {
		return pluginPath, nil
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	if err := os.WriteFile(pluginPath, embeddedPlugin, 0o644); err != nil {
		return "", fmt.Errorf("failed to write plugin: %w", err)
	}

	return pluginPath, nil
}

// Cleanup removes the extracted plugin directory. Safe to call multiple
// times or if extraction never happened.
func Cleanup() error {
	if extractedPath == "" {
		return nil
	}

	dir := filepath.Dir(extractedPath)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to cleanup plugin: %w", err)
	}

	return nil
}
