package alert

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// MissingArtifact replaces artifacts that do not resolve to a readable file.
	MissingArtifact = "[missing artifact]"

	// UnreadableArtifact replaces artifacts that exist but cannot be read.
	UnreadableArtifact = "[unreadable artifact]"
)

// ArtifactReader loads artifact files referenced by alerts, confined to a root directory.
type ArtifactReader struct {
	root string
}

// NewArtifactReader creates a reader rooted at dir.
func NewArtifactReader(dir string) *ArtifactReader {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	return &ArtifactReader{root: abs}
}

// Read returns the text of the artifact at path (relative to the root). Paths that
// escape the root or do not exist yield MissingArtifact.
func (r *ArtifactReader) Read(path string) string {
	p, ok := r.resolve(path)
	if !ok {
		return MissingArtifact
	}
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return MissingArtifact
	}
	b, err := os.ReadFile(p) //nolint:gosec // G304: path confined to root by resolve
	if err != nil {
		return UnreadableArtifact
	}
	return strings.ToValidUTF8(string(b), "�")
}

// ReadAll loads every artifact of al keyed by artifact name.
func (r *ArtifactReader) ReadAll(al *Alert) map[string]string {
	out := make(map[string]string, len(al.Artifacts))
	for name, path := range al.Artifacts {
		out[name] = r.Read(path)
	}
	return out
}

// resolve joins path onto the root and follows symlinks on both sides, so a link
// inside the root cannot point outside it.
func (r *ArtifactReader) resolve(path string) (string, bool) {
	if path == "" || filepath.IsAbs(path) {
		return "", false
	}
	root, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		root = r.root
	}
	p, err := filepath.EvalSymlinks(filepath.Join(r.root, path))
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}
