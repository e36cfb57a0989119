package level

import "path/filepath"

const (
	// DraftDirName holds analyst-filled drafts awaiting a title, per level.
	DraftDirName = "drafts"
	// DigestExtension is the extension of every committed digest.
	DigestExtension = ".json"
)

// Layout maps levels onto the corpus directory tree.
type Layout struct {
	Root string
	// Digests is the digest tree, relative to Root unless absolute.
	Digests string
}

// NewLayout returns a layout rooted at root with digests under "Digests".
func NewLayout(root string) Layout {
	return Layout{Root: root, Digests: "Digests"}
}

func (lo Layout) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(lo.Root, p)
}

// RawDir is the directory holding raw records.
func (lo Layout) RawDir(raw RawSpec) string { return lo.resolve(raw.Dir) }

// DigestsDir is the root of the digest tree; state documents live here.
func (lo Layout) DigestsDir() string { return lo.resolve(lo.Digests) }

// LevelDir is the directory of l's committed digests.
func (lo Layout) LevelDir(l Level) string { return filepath.Join(lo.DigestsDir(), l.Dir) }

// DraftDir is the directory of l's drafts. It is not scanned for inputs.
func (lo Layout) DraftDir(l Level) string { return filepath.Join(lo.LevelDir(l), DraftDirName) }

// DigestPath is the committed path for identifier at level l.
func (lo Layout) DigestPath(l Level, identifier string) string {
	return filepath.Join(lo.LevelDir(l), identifier+DigestExtension)
}

// SourceDir returns where l's inputs live together with their prefix and extension.
func (lo Layout) SourceDir(r *Registry, l Level) (dir, prefix, ext string) {
	if lower, ok := r.Lower(l); ok {
		return lo.LevelDir(lower), lower.Prefix, DigestExtension
	}
	raw := r.Raw()
	return lo.RawDir(raw), raw.Prefix, raw.Extension
}
