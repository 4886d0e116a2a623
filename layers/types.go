package layers

import (
	"archive/tar"
	"strings"
)

// Whiteout naming used by docker-save archives
const (
	WhiteoutPrefix     = ".wh."
	WhiteoutMetaPrefix = WhiteoutPrefix + WhiteoutPrefix
	WhiteoutOpaqueDir  = WhiteoutMetaPrefix + ".opq"
)

// EntryKind tells regular content apart from deletion markers
type EntryKind int

const (
	EntryRegular EntryKind = iota
	EntryWhiteout
)

func (k EntryKind) String() string {
	switch k {
	case EntryWhiteout:
		return "whiteout"
	default:
		return "regular"
	}
}

// Entry is one classified member of a layer archive
type Entry struct {
	Kind EntryKind
	// Path as stored in the archive
	Path string
	// Name is the base name of Path
	Name string
	// Target is the path a whiteout deletes; empty for regular entries
	Target string
	// Header is passed through unmodified
	Header *tar.Header
}

// IsWhiteout reports whether the entry is a deletion marker
func (e *Entry) IsWhiteout() bool {
	return e.Kind == EntryWhiteout
}

// IsMetaWhiteout reports whether the marker is one of the ".wh..wh." family
// (opaque directories, hardlink dirs) rather than a plain deletion.
func (e *Entry) IsMetaWhiteout() bool {
	return e.Kind == EntryWhiteout && strings.HasPrefix(e.Name, WhiteoutMetaPrefix)
}

// LayerInfo lists the paths a single layer adds and removes
type LayerInfo struct {
	Additions []string `json:"additions"`
	Deletions []string `json:"deletions"`
}

// classify turns a tar header into an Entry. It returns false for entries
// without an effective base name ("", "/", "./"), which are skipped.
func classify(hdr *tar.Header) (*Entry, bool) {
	dir, base := splitName(hdr.Name)
	if base == "" {
		return nil, false
	}

	entry := &Entry{
		Kind:   EntryRegular,
		Path:   hdr.Name,
		Name:   base,
		Header: hdr,
	}

	if stripped := strings.TrimPrefix(base, WhiteoutPrefix); stripped != base && stripped != "" {
		entry.Kind = EntryWhiteout
		entry.Target = dir + stripped
	}

	return entry, true
}

// splitName splits an archive path into its parent (with trailing slash, as
// stored) and base name. "." and ".." have no base name.
func splitName(name string) (dir, base string) {
	trimmed := strings.TrimRight(name, "/")
	i := strings.LastIndex(trimmed, "/")
	dir, base = trimmed[:i+1], trimmed[i+1:]
	if base == "." || base == ".." {
		base = ""
	}
	return dir, base
}
