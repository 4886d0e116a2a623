package layers

import (
	"io"
)

// Inspect reports what a single layer adds and deletes, in archive order.
// It never touches the filesystem beyond reading the archive.
func Inspect(archive string) (*LayerInfo, error) {
	r, err := OpenArchive(archive)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return Diff(r)
}

// Diff drains r into a LayerInfo
func Diff(r *Reader) (*LayerInfo, error) {
	info := &LayerInfo{
		Additions: []string{},
		Deletions: []string{},
	}

	for {
		entry, err := r.Next()
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return nil, err
		}

		if entry.IsWhiteout() {
			info.Deletions = append(info.Deletions, entry.Target)
		} else {
			info.Additions = append(info.Additions, entry.Path)
		}
	}
}
