package layers

import (
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

// ResolveIndex maps a layer reference to an absolute position. Non-negative
// references are positions (0 is the base layer); negative ones count from
// the top (-1 is the newest layer).
func ResolveIndex(total, ref int) (int, error) {
	pos := ref
	if ref < 0 {
		pos = total + ref
	}

	if pos < 0 || pos >= total {
		return 0, apperrors.NewIndexError(ref, total)
	}

	return pos, nil
}

// ResolveRange returns the half-open range [start, end) of layers to compose
// for ref. With stack the range starts at the base layer.
func ResolveRange(total, ref int, stack bool) (start, end int, err error) {
	pos, err := ResolveIndex(total, ref)
	if err != nil {
		return 0, 0, err
	}

	start = pos
	if stack {
		start = 0
	}

	return start, pos + 1, nil
}
