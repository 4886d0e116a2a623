package manifest

import (
	"fmt"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/fsutil"
)

// ValidateManifest checks the fields composition depends on
func ValidateManifest(m *Manifest) error {
	if m.Config == "" {
		return apperrors.NewParseError("validate_manifest", "manifest has no Config entry", nil)
	}

	if len(m.Layers) == 0 {
		return apperrors.NewParseError("validate_manifest", "manifest lists no layers", nil)
	}

	for i, layer := range m.Layers {
		if layer == "" {
			return apperrors.NewParseError("validate_manifest", fmt.Sprintf("layer %d has an empty path", i), nil)
		}
		if _, err := fsutil.CleanPath(layer); err != nil {
			return err
		}
	}

	return nil
}

// ValidateHistory checks that the non-empty history entries line up with the
// layer archives.
func (i *Image) ValidateHistory() error {
	clean := len(i.Config.CleanHistory())
	layers := len(i.Manifest.Layers)

	if clean != layers {
		return apperrors.NewParseError("validate_history",
			fmt.Sprintf("history has %d non-empty entries but the image has %d layers", clean, layers), nil)
	}

	return nil
}
