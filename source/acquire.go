package source

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/internal/logging"
)

// Acquirer resolves an image to a docker-save archive on disk, going through
// the cache when one is configured.
type Acquirer struct {
	Source Source
	// Cache is optional; nil always exports into the work directory
	Cache  *Cache
	Logger *logrus.Entry
}

// Acquire returns the path of the archive for image. Archives that are not
// cached are written into workDir.
func (a *Acquirer) Acquire(ctx context.Context, image, workDir string) (string, error) {
	log := a.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithFields(logrus.Fields{"image": image, "source": a.Source.Name()})

	if locator, ok := a.Source.(Locator); ok {
		log.Debug("using local archive")
		return locator.Locate(image)
	}

	id, err := a.Source.ImageID(ctx, image)
	if err != nil {
		return "", err
	}

	if a.Cache != nil && id != "" {
		if path, ok := a.Cache.Lookup(id); ok {
			log.WithField("id", id).Info("using cached archive")
			return path, nil
		}

		log.WithField("id", id).Info("cache miss, exporting image")
		return a.Cache.Store(id, func(path string) error {
			return a.Source.Save(ctx, image, path)
		})
	}

	path := filepath.Join(workDir, ImageName(image)+".tar")
	if err := a.Source.Save(ctx, image, path); err != nil {
		return "", err
	}
	return path, nil
}
