// Package source acquires docker-save archives for an image reference.
//
// Three sources are supported:
//
//   - daemon: exports a locally present image from the Docker daemon
//   - remote: pulls the image from a registry and writes the same archive layout
//   - archive: uses an existing docker-save tarball as-is
//
// Archives from the daemon and registry sources are kept in a Cache keyed by
// image ID, so repeated commands against the same image skip the export.
package source

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/internal/config"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/types"
)

// Source produces a docker-save archive for an image
type Source interface {
	// Name identifies the source in logs and configuration
	Name() string
	// ImageID returns a stable identifier for image, used as the cache key.
	// An empty ID disables caching for the image.
	ImageID(ctx context.Context, image string) (string, error)
	// Save writes the docker-save archive of image to path
	Save(ctx context.Context, image, path string) error
}

// Options configures the source built by New
type Options struct {
	Kind               string
	Platform           types.Platform
	ExportConcurrency  int
	InsecureRegistries []string
	Registries         map[string]config.RegistryAuth
	Retry              *apperrors.RetryConfig
	Logger             *logrus.Entry
}

// New builds the source named by opts.Kind
func New(opts Options) (Source, error) {
	switch opts.Kind {
	case config.SourceDaemon, "":
		return NewDaemonSource(opts.ExportConcurrency, opts.Logger)
	case config.SourceRemote:
		return NewRemoteSource(RemoteOptions{
			Platform:           opts.Platform,
			InsecureRegistries: opts.InsecureRegistries,
			Keychain:           NewKeychain(opts.Registries),
			Retry:              opts.Retry,
			Logger:             opts.Logger,
		}), nil
	case config.SourceArchive:
		return NewArchiveSource(), nil
	default:
		return nil, apperrors.NewConfigurationError("new_source", fmt.Sprintf("unknown source %q", opts.Kind), nil)
	}
}
