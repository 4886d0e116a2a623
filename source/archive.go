package source

import (
	"context"
	"os"

	"github.com/bibin-skaria/imgdump/internal/config"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

// Locator is implemented by sources whose archive already exists on disk
type Locator interface {
	Locate(image string) (string, error)
}

// ArchiveSource treats the image argument as the path of a docker-save tarball
type ArchiveSource struct{}

func NewArchiveSource() *ArchiveSource {
	return &ArchiveSource{}
}

func (s *ArchiveSource) Name() string {
	return config.SourceArchive
}

// ImageID is empty: local archives are never cached
func (s *ArchiveSource) ImageID(ctx context.Context, image string) (string, error) {
	return "", nil
}

// Locate checks the archive exists and returns its path
func (s *ArchiveSource) Locate(image string) (string, error) {
	info, err := os.Stat(image)
	if err != nil {
		return "", apperrors.NewAcquireError("locate_archive", "image archive not found", err)
	}
	if info.IsDir() {
		return "", apperrors.NewErrorBuilder().
			Kind(apperrors.KindAcquire).
			Operation("locate_archive").
			Path(image).
			Message("image archive is a directory").
			Build()
	}
	return image, nil
}

// Save copies the archive to path
func (s *ArchiveSource) Save(ctx context.Context, image, path string) error {
	src, err := s.Locate(image)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return apperrors.NewIOError("copy_archive", src, err)
	}
	defer in.Close()

	out, err := os.Create(path)
	if err != nil {
		return apperrors.NewIOError("copy_archive", path, err)
	}

	if _, err := CopyChunked(ctx, out, in, DefaultConcurrency, DefaultChunkSize); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return apperrors.NewIOError("copy_archive", path, err)
	}
	return nil
}
