package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/internal/config"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/logging"
)

// DaemonAPI is the part of the Docker client the daemon source uses
type DaemonAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageSave(ctx context.Context, images []string, opts ...client.ImageSaveOption) (io.ReadCloser, error)
}

// DaemonSource exports images that are present in the local Docker daemon
type DaemonSource struct {
	api         DaemonAPI
	concurrency int
	log         *logrus.Entry
}

// NewDaemonSource connects to the daemon configured by the DOCKER_* environment
func NewDaemonSource(concurrency int, log *logrus.Entry) (*DaemonSource, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.NewAcquireError("connect_daemon", "cannot create docker client", err)
	}
	return NewDaemonSourceWithAPI(cli, concurrency, log), nil
}

// NewDaemonSourceWithAPI creates a daemon source over an existing client
func NewDaemonSourceWithAPI(api DaemonAPI, concurrency int, log *logrus.Entry) *DaemonSource {
	if concurrency <= 0 {
		concurrency = config.DefaultExportConcurrency
	}
	if log == nil {
		log = logging.Discard()
	}
	return &DaemonSource{
		api:         api,
		concurrency: concurrency,
		log:         log.WithField("source", config.SourceDaemon),
	}
}

func (s *DaemonSource) Name() string {
	return config.SourceDaemon
}

// ImageID looks the reference up among local images. It must match exactly one.
func (s *DaemonSource) ImageID(ctx context.Context, ref string) (string, error) {
	images, err := s.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return "", apperrors.NewAcquireError("list_images", "cannot list daemon images", err)
	}

	switch len(images) {
	case 0:
		return "", apperrors.NewErrorBuilder().
			Kind(apperrors.KindAcquire).
			Operation("find_image").
			Messagef("image %s was not found locally", ref).
			Suggestion("Run docker pull first, or use --source remote").
			Build()
	case 1:
		return images[0].ID, nil
	default:
		return "", apperrors.NewErrorBuilder().
			Kind(apperrors.KindAcquire).
			Operation("find_image").
			Messagef("reference %s matches %d images, it should match exactly one", ref, len(images)).
			Suggestion("Use a full tag or the image ID").
			Build()
	}
}

// Save streams the daemon export into path
func (s *DaemonSource) Save(ctx context.Context, ref, path string) error {
	id, err := s.ImageID(ctx, ref)
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"image": ref, "id": id}).Info("exporting image from daemon")

	stream, err := s.api.ImageSave(ctx, []string{ref})
	if err != nil {
		return apperrors.NewAcquireError("save_image", fmt.Sprintf("cannot export %s", ref), err)
	}
	defer stream.Close()

	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewIOError("save_image", path, err)
	}

	written, err := CopyChunked(ctx, f, stream, s.concurrency, DefaultChunkSize)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return apperrors.NewIOError("save_image", path, err)
	}

	s.log.WithField("bytes", written).Debug("export written")
	return nil
}
