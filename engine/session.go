package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/logging"
	"github.com/bibin-skaria/imgdump/layers"
	"github.com/bibin-skaria/imgdump/manifest"
	"github.com/bibin-skaria/imgdump/source"
)

// Options configures a Session
type Options struct {
	// Image is the reference (or archive path) handed to Source
	Image  string
	Source source.Source
	// Cache is optional
	Cache *source.Cache
	// WorkDir is where the scratch directory is created; empty means os.TempDir
	WorkDir string
	Logger  *logrus.Entry
}

// Session holds one acquired and unpacked image. All operations read from the
// unpacked archive; Close removes it.
type Session struct {
	image   *manifest.Image
	name    string
	workDir string
	log     *logrus.Entry
	metrics *MetricsCollector
}

// Open acquires the image, unpacks its archive into a scratch directory and
// loads the manifest and configuration.
func Open(ctx context.Context, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithField("image", opts.Image)

	workDir, err := os.MkdirTemp(opts.WorkDir, "imgdump-")
	if err != nil {
		return nil, apperrors.NewIOError("open_session", opts.WorkDir, err)
	}

	s := &Session{
		name:    source.ImageName(opts.Image),
		workDir: workDir,
		log:     log,
		metrics: NewMetricsCollector(),
	}

	if err := s.load(ctx, opts); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}

	return s, nil
}

func (s *Session) load(ctx context.Context, opts Options) error {
	acquirer := &source.Acquirer{
		Source: opts.Source,
		Cache:  opts.Cache,
		Logger: s.log,
	}

	done := s.metrics.StartStage("acquire")
	archive, err := acquirer.Acquire(ctx, opts.Image, s.workDir)
	done(err == nil)
	if err != nil {
		return err
	}

	unpackDir := filepath.Join(s.workDir, s.name)
	s.log.WithField("archive", archive).Info("unpacking image archive")

	done = s.metrics.StartStage("unpack")
	err = layers.Unpack(archive, unpackDir, s.log)
	done(err == nil)
	if err != nil {
		return err
	}

	img, err := manifest.Load(unpackDir)
	if err != nil {
		return err
	}
	s.image = img

	if err := img.ValidateHistory(); err != nil {
		s.log.WithError(err).Warn("image history does not line up with its layers")
	}

	s.log.WithFields(logrus.Fields{
		"layers": len(img.Layers()),
		"tags":   img.Manifest.RepoTags,
	}).Debug("image loaded")

	return nil
}

// Image returns the loaded entity model
func (s *Session) Image() *manifest.Image {
	return s.image
}

// Metrics returns timings collected so far
func (s *Session) Metrics() *Metrics {
	return s.metrics.GetMetrics()
}

// Close removes the scratch directory
func (s *Session) Close() error {
	s.metrics.Finish()
	s.log.WithField("metrics", s.metrics.GetMetrics().Summary()).Debug("session closed")

	if err := os.RemoveAll(s.workDir); err != nil {
		return apperrors.NewIOError("close_session", s.workDir, err)
	}
	return nil
}
