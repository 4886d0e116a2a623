package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/internal/config"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/logging"
	"github.com/bibin-skaria/imgdump/internal/types"
)

// RemoteOptions configures a RemoteSource
type RemoteOptions struct {
	// Platform picks the image out of a multi-arch index; zero means the host platform
	Platform           types.Platform
	InsecureRegistries []string
	Keychain           authn.Keychain
	Retry              *apperrors.RetryConfig
	Transport          http.RoundTripper
	Logger             *logrus.Entry
}

// RemoteSource pulls images straight from a registry, without a daemon
type RemoteSource struct {
	opts RemoteOptions
	log  *logrus.Entry
}

func NewRemoteSource(opts RemoteOptions) *RemoteSource {
	if opts.Platform.IsZero() {
		opts.Platform = types.GetHostPlatform()
	}
	if opts.Keychain == nil {
		opts.Keychain = authn.DefaultKeychain
	}
	if opts.Retry == nil {
		opts.Retry = apperrors.DefaultRetryConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &RemoteSource{
		opts: opts,
		log:  log.WithField("source", config.SourceRemote),
	}
}

func (s *RemoteSource) Name() string {
	return config.SourceRemote
}

// ImageID returns the config digest of the platform image, which is also the
// ID the Docker daemon would give it.
func (s *RemoteSource) ImageID(ctx context.Context, image string) (string, error) {
	ref, err := s.parse(image)
	if err != nil {
		return "", err
	}

	var id v1.Hash
	err = apperrors.RetryWithContext(ctx, s.opts.Retry, "resolve_image", func() error {
		img, err := remote.Image(ref, s.remoteOptions(ctx)...)
		if err != nil {
			return classify("resolve_image", ref, err)
		}
		id, err = img.ConfigName()
		if err != nil {
			return classify("resolve_image", ref, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// Save pulls the image and writes it in docker-save layout to path
func (s *RemoteSource) Save(ctx context.Context, image, path string) error {
	ref, err := s.parse(image)
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"image":    ref.String(),
		"platform": s.opts.Platform.String(),
	}).Info("pulling image from registry")

	return apperrors.RetryWithContext(ctx, s.opts.Retry, "pull_image", func() error {
		img, err := remote.Image(ref, s.remoteOptions(ctx)...)
		if err != nil {
			return classify("pull_image", ref, err)
		}

		if err := tarball.WriteToFile(path, ref, img); err != nil {
			os.Remove(path)
			return classify("write_archive", ref, err)
		}
		return nil
	})
}

func (s *RemoteSource) parse(image string) (name.Reference, error) {
	ref, err := name.ParseReference(image)
	if err != nil {
		return nil, apperrors.NewErrorBuilder().
			Kind(apperrors.KindAcquire).
			Operation("parse_reference").
			Message(fmt.Sprintf("invalid image reference %q", image)).
			Cause(err).
			Build()
	}

	if s.isInsecure(ref.Context().RegistryStr()) {
		return name.ParseReference(image, name.Insecure)
	}
	return ref, nil
}

func (s *RemoteSource) isInsecure(registry string) bool {
	for _, host := range s.opts.InsecureRegistries {
		if host == registry {
			return true
		}
	}
	return false
}

func (s *RemoteSource) remoteOptions(ctx context.Context) []remote.Option {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(s.opts.Keychain),
		remote.WithPlatform(v1.Platform{
			OS:           s.opts.Platform.OS,
			Architecture: s.opts.Platform.Architecture,
			Variant:      s.opts.Platform.Variant,
		}),
	}
	if s.opts.Transport != nil {
		opts = append(opts, remote.WithTransport(s.opts.Transport))
	}
	return opts
}

// classify marks registry failures retryable unless the registry gave a
// definitive answer such as 401 or 404.
func classify(op string, ref name.Reference, err error) error {
	retryable := true

	var terr *transport.Error
	if stderrors.As(err, &terr) {
		retryable = terr.Temporary()
	}

	return apperrors.NewErrorBuilder().
		Kind(apperrors.KindAcquire).
		Operation(op).
		Message(fmt.Sprintf("registry request for %s failed", ref.String())).
		Cause(err).
		Retryable(retryable).
		Suggestion("Check registry connectivity and credentials").
		Build()
}
