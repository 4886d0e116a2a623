package layers

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/fsutil"
	"github.com/bibin-skaria/imgdump/internal/logging"
)

// ComposeOptions controls how layers are laid onto the destination
type ComposeOptions struct {
	// ApplyWhiteouts deletes whiteout targets instead of writing the markers.
	// Callers set it when composing more than one layer.
	ApplyWhiteouts bool
	// Root is prepended to every archive name when set, so archives can be
	// given as they appear in the image manifest.
	Root string
	// Logger receives per-layer and per-entry progress. Nil discards it.
	Logger *logrus.Entry
}

func (o ComposeOptions) logger() *logrus.Entry {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Discard()
}

// Compose resets dest and applies archives onto it in order. There is no
// rollback: on error dest holds whatever was written up to that point.
func Compose(archives []string, dest string, opts ComposeOptions) error {
	log := opts.logger()

	if err := os.RemoveAll(dest); err != nil {
		return apperrors.NewIOError("reset_destination", dest, err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return apperrors.NewIOError("reset_destination", dest, err)
	}

	for _, archive := range archives {
		path := archive
		if opts.Root != "" {
			path = filepath.Join(opts.Root, archive)
		}

		log.WithField("layer", archive).Info("unpacking layer")

		if err := applyLayer(path, archive, dest, opts.ApplyWhiteouts, log); err != nil {
			return err
		}
	}

	return nil
}

// Unpack extracts a plain archive such as a docker-save export. Whiteout
// names carry no meaning there and are written as files.
func Unpack(archive, dest string, log *logrus.Entry) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return apperrors.NewIOError("unpack", dest, err)
	}
	return applyLayer(archive, archive, dest, false, ComposeOptions{Logger: log}.logger())
}

func applyLayer(path, layer, dest string, applyWhiteouts bool, log *logrus.Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.NewArchiveError("open_layer", layer, err)
	}
	defer f.Close()

	r, err := NewReader(f, layer)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		entry, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if entry.IsWhiteout() && applyWhiteouts {
			if entry.IsMetaWhiteout() {
				log.WithField("path", entry.Path).Warn("skipping unsupported whiteout marker")
				continue
			}
			log.WithField("path", entry.Target).Debug("removing whiteout target")
			if err := removeTarget(dest, layer, entry); err != nil {
				return err
			}
			continue
		}

		log.WithField("path", entry.Path).Debug("writing entry")
		if err := writeEntry(dest, layer, entry, r, log); err != nil {
			return err
		}
	}
}

func removeTarget(dest, layer string, entry *Entry) error {
	target, err := fsutil.ResolveInRoot(dest, entry.Target)
	if err != nil {
		return withLayer(err, layer)
	}

	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return apperrors.NewWhiteoutError(layer, entry.Target, err)
	}
	if err != nil {
		return ioError("apply_whiteout", layer, entry.Target, err)
	}

	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		return ioError("apply_whiteout", layer, entry.Target, err)
	}

	return nil
}

// writeEntry materializes one tar entry under dest. Later entries replace
// whatever an earlier one left at the same path.
func writeEntry(dest, layer string, entry *Entry, content io.Reader, log *logrus.Entry) error {
	hdr := entry.Header

	target, err := fsutil.ResolveInRoot(dest, entry.Path)
	if err != nil {
		return withLayer(err, layer)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return ioError("write_entry", layer, entry.Path, err)
	}

	mode := hdr.FileInfo().Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)

	switch hdr.Typeflag {
	case tar.TypeDir:
		if info, err := os.Lstat(target); err == nil && !info.IsDir() {
			if err := os.Remove(target); err != nil {
				return ioError("write_entry", layer, entry.Path, err)
			}
		}
		if err := os.MkdirAll(target, 0755); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		if err := os.Chmod(target, mode); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}

	case tar.TypeReg:
		if err := replace(target); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}

		file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
		if err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		if _, err := io.Copy(file, content); err != nil {
			file.Close()
			if apperrors.KindOf(err) == apperrors.KindArchive {
				return err
			}
			return ioError("write_entry", layer, entry.Path, err)
		}
		if err := file.Close(); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		// umask may have masked the create mode
		if err := os.Chmod(target, mode); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}

	case tar.TypeSymlink:
		if err := replace(target); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}

	case tar.TypeLink:
		source, err := fsutil.ResolveInRoot(dest, hdr.Linkname)
		if err != nil {
			return withLayer(err, layer)
		}
		if err := replace(target); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}
		if err := os.Link(source, target); err != nil {
			return ioError("write_entry", layer, entry.Path, err)
		}

	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		// device nodes need privileges we usually do not have
		log.WithFields(logrus.Fields{
			"path": entry.Path,
			"type": string(hdr.Typeflag),
		}).Debug("skipping special file")

	default:
		log.WithFields(logrus.Fields{
			"path": entry.Path,
			"type": string(hdr.Typeflag),
		}).Debug("skipping unsupported entry type")
	}

	return nil
}

// replace clears target unless it is a directory holding content from an
// earlier layer, in which case it is removed with everything below it.
func replace(target string) error {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(target)
	}
	return os.Remove(target)
}

func ioError(op, layer, path string, cause error) error {
	return apperrors.NewErrorBuilder().
		Kind(apperrors.KindIO).
		Operation(op).
		Layer(layer).
		Path(path).
		Cause(cause).
		Build()
}

func withLayer(err error, layer string) error {
	if e, ok := err.(*apperrors.Error); ok && e.Layer == "" {
		copied := *e
		copied.Layer = layer
		return &copied
	}
	return err
}
