package engine

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/exporters"
	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/fsutil"
	"github.com/bibin-skaria/imgdump/layers"
	"github.com/bibin-skaria/imgdump/manifest"
)

// DefaultFormat is the exporter used when none is given
const DefaultFormat = "dir"

// List maps every layer position to the command that created it. Unlike Open
// it fails when the history does not line up with the layers.
func (s *Session) List() (manifest.History, error) {
	return s.image.LayerCommands()
}

// Inspect reports what the layer at ref adds and deletes
func (s *Session) Inspect(ref int) (*layers.LayerInfo, error) {
	all := s.image.Layers()
	pos, err := layers.ResolveIndex(len(all), ref)
	if err != nil {
		return nil, err
	}
	return layers.Inspect(filepath.Join(s.image.Root, all[pos]))
}

// Dump composes every layer into output
func (s *Session) Dump(output, format string) error {
	return s.export(s.image.Layers(), output, format)
}

// DumpLayer composes the layer at ref into output. With stack the layers
// below it are composed first, so a stacked dump of -1 equals Dump. A single
// layer keeps its whiteout markers as files.
func (s *Session) DumpLayer(ref int, stack bool, output, format string) error {
	selected, err := s.selectRange(ref, stack)
	if err != nil {
		return err
	}
	return s.export(selected, output, format)
}

// Extract copies path out of the fully composed image to output
func (s *Session) Extract(path, output string) error {
	return s.extract(s.image.Layers(), path, output)
}

// ExtractLayer copies path out of the single layer at ref to output
func (s *Session) ExtractLayer(ref int, path, output string) error {
	selected, err := s.selectRange(ref, false)
	if err != nil {
		return err
	}
	return s.extract(selected, path, output)
}

func (s *Session) selectRange(ref int, stack bool) ([]string, error) {
	all := s.image.Layers()
	start, end, err := layers.ResolveRange(len(all), ref, stack)
	if err != nil {
		return nil, err
	}
	return all[start:end], nil
}

func (s *Session) request(selected []string, output string) *exporters.Request {
	return &exporters.Request{
		Root:           s.image.Root,
		Layers:         selected,
		ApplyWhiteouts: len(selected) > 1,
		Output:         output,
		Logger:         s.log,
	}
}

func (s *Session) export(selected []string, output, format string) error {
	if format == "" {
		format = DefaultFormat
	}

	exporter, err := exporters.GetExporter(format)
	if err != nil {
		return apperrors.NewConfigurationError("export", "unknown output format", err)
	}

	s.log.WithFields(logrus.Fields{
		"layers": len(selected),
		"format": format,
		"output": output,
	}).Info("exporting layers")

	done := s.metrics.StartStage("compose")
	err = exporter.Export(s.request(selected, output))
	done(err == nil)
	s.metrics.AddLayers(len(selected))

	return err
}

func (s *Session) extract(selected []string, path, output string) error {
	rel, err := fsutil.CleanPath(path)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(output); err == nil {
		return apperrors.NewPathError("extract", output, "output already exists")
	}

	scratch := filepath.Join(s.workDir, s.name+"-fs")
	if err := s.export(selected, scratch, DefaultFormat); err != nil {
		return err
	}

	src, err := fsutil.ResolveInRoot(scratch, rel)
	if err != nil {
		return err
	}

	info, err := os.Lstat(src)
	if os.IsNotExist(err) {
		return apperrors.NewPathError("extract", path, "path does not exist in the selected layers")
	}
	if err != nil {
		return apperrors.NewIOError("extract", path, err)
	}

	if info.IsDir() {
		if err := os.Mkdir(output, 0755); err != nil {
			return apperrors.NewIOError("extract", output, err)
		}
	}

	s.log.WithFields(logrus.Fields{"path": path, "output": output}).Info("placing extracted path")
	return fsutil.Place(src, output)
}
