package exporters

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/layers"
)

// TarExporter composes the layers into a scratch directory next to the output
// and writes the resulting tree as a single tar file.
type TarExporter struct{}

func init() {
	RegisterExporter("tar", &TarExporter{})
}

func (e *TarExporter) Export(req *Request) error {
	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return apperrors.NewIOError("export_tar", req.Output, err)
	}

	scratch, err := os.MkdirTemp(filepath.Dir(req.Output), ".imgdump-rootfs-*")
	if err != nil {
		return apperrors.NewIOError("export_tar", req.Output, err)
	}
	defer os.RemoveAll(scratch)

	rootfs := filepath.Join(scratch, "rootfs")
	if err := layers.Compose(req.Layers, rootfs, req.composeOptions()); err != nil {
		return err
	}

	tarFile, err := os.Create(req.Output)
	if err != nil {
		return apperrors.NewIOError("export_tar", req.Output, err)
	}

	tarWriter := tar.NewWriter(tarFile)
	if err := e.addDirectoryToTar(tarWriter, rootfs); err != nil {
		tarWriter.Close()
		tarFile.Close()
		return apperrors.NewIOError("export_tar", req.Output, err)
	}
	if err := tarWriter.Close(); err != nil {
		tarFile.Close()
		return apperrors.NewIOError("export_tar", req.Output, err)
	}
	if err := tarFile.Close(); err != nil {
		return apperrors.NewIOError("export_tar", req.Output, err)
	}

	return nil
}

func (e *TarExporter) addDirectoryToTar(tarWriter *tar.Writer, srcDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		if relPath == "." {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}

		header.Name = filepath.ToSlash(relPath)

		if info.IsDir() {
			header.Name += "/"
			return tarWriter.WriteHeader(header)
		}

		if !info.Mode().IsRegular() {
			if info.Mode()&os.ModeSymlink == 0 {
				return nil
			}
			return tarWriter.WriteHeader(header)
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tarWriter, file)
		return err
	})
}
