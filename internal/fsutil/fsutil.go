package fsutil

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	securejoin "github.com/cyphar/filepath-securejoin"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

// CleanPath turns a user or archive supplied path into a path relative to an
// image root. One leading "/" is dropped; the result must not climb out of
// the root.
func CleanPath(p string) (string, error) {
	trimmed := strings.TrimPrefix(filepath.ToSlash(p), "/")
	if trimmed == "" {
		return ".", nil
	}

	cleaned := filepath.Clean(filepath.FromSlash(trimmed))
	if filepath.IsAbs(cleaned) {
		return "", apperrors.NewPathError("clean_path", p, "path must be relative to the image root")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", apperrors.NewPathError("clean_path", p, "path escapes the image root")
	}

	return cleaned, nil
}

// ResolveInRoot returns the host path for rel under root. Symlinks in the
// parent directories are resolved inside root; the final component is left
// alone so links can be created, replaced or removed rather than followed.
func ResolveInRoot(root, rel string) (string, error) {
	cleaned, err := CleanPath(rel)
	if err != nil {
		return "", err
	}
	if cleaned == "." {
		return root, nil
	}

	parent, err := securejoin.SecureJoin(root, filepath.Dir(cleaned))
	if err != nil {
		return "", apperrors.NewPathError("resolve_path", rel, err.Error())
	}

	return filepath.Join(parent, filepath.Base(cleaned)), nil
}

// Place moves source to dest. A file is moved to exactly dest; a directory has
// its contents merged into dest, which must already exist.
func Place(source, dest string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return apperrors.NewIOError("place", source, err)
	}

	if !info.IsDir() {
		return move(source, dest)
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return apperrors.NewIOError("place", source, err)
	}

	for _, entry := range entries {
		if err := mergeInto(filepath.Join(source, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// mergeInto moves src to dst, descending when both are directories.
func mergeInto(src, dst string) error {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return apperrors.NewIOError("place", src, err)
	}

	dstInfo, err := os.Lstat(dst)
	if err == nil && srcInfo.IsDir() && dstInfo.IsDir() {
		return Place(src, dst)
	}
	if err == nil {
		if err := os.RemoveAll(dst); err != nil {
			return apperrors.NewIOError("place", dst, err)
		}
	}

	return move(src, dst)
}

func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !stderrors.As(err, &linkErr) || !stderrors.Is(linkErr.Err, syscall.EXDEV) {
		return apperrors.NewIOError("place", dst, err)
	}

	if err := copyTree(src, dst); err != nil {
		return err
	}
	if err := os.RemoveAll(src); err != nil {
		return apperrors.NewIOError("place", src, err)
	}
	return nil
}

// copyTree is the cross-device fallback for move
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return apperrors.NewIOError("copy", path, err)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return apperrors.NewIOError("copy", path, err)
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return apperrors.NewIOError("copy", target, err)
			}
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return apperrors.NewIOError("copy", path, err)
			}
			if err := os.Symlink(link, target); err != nil {
				return apperrors.NewIOError("copy", target, err)
			}
		case info.Mode().IsRegular():
			if err := copyFile(path, target, info.Mode().Perm()); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return apperrors.NewIOError("copy", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return apperrors.NewIOError("copy", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return apperrors.NewIOError("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return apperrors.NewIOError("copy", dst, err)
	}
	return nil
}
