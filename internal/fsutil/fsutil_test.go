package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "/etc/passwd", want: "etc/passwd"},
		{input: "etc/passwd", want: "etc/passwd"},
		{input: "./usr/bin/", want: "usr/bin"},
		{input: "a/../b", want: "b"},
		{input: "/", want: "."},
		{input: "", want: "."},
		{input: "../etc", wantErr: true},
		{input: "/a/../../etc", wantErr: true},
		{input: "..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := CleanPath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("CleanPath(%q) = %q, want error", tt.input, got)
				}
				if apperrors.KindOf(err) != apperrors.KindPath {
					t.Errorf("error kind = %q, want %q", apperrors.KindOf(err), apperrors.KindPath)
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanPath(%q) unexpected error: %v", tt.input, err)
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("CleanPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveInRootConfinesSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	// a symlinked parent pointing outside the root must resolve inside it
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveInRoot(root, "escape/file")
	if err != nil {
		t.Fatalf("ResolveInRoot failed: %v", err)
	}

	rel, err := filepath.Rel(root, got)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("ResolveInRoot = %q, escapes root %q", got, root)
	}

	// the final component is not followed
	got, err = ResolveInRoot(root, "escape")
	if err != nil {
		t.Fatalf("ResolveInRoot failed: %v", err)
	}
	if got != filepath.Join(root, "escape") {
		t.Errorf("ResolveInRoot = %q, want the link itself", got)
	}

	if _, err := ResolveInRoot(root, "../x"); err == nil {
		t.Error("expected error for path climbing out of root")
	}
}

func TestPlaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "out.txt")

	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Place(src, dst); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading placed file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("placed content = %q, want %q", data, "hello")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after Place")
	}
}

func TestPlaceDirectoryMergesContents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(dst, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "nested", "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Place(src, dst); err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	for _, name := range []string{"a.txt", "nested/b.txt", "nested/keep.txt"} {
		if _, err := os.Stat(filepath.Join(dst, filepath.FromSlash(name))); err != nil {
			t.Errorf("expected %s in destination: %v", name, err)
		}
	}

	// the output root is the contents, not a nested copy of src
	if _, err := os.Stat(filepath.Join(dst, "src")); !os.IsNotExist(err) {
		t.Error("directory should be merged, not nested")
	}
}

func TestPlaceMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Place(filepath.Join(dir, "missing"), filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if apperrors.KindOf(err) != apperrors.KindIO {
		t.Errorf("error kind = %q, want %q", apperrors.KindOf(err), apperrors.KindIO)
	}
}
