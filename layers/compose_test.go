package layers

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

// buildImage writes three layers: a base, a layer that edits and deletes, and
// a layer that deletes a whole directory.
func buildImage(t *testing.T) (root string, names []string) {
	t.Helper()
	root = t.TempDir()

	writeArchive(t, filepath.Join(root, "l0", "layer.tar"), []tarEntry{
		dir("etc/"),
		file("etc/hostname", "base"),
		file("etc/motd", "hello"),
		dir("var/cache/"),
		file("var/cache/a.bin", "aaa"),
		symlink("etc/localtime", "/usr/share/zoneinfo/UTC"),
	}, "")
	writeArchive(t, filepath.Join(root, "l1", "layer.tar"), []tarEntry{
		file("etc/hostname", "edited"),
		whiteout("etc/.wh.motd"),
		file("opt/app", "bin"),
	}, "gzip")
	writeArchive(t, filepath.Join(root, "l2", "layer.tar"), []tarEntry{
		whiteout("var/.wh.cache"),
		file("etc/issue", "welcome"),
	}, "zstd")

	return root, []string{"l0/layer.tar", "l1/layer.tar", "l2/layer.tar"}
}

func TestComposeAppliesWhiteouts(t *testing.T) {
	root, names := buildImage(t)
	dest := filepath.Join(t.TempDir(), "out")

	err := Compose(names, dest, ComposeOptions{Root: root, ApplyWhiteouts: true})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	got := snapshot(t, dest)
	want := []string{
		"etc",
		"etc/hostname",
		"etc/issue",
		"etc/localtime",
		"opt",
		"opt/app",
		"var",
	}
	if diff := cmp.Diff(want, keys(got)); diff != "" {
		t.Errorf("composed tree mismatch (-want +got):\n%s", diff)
	}

	if got["etc/hostname"] != "file:-rw-r--r--:edited" {
		t.Errorf("etc/hostname = %q, want the edited content", got["etc/hostname"])
	}
	if got["etc/localtime"] != "link:/usr/share/zoneinfo/UTC" {
		t.Errorf("etc/localtime = %q, want symlink", got["etc/localtime"])
	}
}

func TestComposeSingleLayerKeepsMarkers(t *testing.T) {
	root, names := buildImage(t)
	dest := filepath.Join(t.TempDir(), "out")

	err := Compose(names[1:2], dest, ComposeOptions{Root: root})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	got := snapshot(t, dest)
	want := []string{"etc", "etc/.wh.motd", "etc/hostname", "opt", "opt/app"}
	if diff := cmp.Diff(want, keys(got)); diff != "" {
		t.Errorf("single layer tree mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	root, names := buildImage(t)
	out := t.TempDir()

	first := filepath.Join(out, "first")
	second := filepath.Join(out, "second")

	opts := ComposeOptions{Root: root, ApplyWhiteouts: true}
	if err := Compose(names, first, opts); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if err := Compose(names, second, opts); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if diff := cmp.Diff(snapshot(t, first), snapshot(t, second)); diff != "" {
		t.Errorf("repeated composition differs (-first +second):\n%s", diff)
	}
}

func TestComposeResetsDestination(t *testing.T) {
	root, names := buildImage(t)
	dest := filepath.Join(t.TempDir(), "out")

	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "stale"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Compose(names[:1], dest, ComposeOptions{Root: root}); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "stale")); !os.IsNotExist(err) {
		t.Error("stale content should be removed before composing")
	}
}

func TestComposeStackingEquivalence(t *testing.T) {
	root, names := buildImage(t)
	out := t.TempDir()
	opts := ComposeOptions{Root: root, ApplyWhiteouts: true}

	for k := 1; k < len(names); k++ {
		stacked := filepath.Join(out, "stacked")
		if err := Compose(names[:k+1], stacked, opts); err != nil {
			t.Fatalf("Compose(0..%d) failed: %v", k, err)
		}

		// compose the prefix, then lay layer k over it
		incremental := filepath.Join(out, "incremental")
		if err := Compose(names[:k], incremental, opts); err != nil {
			t.Fatalf("Compose(0..%d) failed: %v", k-1, err)
		}
		if err := applyLayer(filepath.Join(root, names[k]), names[k], incremental, true, opts.logger()); err != nil {
			t.Fatalf("applying layer %d failed: %v", k, err)
		}

		if diff := cmp.Diff(snapshot(t, stacked), snapshot(t, incremental)); diff != "" {
			t.Errorf("layer %d: stacked and incremental trees differ (-stacked +incremental):\n%s", k, diff)
		}
	}
}

func TestComposeMissingWhiteoutTarget(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "base.tar"), []tarEntry{file("a/b", "b")}, "")
	writeArchive(t, filepath.Join(root, "top.tar"), []tarEntry{whiteout("a/.wh.missing")}, "")

	err := Compose([]string{"base.tar", "top.tar"}, filepath.Join(t.TempDir(), "out"), ComposeOptions{
		Root:           root,
		ApplyWhiteouts: true,
	})
	if !stderrors.Is(err, apperrors.ErrWhiteoutTargetMissing) {
		t.Fatalf("Compose error = %v, want whiteout target missing", err)
	}

	var appErr *apperrors.Error
	if !stderrors.As(err, &appErr) {
		t.Fatalf("error %T is not *Error", err)
	}
	if appErr.Layer != "top.tar" || appErr.Path != "a/missing" {
		t.Errorf("error context = layer %q path %q, want top.tar a/missing", appErr.Layer, appErr.Path)
	}
}

func TestComposeSkipsOpaqueMarker(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "base.tar"), []tarEntry{file("a/b", "b")}, "")
	writeArchive(t, filepath.Join(root, "top.tar"), []tarEntry{whiteout("a/.wh..wh..opq"), file("a/c", "c")}, "")

	dest := filepath.Join(t.TempDir(), "out")
	err := Compose([]string{"base.tar", "top.tar"}, dest, ComposeOptions{Root: root, ApplyWhiteouts: true})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if diff := cmp.Diff([]string{"a", "a/b", "a/c"}, keys(snapshot(t, dest))); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeRejectsTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{name: "parent reference", entries: []tarEntry{file("../evil", "x")}},
		{name: "nested parent reference", entries: []tarEntry{file("a/../../evil", "x")}},
		{name: "whiteout climbing out", entries: []tarEntry{file("a", "x"), whiteout("../.wh.evil")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeArchive(t, filepath.Join(root, "layer.tar"), tt.entries, "")
			writeArchive(t, filepath.Join(root, "base.tar"), nil, "")

			work := t.TempDir()
			dest := filepath.Join(work, "out")
			err := Compose([]string{"base.tar", "layer.tar"}, dest, ComposeOptions{Root: root, ApplyWhiteouts: true})
			if !stderrors.Is(err, apperrors.ErrPath) {
				t.Fatalf("Compose error = %v, want path error", err)
			}
			if _, err := os.Stat(filepath.Join(work, "evil")); !os.IsNotExist(err) {
				t.Error("entry was written outside the destination")
			}
		})
	}
}

func TestComposeSymlinkCannotRedirectWrites(t *testing.T) {
	outside := t.TempDir()
	root := t.TempDir()

	writeArchive(t, filepath.Join(root, "base.tar"), []tarEntry{symlink("link", outside)}, "")
	writeArchive(t, filepath.Join(root, "top.tar"), []tarEntry{file("link/payload", "x")}, "")

	dest := filepath.Join(t.TempDir(), "out")
	if err := Compose([]string{"base.tar", "top.tar"}, dest, ComposeOptions{Root: root, ApplyWhiteouts: true}); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outside, "payload")); !os.IsNotExist(err) {
		t.Fatal("write followed a symlink out of the destination")
	}
}

func TestUnpack(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "image.tar")
	writeArchive(t, archive, []tarEntry{
		file("manifest.json", "[]"),
		file("abc/layer.tar", "data"),
		file("abc/.wh.kept", ""),
	}, "")

	dest := filepath.Join(t.TempDir(), "unpacked")
	if err := Unpack(archive, dest, nil); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	want := []string{"abc", "abc/.wh.kept", "abc/layer.tar", "manifest.json"}
	if diff := cmp.Diff(want, keys(snapshot(t, dest))); diff != "" {
		t.Errorf("unpacked tree mismatch (-want +got):\n%s", diff)
	}
}
