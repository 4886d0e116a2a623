// Package manifest reads the entity model of a docker-save image export.
//
// An unpacked export holds a manifest.json array with exactly one entry. The
// entry names the image configuration and the ordered layer archives:
//
//	[{"Config": "abc.json", "RepoTags": ["app:1"], "Layers": ["l0/layer.tar", "l1/layer.tar"]}]
//
// The configuration carries the build history. Entries flagged empty_layer
// produced no archive, so the filtered history lines up one-to-one with
// Layers:
//
//	img, err := manifest.Load(dir)
//	if err != nil {
//		return err
//	}
//	if err := img.ValidateHistory(); err != nil {
//		return err
//	}
//	commands, _ := img.LayerCommands()
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
	"github.com/bibin-skaria/imgdump/internal/fsutil"
)

// Load reads manifest.json and the configuration it references from root
func Load(root string) (*Image, error) {
	m, err := ReadManifest(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}

	configPath, err := fsutil.ResolveInRoot(root, m.Config)
	if err != nil {
		return nil, err
	}

	c, err := ReadConfig(configPath)
	if err != nil {
		return nil, err
	}

	return &Image{
		Root:     root,
		Manifest: m,
		Config:   c,
	}, nil
}

// ReadManifest reads and decodes a manifest.json file
func ReadManifest(path string) (*Manifest, error) {
	data, err := readLimited(path, MaxManifestSize)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}

// DecodeManifest decodes a manifest.json document. The document must hold
// exactly one manifest with at least one layer.
func DecodeManifest(data []byte) (*Manifest, error) {
	var manifests []Manifest
	if err := json.Unmarshal(data, &manifests); err != nil {
		return nil, apperrors.NewParseError("decode_manifest", "malformed manifest.json", err)
	}

	if len(manifests) != 1 {
		return nil, apperrors.NewParseError("decode_manifest",
			fmt.Sprintf("unexpected number of manifests: %d, want exactly 1", len(manifests)), nil)
	}

	m := &manifests[0]
	if err := ValidateManifest(m); err != nil {
		return nil, err
	}

	return m, nil
}

// ReadConfig reads and decodes an image configuration file
func ReadConfig(path string) (*Config, error) {
	data, err := readLimited(path, MaxConfigSize)
	if err != nil {
		return nil, err
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes an image configuration document
func DecodeConfig(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperrors.NewParseError("decode_config", "malformed image configuration", err)
	}
	return &c, nil
}

// LayerCommands returns the created_by command of every layer. It fails when
// the history does not line up with the layers.
func (i *Image) LayerCommands() (History, error) {
	if err := i.ValidateHistory(); err != nil {
		return nil, err
	}

	clean := i.Config.CleanHistory()
	history := make(History, len(i.Manifest.Layers))
	for pos := range i.Manifest.Layers {
		history[pos] = clean[pos].CreatedBy
	}

	return history, nil
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewParseError("read_document", fmt.Sprintf("%s not found", filepath.Base(path)), err)
		}
		return nil, apperrors.NewIOError("read_document", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, apperrors.NewIOError("read_document", path, err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.NewParseError("read_document",
			fmt.Sprintf("%s exceeds %d bytes", filepath.Base(path), limit), nil)
	}

	return data, nil
}
