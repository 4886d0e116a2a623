package manifest

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// File names inside an unpacked docker-save archive
const (
	ManifestFile = "manifest.json"
)

// Size limits for the JSON documents we are willing to parse
const (
	MaxManifestSize = 4 * 1024 * 1024 // 4MB
	MaxConfigSize   = 8 * 1024 * 1024 // 8MB
)

// Manifest is the single entry of a docker-save manifest.json
type Manifest struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// Config is the part of the image configuration we read
type Config struct {
	Architecture string         `json:"architecture"`
	OS           string         `json:"os"`
	History      []HistoryEntry `json:"history"`
}

// HistoryEntry describes the build step that produced a layer. Steps that
// did not change the filesystem are marked EmptyLayer and have no archive.
type HistoryEntry struct {
	Created    string `json:"created,omitempty"`
	CreatedBy  string `json:"created_by"`
	Comment    string `json:"comment,omitempty"`
	EmptyLayer bool   `json:"empty_layer,omitempty"`
}

// CleanHistory returns the history entries that correspond to layer
// archives. The entries are shared with c.
func (c *Config) CleanHistory() []*HistoryEntry {
	clean := make([]*HistoryEntry, 0, len(c.History))
	for i := range c.History {
		if !c.History[i].EmptyLayer {
			clean = append(clean, &c.History[i])
		}
	}
	return clean
}

// Image is a loaded docker-save export
type Image struct {
	// Root is the directory the archive was unpacked into
	Root     string
	Manifest *Manifest
	Config   *Config
}

// Layers returns the layer archive names, base layer first
func (i *Image) Layers() []string {
	return i.Manifest.Layers
}

// History maps layer positions to the command that created them. It encodes
// as a JSON object whose keys are positions in ascending numeric order.
type History []string

// MarshalJSON implements json.Marshaler
func (h History) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cmd := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(i)))
		buf.WriteByte(':')
		value, err := json.Marshal(cmd)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
