package types

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Platform selects one entry of a multi-arch image
type Platform struct {
	OS           string `json:"os" yaml:"os"`
	Architecture string `json:"architecture" yaml:"architecture"`
	Variant      string `json:"variant,omitempty" yaml:"variant,omitempty"`
}

func (p Platform) String() string {
	if p.Variant != "" {
		return fmt.Sprintf("%s/%s/%s", p.OS, p.Architecture, p.Variant)
	}
	return fmt.Sprintf("%s/%s", p.OS, p.Architecture)
}

// IsZero reports whether no platform was chosen
func (p Platform) IsZero() bool {
	return p.OS == "" && p.Architecture == ""
}

// ParsePlatform parses "os/arch[/variant]"
func ParsePlatform(platform string) (Platform, error) {
	parts := strings.Split(platform, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return Platform{}, fmt.Errorf("invalid platform %q, expected os/arch[/variant]", platform)
	}

	p := Platform{
		OS:           parts[0],
		Architecture: parts[1],
	}

	if len(parts) > 2 {
		p.Variant = parts[2]
	}

	return p, nil
}

func GetHostPlatform() Platform {
	os := runtime.GOOS
	// images are linux even when the client is not
	if os == "darwin" || os == "windows" {
		os = "linux"
	}
	return Platform{
		OS:           os,
		Architecture: runtime.GOARCH,
	}
}

type CacheInfo struct {
	Dir        string    `json:"dir"`
	TotalSize  int64     `json:"total_size"`
	TotalFiles int       `json:"total_files"`
	HitRate    float64   `json:"hit_rate"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Oldest     time.Time `json:"oldest,omitempty"`
}
