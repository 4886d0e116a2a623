package exporters

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/imgdump/layers"
)

// Request describes one materialization of a layer range
type Request struct {
	// Root is the unpacked docker-save archive the layer names are relative to
	Root string
	// Layers to compose, base first
	Layers []string
	// ApplyWhiteouts is set when more than one layer is composed
	ApplyWhiteouts bool
	// Output is the path the exporter writes to
	Output string
	Logger *logrus.Entry
}

func (r *Request) composeOptions() layers.ComposeOptions {
	return layers.ComposeOptions{
		ApplyWhiteouts: r.ApplyWhiteouts,
		Root:           r.Root,
		Logger:         r.Logger,
	}
}

type Exporter interface {
	Export(req *Request) error
}

var exporters = make(map[string]Exporter)

func RegisterExporter(name string, exporter Exporter) {
	exporters[name] = exporter
}

func GetExporter(name string) (Exporter, error) {
	exporter, exists := exporters[name]
	if !exists {
		return nil, fmt.Errorf("exporter %s not found, available: %v", name, ListExporters())
	}
	return exporter, nil
}

func ListExporters() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
