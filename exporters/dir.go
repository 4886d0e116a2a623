package exporters

import (
	"github.com/bibin-skaria/imgdump/layers"
)

// DirExporter composes the layers straight into the output directory.
// Whatever was at the output path is replaced.
type DirExporter struct{}

func init() {
	RegisterExporter("dir", &DirExporter{})
}

func (e *DirExporter) Export(req *Request) error {
	return layers.Compose(req.Layers, req.Output, req.composeOptions())
}
