package source

import "strings"

// ImageName derives a short name for scratch paths from an image reference:
// the last path segment with any tag or digest removed.
//
//	docker.io/library/alpine:3.19  ->  alpine
//	localhost:5000/app@sha256:...  ->  app
func ImageName(image string) string {
	name := image
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	// archive paths
	name = strings.TrimSuffix(name, ".tar")
	if name == "" {
		return "image"
	}
	return name
}
