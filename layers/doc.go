// Package layers reconstructs container image filesystems from their layer archives.
//
// An image exported in docker-save format stores each filesystem changeset as a
// tar archive. This package provides the pieces needed to work with them:
//
//   - Resolving a user supplied (possibly negative) layer number to a position
//   - Streaming entries out of a layer, classifying each as regular or whiteout
//   - Composing an ordered range of layers onto a destination directory
//   - Reporting the paths a single layer adds and removes
//
// # Whiteouts
//
// A whiteout is an entry whose base name starts with ".wh.". It marks the path
// with the same parent and the remainder of the name as deleted by that layer:
//
//	usr/share/doc/.wh.README   ->   removes usr/share/doc/README
//
// Entries are classified once by the Reader; everything downstream works with
// Entry.Kind and Entry.Target instead of re-parsing names.
//
// # Composition
//
// Compose resets the destination and applies layers strictly in order:
//
//	err := layers.Compose(unpackDir, manifest.Layers[:k+1], out, layers.ComposeOptions{
//		ApplyWhiteouts: k > 0,
//	})
//
// With ApplyWhiteouts set, whiteouts delete what earlier layers of the same
// composition wrote, and a whiteout naming a missing path is fatal. Without
// it, whiteout markers are written out like any other file so a single layer
// can be inspected on its own.
//
// Entry paths are confined to the destination: names that climb out of it are
// rejected and parent directories are resolved with filepath-securejoin so
// symlinks from earlier entries cannot redirect writes.
//
// # Compression
//
// Layer archives may be plain, gzip or zstd compressed; the Reader sniffs the
// magic bytes.
//
// # Thread Safety
//
// Composition is sequential. Concurrent Compose calls targeting the same
// destination must be serialized by the caller.
package layers
