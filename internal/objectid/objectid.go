// Package objectid computes stable DLNA ContentDirectory ObjectIDs.
//
// IDs are a pure function of a normalized absolute path using FNV-1a 64-bit,
// not a random or time-ordered identifier: the catalog can be rebuilt from
// scratch after database loss without changing any ID a renderer has cached.
package objectid

import (
	"hash/fnv"
	"path/filepath"
	"strings"
)

// Root is the fixed ObjectID of the ContentDirectory root container.
const Root = "0"

// Fixed top-level container IDs, stable across the lifetime of the server.
const (
	ContainerVideo    = "1"
	ContainerAudio    = "2"
	ContainerImage    = "3"
	ContainerByFolder = "4"
)

const (
	folderPrefix = "f:"
	itemPrefix   = "i:"
)

// Normalize puts a path into the canonical form IDs are hashed from: an
// absolute path with OS separators rewritten to '/'. It does not touch case;
// case-folding is the caller's responsibility when the filesystem demands it
// (see internal/store's per-root case-sensitivity detection).
func Normalize(absPath string) string {
	return filepath.ToSlash(filepath.Clean(absPath))
}

func hash(normalized string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	sum := h.Sum64()
	const hexChars = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexChars[sum&0xf]
		sum >>= 4
	}
	return string(buf)
}

// Folder returns the deterministic ObjectID for a directory's absolute path.
func Folder(absPath string) string {
	return folderPrefix + hash(Normalize(absPath))
}

// Item returns the deterministic ObjectID for a media file's absolute path.
func Item(absPath string) string {
	return itemPrefix + hash(Normalize(absPath))
}

// IsFolder reports whether id names a folder object.
func IsFolder(id string) bool {
	return strings.HasPrefix(id, folderPrefix)
}

// IsItem reports whether id names a media item object.
func IsItem(id string) bool {
	return strings.HasPrefix(id, itemPrefix)
}

// IsFixedContainer reports whether id is one of the four predefined
// top-level containers or the root itself.
func IsFixedContainer(id string) bool {
	switch id {
	case Root, ContainerVideo, ContainerAudio, ContainerImage, ContainerByFolder:
		return true
	default:
		return false
	}
}
