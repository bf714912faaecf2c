// Package mediatype maps file extensions to MIME types and DLNA object
// classes. The table is the minimum set required by the ContentDirectory
// contract, supplemented with a handful of extensions the original scanner
// this server's behavior was modeled on also recognized (flv, 3gp, opus,
// aiff) — see DESIGN.md.
package mediatype

import "strings"

// Class is the DLNA upnp:class a media file is rendered under.
type Class string

const (
	// ClassVideo maps to object.item.videoItem.
	ClassVideo Class = "video"
	// ClassAudio maps to object.item.audioItem.musicTrack.
	ClassAudio Class = "audio"
	// ClassImage maps to object.item.imageItem.photo.
	ClassImage Class = "image"
)

// UPnPClass returns the strict DIDL-Lite upnp:class string for c.
func (c Class) UPnPClass() string {
	switch c {
	case ClassVideo:
		return "object.item.videoItem"
	case ClassAudio:
		return "object.item.audioItem.musicTrack"
	case ClassImage:
		return "object.item.imageItem.photo"
	default:
		return ""
	}
}

// entry pairs a MIME type with the class it belongs to.
type entry struct {
	mime  string
	class Class
}

var table = map[string]entry{
	// Video
	"mp4":  {"video/mp4", ClassVideo},
	"mkv":  {"video/x-matroska", ClassVideo},
	"avi":  {"video/x-msvideo", ClassVideo},
	"mov":  {"video/quicktime", ClassVideo},
	"webm": {"video/webm", ClassVideo},
	"m4v":  {"video/mp4", ClassVideo},
	"wmv":  {"video/x-ms-wmv", ClassVideo},
	"mpg":  {"video/mpeg", ClassVideo},
	"mpeg": {"video/mpeg", ClassVideo},
	"ts":   {"video/mp2t", ClassVideo},
	"flv":  {"video/x-flv", ClassVideo},
	"3gp":  {"video/3gpp", ClassVideo},

	// Audio
	"mp3":  {"audio/mpeg", ClassAudio},
	"flac": {"audio/flac", ClassAudio},
	"wav":  {"audio/wav", ClassAudio},
	"ogg":  {"audio/ogg", ClassAudio},
	"m4a":  {"audio/mp4", ClassAudio},
	"aac":  {"audio/aac", ClassAudio},
	"wma":  {"audio/x-ms-wma", ClassAudio},
	"opus": {"audio/opus", ClassAudio},
	"aiff": {"audio/aiff", ClassAudio},

	// Image
	"jpg":  {"image/jpeg", ClassImage},
	"jpeg": {"image/jpeg", ClassImage},
	"png":  {"image/png", ClassImage},
	"gif":  {"image/gif", ClassImage},
	"webp": {"image/webp", ClassImage},
	"heic": {"image/heic", ClassImage},
	"bmp":  {"image/bmp", ClassImage},
}

// Lookup returns the MIME type and class for a file's extension (with or
// without a leading dot, case-insensitive). ok is false for unrecognized or
// missing extensions, which the Indexer and FileWatcher must then exclude.
func Lookup(ext string) (mime string, class Class, ok bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	e, found := table[ext]
	if !found {
		return "", "", false
	}
	return e.mime, e.class, true
}

// Recognized reports whether ext has an entry in the table.
func Recognized(ext string) bool {
	_, _, ok := Lookup(ext)
	return ok
}

// DefaultExtensions returns every recognized extension (without dots), for
// use as the default accept-set when a media root's config omits one.
func DefaultExtensions() []string {
	exts := make([]string, 0, len(table))
	for ext := range table {
		exts = append(exts, ext)
	}
	return exts
}
