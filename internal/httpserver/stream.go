package httpserver

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumin-project/lumin/internal/coreerr"
	"github.com/lumin-project/lumin/internal/mediatype"
)

const streamChunkSize = 128 * 1024

func (s *Server) registerStreamRoutes() {
	s.router.Get("/media/{objectID}", s.handleStream)
	s.router.Head("/media/{objectID}", s.handleStream)
}

// handleStream serves a media item's bytes, honoring a single HTTP Range
// request per §4.6.4 (no multipart byte-range support). It responds 416 on
// an unsatisfiable range and drops silently, without logging, when the
// client disconnects mid-transfer.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "objectID")

	item, _, err := s.mediaStore.GetByID(r.Context(), objectID)
	if err != nil || item == nil {
		if errors.Is(err, coreerr.ErrObjectNotFound) || item == nil {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	f, err := os.Open(item.AbsolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "open failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", item.MimeType)
	transferMode := "Streaming"
	if item.MediaClass == string(mediatype.ClassImage) {
		transferMode = "Background"
	}
	w.Header().Set("transferMode.dlna.org", transferMode)
	w.Header().Set("contentFeatures.dlna.org", "DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=01700000000000000000000000000000")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			copyStream(w, f)
		}
		return
	}

	start, end, ok := parseRangeHeader(rangeHeader, size)
	if !ok {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	copyStream(w, io.LimitReader(f, length))
}

// copyStream streams in fixed-size chunks and stops quietly on a write
// error, which on a live connection almost always means the client hung up.
func copyStream(w io.Writer, r io.Reader) {
	buf := make([]byte, streamChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// parseRangeHeader supports exactly one byte-range-spec of the three forms
// named in §4.6.4: "bytes=start-end", "bytes=start-" and "bytes=-suffix".
// Multiple comma-separated ranges are rejected (ok=false) rather than served
// as multipart/byteranges.
func parseRangeHeader(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	switch {
	case parts[0] == "" && parts[1] != "":
		suffix, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, true

	case parts[0] != "" && parts[1] == "":
		s, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || s < 0 || s >= size {
			return 0, 0, false
		}
		return s, size - 1, true

	case parts[0] != "" && parts[1] != "":
		s, err1 := strconv.ParseInt(parts[0], 10, 64)
		e, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s || s >= size {
			return 0, 0, false
		}
		if e >= size {
			e = size - 1
		}
		return s, e, true

	default:
		return 0, 0, false
	}
}
