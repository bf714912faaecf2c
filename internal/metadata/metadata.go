// Package metadata extracts best-effort duration/resolution information
// from MP4/MOV containers by walking their box structure, without decoding
// any media. It is used to fill MediaItem's optional duration_seconds and
// resolution fields (§3.2); a file this fails on is still a valid catalog
// entry with those two fields left unset.
package metadata

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/abema/go-mp4"
)

// DefaultTimeout bounds a single Extract call so a malformed or truncated
// file cannot stall the caller indefinitely.
const DefaultTimeout = 3 * time.Second

// Info is the subset of container metadata this server persists.
type Info struct {
	DurationSeconds float64
	Resolution      string // "<width>x<height>" of the first AVC (H.264) track, empty if there is none
}

// Extract probes path's box structure for duration and, if present, the
// first video track's pixel dimensions. The probe itself runs on a
// goroutine so ctx's deadline is honored even though go-mp4's Probe has no
// context parameter of its own.
func Extract(ctx context.Context, path string) (*Info, error) {
	type result struct {
		info *Info
		err  error
	}
	done := make(chan result, 1)

	go func() {
		info, err := probe(path)
		done <- result{info, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.info, r.err
	}
}

func probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	probed, err := mp4.Probe(f)
	if err != nil {
		return nil, fmt.Errorf("probing container boxes: %w", err)
	}
	if probed.Timescale == 0 {
		return nil, fmt.Errorf("metadata: zero timescale in %s", path)
	}

	info := &Info{
		DurationSeconds: float64(probed.Duration) / float64(probed.Timescale),
	}
	for _, track := range probed.Tracks {
		if track.AVC != nil && track.AVC.Width > 0 && track.AVC.Height > 0 {
			info.Resolution = fmt.Sprintf("%dx%d", track.AVC.Width, track.AVC.Height)
			break
		}
	}
	return info, nil
}

// Candidate reports whether ext (without a leading dot) names a container
// go-mp4 can box-parse. Extraction for any other extension is skipped
// before Extract is even called.
func Candidate(ext string) bool {
	switch ext {
	case "mp4", "m4v", "m4a", "mov":
		return true
	default:
		return false
	}
}
