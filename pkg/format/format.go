// Package format provides human-readable formatting utilities.
package format

import "fmt"

// Bytes formats a byte count into human-readable format.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	sizes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), sizes[exp]) //nolint:gosec // G602: exp max is 4 (1024^6 > int64 max)
}
