package playlist

import (
	"strings"
	"time"
)

// Clip is one saved replay recorded by the playlist manager.
type Clip struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	SavedAt   time.Time `json:"saved_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// clipName returns the file name of path. OBS may report Windows paths, so
// both separators are accepted regardless of the host OS.
func clipName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
