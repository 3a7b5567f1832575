package playlist

import (
	"fmt"
	"strings"
)

// BuildPlaylist renders clips (oldest first) as an extended M3U playlist
// that VLC and most players accept. Durations are unknown, so every entry
// uses -1. An empty slice produces just the header.
func BuildPlaylist(clips []Clip) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	for _, c := range clips {
		name := c.Name
		if name == "" {
			name = clipName(c.Path)
		}
		b.WriteString(fmt.Sprintf("#EXTINF:-1,%s\n", name))
		b.WriteString(c.Path)
		b.WriteString("\n")
	}
	return b.String()
}
