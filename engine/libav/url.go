package libav

import (
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// isLiveURL returns true for network streams: they cannot be
// repositioned.
func isLiveURL(urlString string) bool {
	u, err := url.Parse(urlString)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "rtmp", "rtmps", "srt", "udp", "tcp", "rtsp", "rtp":
		return true
	default:
		return false
	}
}

// formatHint guesses the demuxer of streams libav has troubles probing
// quickly; empty means "let libav probe".
func formatHint(urlString string) string {
	u, err := url.Parse(urlString)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "rtmp", "rtmps":
		return "flv"
	case "srt", "udp":
		return "mpegts"
	case "file", "":
		if hasFileExtension(u.Path, ".ts", ".mts", ".m2ts") {
			return "mpegts"
		}
		return ""
	default:
		return ""
	}
}

func hasFileExtension(path string, exts ...string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}
