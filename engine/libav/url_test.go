package libav

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLClassification(t *testing.T) {
	for _, tc := range []struct {
		url    string
		live   bool
		format string
	}{
		{"/tmp/movie.mkv", false, ""},
		{"file:///tmp/capture.M2TS", false, "mpegts"},
		{"https://example.org/movie.mp4", false, ""},
		{"srt://127.0.0.1:4444", true, "mpegts"},
		{"rtmp://127.0.0.1/live/key", true, "flv"},
		{"rtsp://camera.local/stream", true, ""},
	} {
		t.Run(tc.url, func(t *testing.T) {
			require.Equal(t, tc.live, isLiveURL(tc.url))
			require.Equal(t, tc.format, formatHint(tc.url))
		})
	}
}
