package types

import "fmt"

// MediaType selects one of the two channels every adapter carries.
type MediaType int

const (
	MediaTypeUnknown = MediaType(-1)
	MediaTypeVideo   = MediaType(0)
	MediaTypeAudio   = MediaType(1)
)

func MediaTypes() []MediaType {
	return []MediaType{
		MediaTypeAudio,
		MediaTypeVideo,
	}
}

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("MediaType(%d)", int(t))
	}
}

// Other returns the opposite channel.
func (t MediaType) Other() MediaType {
	switch t {
	case MediaTypeAudio:
		return MediaTypeVideo
	case MediaTypeVideo:
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// Cookie bytes used by pull-style engines to tag requests.
const (
	CookieVideo = byte('0')
	CookieAudio = byte('1')
)

// ParseChannelTag maps a request tag ("0..." for video, "1..." for audio)
// to a MediaType.
func ParseChannelTag(tag string) (MediaType, error) {
	if len(tag) == 0 {
		return MediaTypeUnknown, fmt.Errorf("empty channel tag")
	}
	switch tag[0] {
	case CookieVideo:
		return MediaTypeVideo, nil
	case CookieAudio:
		return MediaTypeAudio, nil
	default:
		return MediaTypeUnknown, fmt.Errorf("unknown channel tag %q", tag)
	}
}

// Cookie returns the request tag of the channel.
func (t MediaType) Cookie() string {
	switch t {
	case MediaTypeAudio:
		return string(CookieAudio)
	case MediaTypeVideo:
		return string(CookieVideo)
	default:
		return ""
	}
}
