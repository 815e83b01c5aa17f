package domain

import "fmt"

// MediaKind is the media type of a track, producer or consumer.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

func ParseMediaKind(s string) (MediaKind, error) {
	k := MediaKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown media kind %q", s)
	}
	return k, nil
}
