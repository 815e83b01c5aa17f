package media

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
)

const streamID = "streamcast"

// LocalTrack is a publishable media source backed by a pion local track.
// Writing samples into it is the caller's business; the session only
// publishes and stops it.
type LocalTrack struct {
	local webrtc.TrackLocal
	kind  domain.MediaKind

	mu      sync.Mutex
	stopped bool
}

func NewAudioTrack(id string) (*LocalTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, id, streamID)
	if err != nil {
		return nil, core.Wrap(core.ErrProduce, "new audio track", err)
	}
	return &LocalTrack{local: local, kind: domain.KindAudio}, nil
}

func NewVideoTrack(id string) (*LocalTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, id, streamID)
	if err != nil {
		return nil, core.Wrap(core.ErrProduce, "new video track", err)
	}
	return &LocalTrack{local: local, kind: domain.KindVideo}, nil
}

func (t *LocalTrack) ID() string             { return t.local.ID() }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *LocalTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Sample gives writers access to the underlying sample track.
func (t *LocalTrack) Sample() (*webrtc.TrackLocalStaticSample, bool) {
	s, ok := t.local.(*webrtc.TrackLocalStaticSample)
	return s, ok
}

// RemoteTrack is a consumer's sink. The underlying pion track arrives
// asynchronously once media flows; identity is known immediately.
type RemoteTrack struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	remote  *webrtc.TrackRemote
	stopped bool
}

func newRemoteTrack(id string, kind domain.MediaKind) *RemoteTrack {
	return &RemoteTrack{id: id, kind: kind}
}

func (t *RemoteTrack) ID() string             { return t.id }
func (t *RemoteTrack) Kind() domain.MediaKind { return t.kind }

func (t *RemoteTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// attach binds the pion track; reports false if already bound or stopped.
func (t *RemoteTrack) attach(remote *webrtc.TrackRemote) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.remote != nil {
		return false
	}
	t.remote = remote
	return true
}

// Remote returns the bound pion track, nil until media arrived.
func (t *RemoteTrack) Remote() *webrtc.TrackRemote {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}
