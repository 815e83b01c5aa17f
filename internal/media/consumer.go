package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

type recvTransport struct {
	*transport

	cmu       sync.Mutex
	consumers []*consumer
}

// bindTrackRouting attaches arriving remote tracks to the consumer that
// is still waiting for one of the same kind.
func (t *recvTransport) bindTrackRouting() {
	t.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind, err := domain.ParseMediaKind(remote.Kind().String())
		if err != nil {
			return
		}
		t.cmu.Lock()
		defer t.cmu.Unlock()
		for _, c := range t.consumers {
			if c.Kind() == kind && c.track.attach(remote) {
				log.Debug().Str("module", "media").Str("consumer", c.id).Str("track", remote.ID()).Msg("track bound")
				return
			}
		}
		log.Debug().Str("module", "media").Str("kind", string(kind)).Msg("track with no consumer")
	})
}

func (t *recvTransport) Consume(id, producerID string, kind domain.MediaKind, rtp protocol.RTPParameters) (core.Consumer, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, core.Errorf(core.ErrConsume, "consume "+producerID, "bad kind %q", kind)
	}
	if len(rtp.Codecs) == 0 {
		return nil, core.Errorf(core.ErrConsume, "consume "+producerID, "no codecs offered")
	}

	codecType := webrtc.RTPCodecTypeAudio
	if kind == domain.KindVideo {
		codecType = webrtc.RTPCodecTypeVideo
	}
	_, err := t.pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return nil, core.Wrap(core.ErrConsume, "consume "+producerID, err)
	}

	c := &consumer{
		id:         id,
		producerID: producerID,
		kind:       kind,
		t:          t.transport,
		track:      newRemoteTrack(id, kind),
	}
	t.cmu.Lock()
	t.consumers = append(t.consumers, c)
	t.cmu.Unlock()
	t.adopt(c)
	return c, nil
}

type consumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	t          *transport
	track      *RemoteTrack

	mu     sync.Mutex
	closed bool
}

func (c *consumer) ID() string             { return c.id }
func (c *consumer) ProducerID() string     { return c.producerID }
func (c *consumer) Kind() domain.MediaKind { return c.kind }
func (c *consumer) Track() core.Track      { return c.track }

func (c *consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.track.Stop()
}

func (c *consumer) invalidate() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.track.Stop()
}
