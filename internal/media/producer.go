package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

type sendTransport struct {
	*transport
}

func (t *sendTransport) Produce(track core.Track) (core.PendingProducer, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	lt, ok := track.(*LocalTrack)
	if !ok {
		return nil, core.Errorf(core.ErrProduce, "produce", "track %q was not created by this engine", track.ID())
	}

	sender, err := t.pc.AddTrack(lt.local)
	if err != nil {
		return nil, core.Wrap(core.ErrProduce, "add track "+track.ID(), err)
	}
	return &pendingProducer{
		t:      t.transport,
		kind:   track.Kind(),
		sender: sender,
		params: fromSendParameters(sender.GetParameters()),
	}, nil
}

type pendingProducer struct {
	t      *transport
	kind   domain.MediaKind
	sender *webrtc.RTPSender
	params protocol.RTPParameters
	done   bool
}

func (p *pendingProducer) Kind() domain.MediaKind                { return p.kind }
func (p *pendingProducer) RTPParameters() protocol.RTPParameters { return p.params }

func (p *pendingProducer) Commit(serverID string) (core.Producer, error) {
	if p.done {
		return nil, core.Errorf(core.ErrProduce, "commit", "handshake already finished")
	}
	p.done = true
	if p.t.Closed() {
		_ = p.sender.Stop()
		return nil, core.Errorf(core.ErrProduce, "commit", "transport closed during handshake")
	}
	prod := &producer{id: serverID, kind: p.kind, t: p.t, sender: p.sender}
	p.t.adopt(prod)
	return prod, nil
}

// Abort releases the provisionally added sender when the server rejected
// the produce request or the wait for its id was cancelled.
func (p *pendingProducer) Abort() {
	if p.done {
		return
	}
	p.done = true
	if err := p.t.pc.RemoveTrack(p.sender); err != nil {
		log.Debug().Err(err).Str("module", "media").Msg("abort produce")
	}
}

type producer struct {
	id     string
	kind   domain.MediaKind
	t      *transport
	sender *webrtc.RTPSender

	mu     sync.Mutex
	closed bool
}

func (p *producer) ID() string             { return p.id }
func (p *producer) Kind() domain.MediaKind { return p.kind }

func (p *producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	if err := p.t.pc.RemoveTrack(p.sender); err != nil {
		log.Debug().Err(err).Str("module", "media").Str("producer", p.id).Msg("remove track")
	}
}

func (p *producer) invalidate() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func fromSendParameters(sp webrtc.RTPSendParameters) protocol.RTPParameters {
	out := protocol.RTPParameters{}
	for _, c := range sp.Codecs {
		out.Codecs = append(out.Codecs, protocol.RTPCodecParameters{
			MimeType:    c.MimeType,
			PayloadType: uint8(c.PayloadType),
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
		})
	}
	for _, e := range sp.Encodings {
		out.Encodings = append(out.Encodings, protocol.RTPEncoding{
			SSRC: uint32(e.SSRC),
			RID:  e.RID,
		})
	}
	return out
}
