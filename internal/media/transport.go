package media

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/protocol"
)

type direction uint8

const (
	directionSend direction = iota + 1
	directionRecv
)

// transport wraps one PeerConnection. The server side of the handshake is
// the session's job; CompleteConnect is refused until then.
type transport struct {
	id  string
	dir direction
	pc  *webrtc.PeerConnection

	dtls protocol.DTLSParameters

	mu        sync.Mutex
	connected bool
	closed    bool
	children  []invalidatable
}

type invalidatable interface{ invalidate() }

func (d *Device) newTransport(opts protocol.TransportOptions, dir direction) (*transport, error) {
	d.mu.Lock()
	api := d.api
	loaded := d.loaded
	d.mu.Unlock()
	if !loaded {
		return nil, core.Errorf(core.ErrTransport, "create transport", "device not loaded")
	}
	if opts.ID == "" {
		return nil, core.Errorf(core.ErrTransport, "create transport", "missing transport id")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "generate certificate", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "generate certificate", err)
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "fingerprints", err)
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		Certificates: []webrtc.Certificate{*cert},
	})
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "new peer connection", err)
	}

	dtls := protocol.DTLSParameters{Role: "client"}
	for _, fp := range fps {
		dtls.Fingerprints = append(dtls.Fingerprints, protocol.DTLSFingerprint{
			Algorithm: fp.Algorithm,
			Value:     fp.Value,
		})
	}

	t := &transport{id: opts.ID, dir: dir, pc: pc, dtls: dtls}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "media").Str("transport", t.id).Str("state", s.String()).Msg("peer state")
	})
	return t, nil
}

func (t *transport) ID() string { return t.id }

func (t *transport) DTLSParameters() protocol.DTLSParameters { return t.dtls }

func (t *transport) CompleteConnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Errorf(core.ErrTransport, "connect", "transport closed")
	}
	t.connected = true
	return nil
}

func (t *transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close invalidates every child synchronously before the PeerConnection
// goes down, so nothing observes a half-dead transport.
func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	children := t.children
	t.children = nil
	t.mu.Unlock()

	for _, c := range children {
		c.invalidate()
	}
	if err := t.pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "media").Str("transport", t.id).Msg("close")
	}
}

func (t *transport) adopt(c invalidatable) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children = append(t.children, c)
}

func (t *transport) ready() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Errorf(core.ErrTransport, "transport "+t.id, "closed")
	}
	if !t.connected {
		return core.Errorf(core.ErrTransport, "transport "+t.id, "handshake not acknowledged")
	}
	return nil
}
