// Package media adapts pion/webrtc to the session's device and transport
// boundary. The session never touches a PeerConnection directly.
package media

import (
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Device holds the capability set negotiated for one session. It is a
// session field, never shared between sessions.
type Device struct {
	mu     sync.Mutex
	loaded bool
	caps   protocol.RTPCapabilities
	api    *webrtc.API
}

// NewDevice is a core.DeviceFactory.
func NewDevice() (core.Device, error) {
	return &Device{}, nil
}

func (d *Device) Load(caps protocol.RTPCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return core.Errorf(core.ErrNegotiation, "load", "device already loaded")
	}
	if len(caps.Codecs) == 0 {
		return core.Errorf(core.ErrNegotiation, "load", "empty codec set")
	}

	engine := &webrtc.MediaEngine{}
	dynPT := uint8(96)
	for _, c := range caps.Codecs {
		var typ webrtc.RTPCodecType
		switch {
		case c.Kind == "audio" && strings.HasPrefix(c.MimeType, "audio/"):
			typ = webrtc.RTPCodecTypeAudio
		case c.Kind == "video" && strings.HasPrefix(c.MimeType, "video/"):
			typ = webrtc.RTPCodecTypeVideo
		default:
			return core.Errorf(core.ErrNegotiation, "load", "codec %q does not match kind %q", c.MimeType, c.Kind)
		}
		if c.ClockRate == 0 {
			return core.Errorf(core.ErrNegotiation, "load", "codec %q has no clock rate", c.MimeType)
		}
		pt := c.PreferredPayloadType
		if pt == 0 {
			pt = dynPT
			dynPT++
		}
		err := engine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  c.MimeType,
				ClockRate: c.ClockRate,
				Channels:  c.Channels,
			},
			PayloadType: webrtc.PayloadType(pt),
		}, typ)
		if err != nil {
			return core.Wrap(core.ErrNegotiation, "register codec "+c.MimeType, err)
		}
	}

	d.api = webrtc.NewAPI(webrtc.WithMediaEngine(engine))
	d.caps = caps
	d.loaded = true
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Device) RTPCapabilities() protocol.RTPCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *Device) CreateSendTransport(opts protocol.TransportOptions) (core.SendTransport, error) {
	t, err := d.newTransport(opts, directionSend)
	if err != nil {
		return nil, err
	}
	return &sendTransport{transport: t}, nil
}

func (d *Device) CreateRecvTransport(opts protocol.TransportOptions) (core.RecvTransport, error) {
	t, err := d.newTransport(opts, directionRecv)
	if err != nil {
		return nil, err
	}
	rt := &recvTransport{transport: t}
	rt.bindTrackRouting()
	return rt, nil
}
