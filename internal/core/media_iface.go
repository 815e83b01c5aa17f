package core

import (
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Track is an opaque media source or sink. Capture and rendering live
// outside this module; the session only moves tracks around and stops them.
type Track interface {
	ID() string
	Kind() domain.MediaKind
	Stop()
}

// Device negotiates capabilities once and mints transports. One per session.
type Device interface {
	// Load validates the router capabilities against the local engine.
	// Loading twice is an error; idempotence is the negotiator's job.
	Load(caps protocol.RTPCapabilities) error
	Loaded() bool
	RTPCapabilities() protocol.RTPCapabilities
	CreateSendTransport(opts protocol.TransportOptions) (SendTransport, error)
	CreateRecvTransport(opts protocol.TransportOptions) (RecvTransport, error)
}

// DeviceFactory mints a fresh, unloaded Device.
type DeviceFactory func() (Device, error)

// Transport is one media-carrying path. The connect handshake is strictly
// two-phase: DTLSParameters() yields the local half, and CompleteConnect
// may only be called after the server acknowledged it.
type Transport interface {
	ID() string
	DTLSParameters() protocol.DTLSParameters
	CompleteConnect() error
	Closed() bool
	// Close invalidates every producer or consumer riding on the transport.
	Close()
}

// SendTransport publishes local tracks.
type SendTransport interface {
	Transport
	// Produce starts the local half of a produce handshake. The returned
	// pending handle holds the encoding parameters for the server; the
	// producer exists only once Commit is called with the server id.
	Produce(track Track) (PendingProducer, error)
}

// PendingProducer is a produce handshake awaiting its server-assigned id.
type PendingProducer interface {
	Kind() domain.MediaKind
	RTPParameters() protocol.RTPParameters
	Commit(serverID string) (Producer, error)
	// Abort releases the provisionally held sender.
	Abort()
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	Closed() bool
	Close()
}

// RecvTransport consumes remote producers. All consumers of a session
// multiplex over one instance.
type RecvTransport interface {
	Transport
	Consume(id, producerID string, kind domain.MediaKind, rtp protocol.RTPParameters) (Consumer, error)
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	Track() Track
	Closed() bool
	Close()
}
