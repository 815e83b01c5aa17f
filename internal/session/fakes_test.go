package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// fakeSignal answers requests synchronously from per-event responders,
// which tests override to script failures and response ordering.
type fakeSignal struct {
	mu         sync.Mutex
	responders map[string]func(json.RawMessage) (any, error)
	requests   []string
	notifies   []string
	events     chan core.Event
	closed     bool
}

func newFakeSignal() *fakeSignal {
	f := &fakeSignal{
		responders: make(map[string]func(json.RawMessage) (any, error)),
		events:     make(chan core.Event, 32),
	}
	f.respond(protocol.EventCreateRoom, func(json.RawMessage) (any, error) {
		return protocol.RoomResponse{RoomID: "r1", UserID: "self"}, nil
	})
	f.respond(protocol.EventJoinRoom, func(raw json.RawMessage) (any, error) {
		var req protocol.JoinRoomRequest
		_ = json.Unmarshal(raw, &req)
		return protocol.RoomResponse{RoomID: req.RoomID, UserID: "self"}, nil
	})
	f.respond(protocol.EventGetRouterRtpCapabilities, func(json.RawMessage) (any, error) {
		return protocol.RouterCapabilitiesResponse{RTPCapabilities: testCapabilities()}, nil
	})
	transportSeq := 0
	newTransport := func(json.RawMessage) (any, error) {
		transportSeq++
		return protocol.TransportOptions{
			ID: fmt.Sprintf("t-%d", transportSeq),
			DTLSParameters: protocol.DTLSParameters{
				Fingerprints: []protocol.DTLSFingerprint{{Algorithm: "sha-256", Value: "00:11"}},
			},
		}, nil
	}
	f.respond(protocol.EventCreateProducerTransport, newTransport)
	f.respond(protocol.EventCreateConsumerTransport, newTransport)
	ack := func(json.RawMessage) (any, error) { return protocol.Ack{}, nil }
	f.respond(protocol.EventConnectProducerTransport, ack)
	f.respond(protocol.EventConnectConsumerTransport, ack)
	produceSeq := 0
	f.respond(protocol.EventProduce, func(raw json.RawMessage) (any, error) {
		var req protocol.ProduceRequest
		_ = json.Unmarshal(raw, &req)
		produceSeq++
		return protocol.ProduceResponse{ID: fmt.Sprintf("prod-%s-%d", req.Kind, produceSeq)}, nil
	})
	f.respond(protocol.EventConsume, func(raw json.RawMessage) (any, error) {
		var req protocol.ConsumeRequest
		_ = json.Unmarshal(raw, &req)
		return protocol.ConsumeResponse{
			ID:            "cons-" + req.ProducerID,
			ProducerID:    req.ProducerID,
			Kind:          "video",
			RTPParameters: protocol.RTPParameters{Codecs: []protocol.RTPCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}}},
		}, nil
	})
	f.respond(protocol.EventListProducers, func(json.RawMessage) (any, error) {
		return protocol.ListProducersResponse{Producers: []protocol.ProducerInfo{}}, nil
	})
	return f
}

func (f *fakeSignal) respond(event string, fn func(json.RawMessage) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[event] = fn
}

func (f *fakeSignal) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, core.Wrap(core.ErrSignaling, event, err)
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, core.Wrap(core.ErrSignaling, event, core.ErrChannelClosed)
	}
	f.requests = append(f.requests, event)
	fn := f.responders[event]
	f.mu.Unlock()
	if fn == nil {
		return nil, core.Errorf(core.ErrSignaling, event, "no responder")
	}
	resp, err := fn(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (f *fakeSignal) Notify(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.Wrap(core.ErrSignaling, event, core.ErrChannelClosed)
	}
	f.notifies = append(f.notifies, event)
	return nil
}

func (f *fakeSignal) Events() <-chan core.Event { return f.events }

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
}

func (f *fakeSignal) push(event string, payload any) {
	data, _ := json.Marshal(payload)
	f.events <- core.Event{Type: event, Data: data}
}

func (f *fakeSignal) notified(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifies {
		if n == event {
			return true
		}
	}
	return false
}

func (f *fakeSignal) requestCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == event {
			n++
		}
	}
	return n
}

func testCapabilities() protocol.RTPCapabilities {
	return protocol.RTPCapabilities{
		Codecs: []protocol.RTPCodecCapability{
			{Kind: "audio", MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
			{Kind: "video", MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
		},
	}
}

// fake media engine

type fakeTrack struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	stopped bool
}

func newFakeTrack(id string, kind domain.MediaKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeDevice struct {
	mu          sync.Mutex
	loaded      bool
	caps        protocol.RTPCapabilities
	sends       []*fakeSendTransport
	recvs       []*fakeRecvTransport
	consumeGate func()
}

func (d *fakeDevice) factory() (core.Device, error) { return d, nil }

func (d *fakeDevice) Load(caps protocol.RTPCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return core.Errorf(core.ErrNegotiation, "load", "already loaded")
	}
	if len(caps.Codecs) == 0 {
		return core.Errorf(core.ErrNegotiation, "load", "empty codec set")
	}
	d.caps = caps
	d.loaded = true
	return nil
}

func (d *fakeDevice) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *fakeDevice) RTPCapabilities() protocol.RTPCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *fakeDevice) CreateSendTransport(opts protocol.TransportOptions) (core.SendTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, core.Errorf(core.ErrTransport, "create", "device not loaded")
	}
	t := &fakeSendTransport{fakeTransport: fakeTransport{id: opts.ID}}
	d.sends = append(d.sends, t)
	return t, nil
}

func (d *fakeDevice) CreateRecvTransport(opts protocol.TransportOptions) (core.RecvTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, core.Errorf(core.ErrTransport, "create", "device not loaded")
	}
	t := &fakeRecvTransport{fakeTransport: fakeTransport{id: opts.ID}, gate: d.consumeGate}
	d.recvs = append(d.recvs, t)
	return t, nil
}

type fakeTransport struct {
	id string

	mu         sync.Mutex
	connected  bool
	closed     bool
	closeCalls int
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) DTLSParameters() protocol.DTLSParameters {
	return protocol.DTLSParameters{
		Role:         "client",
		Fingerprints: []protocol.DTLSFingerprint{{Algorithm: "sha-256", Value: "aa:bb"}},
	}
}

func (t *fakeTransport) CompleteConnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Errorf(core.ErrTransport, "connect", "closed")
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCalls++
	t.closed = true
}

func (t *fakeTransport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

func (t *fakeTransport) ready() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Errorf(core.ErrTransport, "transport "+t.id, "closed")
	}
	if !t.connected {
		return core.Errorf(core.ErrTransport, "transport "+t.id, "not connected")
	}
	return nil
}

type fakeSendTransport struct {
	fakeTransport

	pmu       sync.Mutex
	producers []*fakeProducer
	aborted   int
}

func (t *fakeSendTransport) Produce(track core.Track) (core.PendingProducer, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	return &fakePending{t: t, track: track}, nil
}

func (t *fakeSendTransport) Aborted() int {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return t.aborted
}

func (t *fakeSendTransport) Producers() []*fakeProducer {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	return append([]*fakeProducer(nil), t.producers...)
}

type fakePending struct {
	t     *fakeSendTransport
	track core.Track
}

func (p *fakePending) Kind() domain.MediaKind { return p.track.Kind() }

func (p *fakePending) RTPParameters() protocol.RTPParameters {
	return protocol.RTPParameters{
		Codecs:    []protocol.RTPCodecParameters{{MimeType: string(p.track.Kind()) + "/fake", PayloadType: 96, ClockRate: 90000}},
		Encodings: []protocol.RTPEncoding{{SSRC: 42}},
	}
}

func (p *fakePending) Commit(serverID string) (core.Producer, error) {
	if p.t.Closed() {
		return nil, core.Errorf(core.ErrProduce, "commit", "transport closed")
	}
	prod := &fakeProducer{id: serverID, kind: p.track.Kind()}
	p.t.pmu.Lock()
	p.t.producers = append(p.t.producers, prod)
	p.t.pmu.Unlock()
	return prod, nil
}

func (p *fakePending) Abort() {
	p.t.pmu.Lock()
	defer p.t.pmu.Unlock()
	p.t.aborted++
}

type fakeProducer struct {
	id   string
	kind domain.MediaKind

	mu         sync.Mutex
	closed     bool
	closeCalls int
}

func (p *fakeProducer) ID() string             { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }

func (p *fakeProducer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	p.closed = true
}

func (p *fakeProducer) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

type fakeRecvTransport struct {
	fakeTransport
	gate func()

	cmu       sync.Mutex
	consumers []*fakeConsumer
}

func (t *fakeRecvTransport) Consume(id, producerID string, kind domain.MediaKind, rtp protocol.RTPParameters) (core.Consumer, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if len(rtp.Codecs) == 0 {
		return nil, core.Errorf(core.ErrConsume, "consume "+producerID, "no codecs")
	}
	if t.gate != nil {
		t.gate()
	}
	c := &fakeConsumer{id: id, producerID: producerID, kind: kind, track: newFakeTrack("rt-"+id, kind)}
	t.cmu.Lock()
	t.consumers = append(t.consumers, c)
	t.cmu.Unlock()
	return c, nil
}

func (t *fakeRecvTransport) Consumers() []*fakeConsumer {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	return append([]*fakeConsumer(nil), t.consumers...)
}

type fakeConsumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	track      *fakeTrack

	mu     sync.Mutex
	closed bool
}

func (c *fakeConsumer) ID() string             { return c.id }
func (c *fakeConsumer) ProducerID() string     { return c.producerID }
func (c *fakeConsumer) Kind() domain.MediaKind { return c.kind }
func (c *fakeConsumer) Track() core.Track      { return c.track }

func (c *fakeConsumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.track.Stop()
}
