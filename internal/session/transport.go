package session

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Transport management. The session is the sole owner allowed to close
// transports outright; coordinators only ask for them.

// openSendTransport replaces and closes any previous send transport, then
// runs the three-step handshake. On any failure no transport is left
// registered on the session.
func (s *Session) openSendTransport(ctx context.Context) (core.SendTransport, error) {
	s.closeSendTransport()

	opts, err := s.requestTransport(ctx, protocol.EventCreateProducerTransport)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	t, err := device.CreateSendTransport(opts)
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "create send transport", err)
	}
	if err := s.connectTransport(ctx, protocol.EventConnectProducerTransport, t); err != nil {
		t.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Close()
		return nil, core.Errorf(core.ErrTransport, "send transport", "session closed")
	}
	s.send = t
	return t, nil
}

// openRecvTransport opens the receive transport lazily and reuses it:
// every subscription multiplexes over the same inbound path.
func (s *Session) openRecvTransport(ctx context.Context) (core.RecvTransport, error) {
	s.mu.Lock()
	if s.recv != nil && !s.recv.Closed() {
		t := s.recv
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	opts, err := s.requestTransport(ctx, protocol.EventCreateConsumerTransport)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	t, err := device.CreateRecvTransport(opts)
	if err != nil {
		return nil, core.Wrap(core.ErrTransport, "create recv transport", err)
	}
	if err := s.connectTransport(ctx, protocol.EventConnectConsumerTransport, t); err != nil {
		t.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Close()
		return nil, core.Errorf(core.ErrTransport, "recv transport", "session closed")
	}
	s.recv = t
	return t, nil
}

func (s *Session) requestTransport(ctx context.Context, event string) (protocol.TransportOptions, error) {
	if !s.capabilitiesReady() {
		return protocol.TransportOptions{}, core.Errorf(core.ErrTransport, event, "capabilities not loaded")
	}
	raw, err := s.signal.Request(ctx, event, protocol.CreateTransportRequest{RoomID: string(s.RoomID())})
	if err != nil {
		return protocol.TransportOptions{}, core.Wrap(core.ErrTransport, event, err)
	}
	var opts protocol.TransportOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		return protocol.TransportOptions{}, core.Wrap(core.ErrTransport, event, err)
	}
	if opts.Error != "" {
		return protocol.TransportOptions{}, core.Errorf(core.ErrTransport, event, "server: %s", opts.Error)
	}
	return opts, nil
}

// connectTransport completes the handshake strictly two-phase: the local
// side is finished only after the server acknowledged the parameters.
func (s *Session) connectTransport(ctx context.Context, event string, t core.Transport) error {
	req := protocol.ConnectTransportRequest{
		DTLSParameters: t.DTLSParameters(),
		RoomID:         string(s.RoomID()),
	}
	raw, err := s.signal.Request(ctx, event, req)
	if err != nil {
		return core.Wrap(core.ErrTransport, event, err)
	}
	var ack protocol.Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		return core.Wrap(core.ErrTransport, event, err)
	}
	if ack.Error != "" {
		return core.Errorf(core.ErrTransport, event, "server: %s", ack.Error)
	}
	if err := t.CompleteConnect(); err != nil {
		return core.Wrap(core.ErrTransport, event, err)
	}
	return nil
}

// closeSendTransport is idempotent. Producers riding on the transport are
// invalidated by its closure and dropped here.
func (s *Session) closeSendTransport() {
	s.mu.Lock()
	t := s.send
	s.send = nil
	producers := s.producers
	s.producers = make(map[string]core.Producer)
	s.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	if t != nil {
		t.Close()
		log.Debug().Str("module", "session").Str("transport", t.ID()).Msg("send transport closed")
	}
}

func (s *Session) closeRecvTransport() {
	s.mu.Lock()
	t := s.recv
	s.recv = nil
	s.mu.Unlock()

	if t != nil {
		t.Close()
		log.Debug().Str("module", "session").Str("transport", t.ID()).Msg("recv transport closed")
	}
}
