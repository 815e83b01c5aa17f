package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// RemoteProducers returns the cached descriptor set. It is server state:
// stale the moment a producer-list push arrives.
func (s *Session) RemoteProducers() []domain.RemoteProducer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RemoteProducer(nil), s.remote...)
}

// RefreshRemoteProducers queries the server and reconciles local
// consumers against the fresh list.
func (s *Session) RefreshRemoteProducers(ctx context.Context) ([]domain.RemoteProducer, error) {
	return s.refreshRemoteProducers(ctx)
}

func (s *Session) refreshRemoteProducers(ctx context.Context) ([]domain.RemoteProducer, error) {
	raw, err := s.signal.Request(ctx, protocol.EventListProducers,
		protocol.ListProducersRequest{RoomID: string(s.RoomID())})
	if err != nil {
		return nil, core.Wrap(core.ErrConsume, "list producers", err)
	}
	var resp protocol.ListProducersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, core.Wrap(core.ErrConsume, "list producers", err)
	}
	if resp.Error != "" {
		return nil, core.Errorf(core.ErrConsume, "list producers", "server: %s", resp.Error)
	}
	return s.applyProducerList(resp.Producers), nil
}

// applyProducerList replaces the descriptor cache and closes consumers
// whose source producer disappeared, without touching the others. An
// empty set tears all consumption down.
func (s *Session) applyProducerList(infos []protocol.ProducerInfo) []domain.RemoteProducer {
	fresh := make([]domain.RemoteProducer, 0, len(infos))
	live := make(map[string]bool, len(infos))
	for _, info := range infos {
		kind, err := domain.ParseMediaKind(info.Kind)
		if err != nil {
			log.Warn().Str("module", "session").Str("producer", info.ProducerID).Str("kind", info.Kind).Msg("skipping producer with bad kind")
			continue
		}
		fresh = append(fresh, domain.RemoteProducer{
			Owner:      domain.ParticipantID(info.UserID),
			ProducerID: info.ProducerID,
			Kind:       kind,
		})
		live[info.ProducerID] = true
	}

	s.mu.Lock()
	s.remote = fresh
	var gone []core.Consumer
	for pid, c := range s.consumers {
		if !live[pid] {
			gone = append(gone, c)
			delete(s.consumers, pid)
			s.output.remove(pid)
		}
	}
	s.mu.Unlock()

	for _, c := range gone {
		log.Info().Str("module", "session").Str("producer", c.ProducerID()).Msg("source producer gone, consumer closed")
		c.Close()
	}
	if len(fresh) == 0 {
		s.UnsubscribeAll()
	}

	s.notifyProducersChanged(fresh)
	return fresh
}

// Subscribe consumes one remote producer over the shared receive
// transport, opening it lazily on first use. The resulting track merges
// into the composite output. Subscribing to an already consumed producer
// returns the existing consumer.
func (s *Session) Subscribe(ctx context.Context, producerID string) (core.Consumer, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.subscribe(ctx, producerID)
}

func (s *Session) subscribe(ctx context.Context, producerID string) (core.Consumer, error) {
	if !s.capabilitiesReady() {
		return nil, core.Errorf(core.ErrConsume, "subscribe", "capabilities not loaded")
	}

	s.mu.Lock()
	var desc *domain.RemoteProducer
	for i := range s.remote {
		if s.remote[i].ProducerID == producerID {
			desc = &s.remote[i]
			break
		}
	}
	if desc == nil {
		s.mu.Unlock()
		return nil, core.Errorf(core.ErrConsume, "subscribe "+producerID, "unknown producer")
	}
	if desc.Owner != "" && desc.Owner == s.selfID {
		s.mu.Unlock()
		return nil, core.Errorf(core.ErrConsume, "subscribe "+producerID, "refusing to consume own producer")
	}
	if c, ok := s.consumers[producerID]; ok && !c.Closed() {
		s.mu.Unlock()
		return c, nil
	}
	device := s.device
	s.mu.Unlock()

	t, err := s.openRecvTransport(ctx)
	if err != nil {
		return nil, err
	}

	req := protocol.ConsumeRequest{
		ProducerID:      producerID,
		RoomID:          string(s.RoomID()),
		RTPCapabilities: device.RTPCapabilities(),
	}
	raw, err := s.signal.Request(ctx, protocol.EventConsume, req)
	if err != nil {
		return nil, core.Wrap(core.ErrConsume, "consume "+producerID, err)
	}
	var resp protocol.ConsumeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, core.Wrap(core.ErrConsume, "consume "+producerID, err)
	}
	if resp.Error != "" {
		return nil, core.Errorf(core.ErrConsume, "consume "+producerID, "server: %s", resp.Error)
	}
	kind, err := domain.ParseMediaKind(resp.Kind)
	if err != nil {
		return nil, core.Wrap(core.ErrConsume, "consume "+producerID, err)
	}
	srcID := resp.ProducerID
	if srcID == "" {
		srcID = producerID
	}

	c, err := t.Consume(resp.ID, srcID, kind, resp.RTPParameters)
	if err != nil {
		return nil, err
	}

	// Re-verify before registration: a producer-list push may have torn
	// consumption down while the consume handshake was in flight.
	s.mu.Lock()
	stillListed := false
	for i := range s.remote {
		if s.remote[i].ProducerID == producerID {
			stillListed = true
			break
		}
	}
	if s.closed || !stillListed || s.recv != t || t.Closed() {
		s.mu.Unlock()
		c.Close()
		return nil, core.Errorf(core.ErrConsume, "consume "+producerID, "producer went away during handshake")
	}
	s.consumers[producerID] = c
	s.output.add(producerID, c.Track())
	s.mu.Unlock()

	log.Info().Str("module", "session").Str("producer", producerID).Str("consumer", c.ID()).Msg("subscribed")
	return c, nil
}

// SubscribeAll subscribes to every cached remote producer not owned by
// this participant. Per-producer failures do not stop the sweep.
func (s *Session) SubscribeAll(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	self := s.SelfID()
	var errs []error
	for _, r := range s.RemoteProducers() {
		if r.Owner != "" && r.Owner == self {
			continue
		}
		if _, err := s.subscribe(ctx, r.ProducerID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return core.Wrap(core.ErrConsume, "subscribe all", errors.Join(errs...))
	}
	return nil
}

// UnsubscribeAll stops every consumer, removes their tracks from the
// composite output, closes the receive transport and clears the
// descriptor cache. Idempotent.
func (s *Session) UnsubscribeAll() {
	s.mu.Lock()
	consumers := s.consumers
	s.consumers = make(map[string]core.Consumer)
	s.remote = nil
	s.mu.Unlock()

	for pid, c := range consumers {
		c.Close()
		s.output.remove(pid)
	}
	s.closeRecvTransport()
	if len(consumers) > 0 {
		log.Info().Str("module", "session").Int("consumers", len(consumers)).Msg("unsubscribed all")
	}
}

// Consumers returns a snapshot of live consumers keyed by source producer.
func (s *Session) Consumers() map[string]core.Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.Consumer, len(s.consumers))
	for pid, c := range s.consumers {
		out[pid] = c
	}
	return out
}
