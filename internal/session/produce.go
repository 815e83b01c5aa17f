package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/protocol"
)

// StartPublishing turns local tracks into producers on the send
// transport. Tracks are produced concurrently; each produce request is
// correlated to its acknowledgement independently, so responses may
// arrive in any order. A failed track aborts only itself: successfully
// produced siblings stay active, and the per-track errors come back
// joined. Re-entrant calls while publishing are no-ops.
func (s *Session) StartPublishing(ctx context.Context, tracks ...core.Track) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.capabilitiesReady() {
		return core.Errorf(core.ErrProduce, "publish", "capabilities not loaded")
	}
	s.mu.Lock()
	if s.publishing {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	if len(tracks) == 0 {
		return core.Errorf(core.ErrProduce, "publish", "no tracks")
	}

	t, err := s.openSendTransport(ctx)
	if err != nil {
		return err
	}

	type result struct {
		producer core.Producer
		err      error
	}
	results := make([]result, len(tracks))
	done := make(chan int, len(tracks))
	for i, track := range tracks {
		go func(i int, track core.Track) {
			p, err := s.produceTrack(ctx, t, track)
			results[i] = result{producer: p, err: err}
			done <- i
		}(i, track)
	}
	for range tracks {
		<-done
	}

	var errs []error
	var produced []core.Producer
	s.mu.Lock()
	for i, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if s.closed {
			s.mu.Unlock()
			r.producer.Close()
			s.mu.Lock()
			continue
		}
		s.producers[r.producer.ID()] = r.producer
		s.localTracks = append(s.localTracks, tracks[i])
		produced = append(produced, r.producer)
	}
	s.publishing = len(produced) > 0
	s.mu.Unlock()

	if len(produced) == 0 {
		s.closeSendTransport()
		return core.Wrap(core.ErrProduce, "publish", errors.Join(errs...))
	}
	log.Info().Str("module", "session").Int("producers", len(produced)).Msg("publishing")
	if len(errs) > 0 {
		return core.Wrap(core.ErrProduce, "publish (partial)", errors.Join(errs...))
	}
	return nil
}

// produceTrack runs one produce handshake: local half first, then the
// server request; the producer exists only once the server-assigned id
// addressed to this request's token came back.
func (s *Session) produceTrack(ctx context.Context, t core.SendTransport, track core.Track) (core.Producer, error) {
	pending, err := t.Produce(track)
	if err != nil {
		return nil, err
	}

	req := protocol.ProduceRequest{
		Kind:          string(pending.Kind()),
		RTPParameters: pending.RTPParameters(),
		RoomID:        string(s.RoomID()),
	}
	raw, err := s.signal.Request(ctx, protocol.EventProduce, req)
	if err != nil {
		pending.Abort()
		return nil, core.Wrap(core.ErrProduce, "produce "+track.ID(), err)
	}
	var resp protocol.ProduceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		pending.Abort()
		return nil, core.Wrap(core.ErrProduce, "produce "+track.ID(), err)
	}
	if resp.Error != "" {
		pending.Abort()
		return nil, core.Errorf(core.ErrProduce, "produce "+track.ID(), "server: %s", resp.Error)
	}
	if resp.ID == "" {
		pending.Abort()
		return nil, core.Errorf(core.ErrProduce, "produce "+track.ID(), "response carried no producer id")
	}
	return pending.Commit(resp.ID)
}

// StopPublishing closes every producer, stops the local tracks and
// notifies the server. It always succeeds locally; a failed notification
// only means the room's producer list lags until the server notices.
func (s *Session) StopPublishing(ctx context.Context) error {
	_ = ctx
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if !s.publishing {
		s.mu.Unlock()
		return nil
	}
	s.publishing = false
	tracks := s.localTracks
	s.localTracks = nil
	roomID := s.roomID
	s.mu.Unlock()

	s.closeSendTransport()
	for _, t := range tracks {
		t.Stop()
	}
	if err := s.signal.Notify(protocol.EventStopProducing, protocol.StopProducingRequest{RoomID: string(roomID)}); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("stopProducing notify failed")
	}
	log.Info().Str("module", "session").Msg("publishing stopped")
	return nil
}

// Publishing reports whether at least one producer is live.
func (s *Session) Publishing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishing
}

// Producers returns a snapshot of live producers keyed by server id.
func (s *Session) Producers() []core.Producer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Producer, 0, len(s.producers))
	for _, p := range s.producers {
		out = append(out, p)
	}
	return out
}
