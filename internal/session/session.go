// Package session implements the client-side coordinator for one
// participant in one room: capability negotiation, transport lifecycle,
// produce/consume handshakes and deterministic teardown.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Options tune one session. Zero value is usable.
type Options struct {
	// OnError receives server error pushes and other asynchronous
	// failures that do not belong to any in-progress call.
	OnError func(error)
	// OnProducersChanged fires after the remote producer cache was
	// replaced by a push or refresh.
	OnProducersChanged func([]domain.RemoteProducer)
}

// Session owns every resource of one logical participant. Destroying it
// cascades to transports, producers, consumers and local tracks, exactly
// once regardless of which exit path fires first.
type Session struct {
	signal    core.SignalChannel
	newDevice core.DeviceFactory
	opts      Options

	// opMu serializes compound operations (join, publish, subscribe).
	// Teardown deliberately does not take it so a racing disconnect can
	// never deadlock behind an in-flight operation.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	closed      bool
	roomID      domain.RoomID
	selfID      domain.ParticipantID
	device      core.Device
	send        core.SendTransport
	recv        core.RecvTransport
	publishing  bool
	producers   map[string]core.Producer
	localTracks []core.Track
	consumers   map[string]core.Consumer
	remote      []domain.RemoteProducer

	output *Output

	teardown sync.Once
	done     chan struct{}
}

func New(signal core.SignalChannel, newDevice core.DeviceFactory, opts Options) *Session {
	s := &Session{
		signal:    signal,
		newDevice: newDevice,
		opts:      opts,
		state:     StateConnectedNoRoom,
		producers: make(map[string]core.Producer),
		consumers: make(map[string]core.Consumer),
		output:    newOutput(),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RoomID() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) SelfID() domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Output is the composite stream all consumer tracks merge into.
func (s *Session) Output() *Output { return s.output }

// Done closes when the session reached its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	log.Debug().Str("module", "session").Str("from", s.state.String()).Str("to", st.String()).Msg("transition")
	s.state = st
	metrics.SessionTransitions.WithLabelValues(st.String()).Inc()
}

// CreateRoom connects this session as the publisher of a fresh room. An
// empty id asks for a generated channel id.
func (s *Session) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	return s.enterRoom(ctx, protocol.EventCreateRoom, protocol.CreateRoomRequest{})
}

// JoinRoom connects this session to an existing room.
func (s *Session) JoinRoom(ctx context.Context, roomID domain.RoomID) (domain.RoomID, error) {
	return s.enterRoom(ctx, protocol.EventJoinRoom, protocol.JoinRoomRequest{RoomID: string(roomID)})
}

func (s *Session) enterRoom(ctx context.Context, event string, payload any) (domain.RoomID, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateConnectedNoRoom {
		st := s.state
		s.mu.Unlock()
		return "", core.Errorf(core.ErrSignaling, event, "invalid state %s", st)
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	raw, err := s.signal.Request(ctx, event, payload)
	if err != nil {
		s.teardownOnce("room entry failed")
		return "", err
	}
	var resp protocol.RoomResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.teardownOnce("malformed room response")
		return "", core.Wrap(core.ErrSignaling, event, err)
	}
	if resp.Error != "" {
		// Server refused; the half-open connection is discarded.
		s.teardownOnce("server refused room entry")
		return "", core.Errorf(core.ErrSignaling, event, "server: %s", resp.Error)
	}
	if resp.RoomID == "" {
		s.teardownOnce("room response without id")
		return "", core.Errorf(core.ErrSignaling, event, "response carried no room id")
	}

	s.mu.Lock()
	s.roomID = domain.RoomID(resp.RoomID)
	s.selfID = domain.ParticipantID(resp.UserID)
	s.setStateLocked(StateInRoom)
	s.mu.Unlock()

	if err := s.loadCapabilities(ctx); err != nil {
		return s.RoomID(), err
	}
	if _, err := s.refreshRemoteProducers(ctx); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("initial producer list")
	}
	return s.RoomID(), nil
}

// Leave tears the session down. Safe to call concurrently with a pushed
// disconnect; the cascade runs exactly once.
func (s *Session) Leave(ctx context.Context) error {
	_ = ctx
	s.teardownOnce("leave")
	return nil
}

func (s *Session) teardownOnce(reason string) {
	s.teardown.Do(func() {
		log.Info().Str("module", "session").Str("reason", reason).Msg("teardown")

		s.mu.Lock()
		s.closed = true
		s.setStateLocked(StateLeaving)
		wasPublishing := s.publishing
		s.publishing = false
		producers := s.producers
		s.producers = make(map[string]core.Producer)
		tracks := s.localTracks
		s.localTracks = nil
		consumers := s.consumers
		s.consumers = make(map[string]core.Consumer)
		send, recv := s.send, s.recv
		s.send, s.recv = nil, nil
		s.remote = nil
		roomID := s.roomID
		s.mu.Unlock()

		for _, p := range producers {
			p.Close()
		}
		for _, t := range tracks {
			t.Stop()
		}
		if wasPublishing {
			// Best effort; local state is the source of truth.
			if err := s.signal.Notify(protocol.EventStopProducing, protocol.StopProducingRequest{RoomID: string(roomID)}); err != nil {
				log.Debug().Err(err).Str("module", "session").Msg("stopProducing notify")
			}
		}
		if send != nil {
			send.Close()
		}
		for pid, c := range consumers {
			c.Close()
			s.output.remove(pid)
		}
		if recv != nil {
			recv.Close()
		}
		s.signal.Close()

		s.mu.Lock()
		s.setStateLocked(StateDisconnected)
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) surface(err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}
