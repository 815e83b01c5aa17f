package session

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// loop drains the inbound event queue one message at a time, preserving
// channel delivery order. It ends when the signal channel is gone.
func (s *Session) loop() {
	for ev := range s.signal.Events() {
		s.handleEvent(ev)
	}
	s.teardownOnce("signal channel closed")
}

func (s *Session) handleEvent(ev core.Event) {
	switch ev.Type {
	case protocol.EventNewProducer:
		s.handleNewProducer(ev.Data)
	case protocol.EventRoomProducersChanged:
		s.handleProducersChanged(ev.Data)
	case protocol.EventDisconnect:
		s.teardownOnce("server disconnect")
	case protocol.EventConnectError:
		s.teardownOnce("server connect error")
	case protocol.EventError:
		s.handleServerError(ev.Data)
	default:
		log.Debug().Str("module", "session").Str("event", ev.Type).Msg("unhandled push")
	}
}

func (s *Session) handleNewProducer(data json.RawMessage) {
	var info protocol.ProducerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("bad newProducer push")
		return
	}
	kind, err := domain.ParseMediaKind(info.Kind)
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("bad newProducer push")
		return
	}

	s.mu.Lock()
	for _, r := range s.remote {
		if r.ProducerID == info.ProducerID {
			s.mu.Unlock()
			return
		}
	}
	s.remote = append(s.remote, domain.RemoteProducer{
		Owner:      domain.ParticipantID(info.UserID),
		ProducerID: info.ProducerID,
		Kind:       kind,
	})
	snapshot := append([]domain.RemoteProducer(nil), s.remote...)
	s.mu.Unlock()

	s.notifyProducersChanged(snapshot)
}

func (s *Session) handleProducersChanged(data json.RawMessage) {
	var push protocol.ProducersChangedPush
	if err := json.Unmarshal(data, &push); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("bad producer list push")
		return
	}
	s.applyProducerList(push.Producers)
}

func (s *Session) handleServerError(data json.RawMessage) {
	var msg string
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = string(data)
	}
	log.Warn().Str("module", "session").Str("server_error", msg).Msg("error push")
	s.surface(core.Errorf(core.ErrSignaling, "push", "server: %s", msg))
}

func (s *Session) notifyProducersChanged(list []domain.RemoteProducer) {
	if s.opts.OnProducersChanged != nil {
		s.opts.OnProducersChanged(list)
	}
}
