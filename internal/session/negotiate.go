package session

import (
	"context"
	"encoding/json"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/protocol"
)

// loadCapabilities fetches the router capability set and loads it into a
// fresh device. Idempotent per session: a loaded device makes this a
// no-op; a mid-session reload is impossible because the device is only
// minted here.
func (s *Session) loadCapabilities(ctx context.Context) error {
	s.mu.Lock()
	if s.device != nil && s.device.Loaded() {
		s.mu.Unlock()
		return nil
	}
	roomID := s.roomID
	s.mu.Unlock()

	raw, err := s.signal.Request(ctx, protocol.EventGetRouterRtpCapabilities,
		protocol.RouterCapabilitiesRequest{RoomID: string(roomID)})
	if err != nil {
		return core.Wrap(core.ErrNegotiation, "router capabilities", err)
	}
	var resp protocol.RouterCapabilitiesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.Wrap(core.ErrNegotiation, "router capabilities", err)
	}
	if resp.Error != "" {
		return core.Errorf(core.ErrNegotiation, "router capabilities", "server: %s", resp.Error)
	}

	device, err := s.newDevice()
	if err != nil {
		return core.Wrap(core.ErrNegotiation, "new device", err)
	}
	if err := device.Load(resp.RTPCapabilities); err != nil {
		return core.Wrap(core.ErrNegotiation, "load capabilities", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Errorf(core.ErrNegotiation, "load capabilities", "session closed")
	}
	s.device = device
	s.setStateLocked(StateCapabilitiesReady)
	return nil
}

func (s *Session) capabilitiesReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil && s.device.Loaded() && !s.closed
}
