package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/protocol"
)

// Two produce requests in flight must each resolve to their own
// server-assigned id even when the responses complete in reverse
// submission order.
func TestConcurrentProduceOutOfOrderResponses(t *testing.T) {
	s, sig, dev := newTestSession(t)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	firstBlocked := make(chan struct{})
	sig.respond(protocol.EventProduce, func(raw json.RawMessage) (any, error) {
		var req protocol.ProduceRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			// Hold the first response until the second one went out.
			<-firstBlocked
		} else {
			defer close(firstBlocked)
		}
		return protocol.ProduceResponse{ID: "prod-" + req.Kind}, nil
	})

	_, err := s.CreateRoom(ctx)
	require.NoError(t, err)
	audio := newFakeTrack("mic", domain.KindAudio)
	video := newFakeTrack("cam", domain.KindVideo)
	require.NoError(t, s.StartPublishing(ctx, audio, video))

	producers := dev.sends[0].Producers()
	require.Len(t, producers, 2)
	for _, p := range producers {
		// Each handshake got the id addressed to its own token.
		assert.Equal(t, "prod-"+string(p.Kind()), p.ID())
	}
}

func TestPartialProduceFailureKeepsSiblings(t *testing.T) {
	s, sig, dev := newTestSession(t)
	ctx := context.Background()

	sig.respond(protocol.EventProduce, func(raw json.RawMessage) (any, error) {
		var req protocol.ProduceRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		if req.Kind == "audio" {
			return protocol.ProduceResponse{Error: "audio rejected"}, nil
		}
		return protocol.ProduceResponse{ID: "prod-video"}, nil
	})

	_, err := s.CreateRoom(ctx)
	require.NoError(t, err)
	audio := newFakeTrack("mic", domain.KindAudio)
	video := newFakeTrack("cam", domain.KindVideo)

	err = s.StartPublishing(ctx, audio, video)
	require.Error(t, err)
	assert.Equal(t, core.ErrProduce, core.KindOf(err))

	prods := s.Producers()
	require.Len(t, prods, 1)
	assert.Equal(t, "prod-video", prods[0].ID())
	assert.True(t, s.Publishing())
	assert.Equal(t, 1, dev.sends[0].Aborted())
}

func TestAllProduceFailuresCloseTransport(t *testing.T) {
	s, sig, dev := newTestSession(t)
	ctx := context.Background()

	sig.respond(protocol.EventProduce, func(json.RawMessage) (any, error) {
		return protocol.ProduceResponse{Error: "rejected"}, nil
	})

	_, err := s.CreateRoom(ctx)
	require.NoError(t, err)

	err = s.StartPublishing(ctx, newFakeTrack("mic", domain.KindAudio))
	require.Error(t, err)
	assert.Equal(t, core.ErrProduce, core.KindOf(err))
	assert.False(t, s.Publishing())
	assert.Empty(t, s.Producers())
	require.Len(t, dev.sends, 1)
	assert.True(t, dev.sends[0].Closed())
}

// connectProducerTransport timing out must surface as a transport error
// and leave no producer or half-open transport on the session.
func TestConnectTimeoutLeavesNoProducer(t *testing.T) {
	s, sig, dev := newTestSession(t)
	ctx := context.Background()

	sig.respond(protocol.EventConnectProducerTransport, func(json.RawMessage) (any, error) {
		return nil, core.Wrap(core.ErrSignaling, protocol.EventConnectProducerTransport, core.ErrTimeout)
	})

	_, err := s.CreateRoom(ctx)
	require.NoError(t, err)

	err = s.StartPublishing(ctx, newFakeTrack("mic", domain.KindAudio))
	require.Error(t, err)
	assert.Equal(t, core.ErrTransport, core.KindOf(err))
	require.ErrorIs(t, err, core.ErrTimeout)

	assert.Empty(t, s.Producers())
	assert.False(t, s.Publishing())
	require.Len(t, dev.sends, 1)
	assert.True(t, dev.sends[0].Closed())
	assert.Zero(t, sig.requestCount(protocol.EventProduce))
}

func TestPublishRequiresCapabilities(t *testing.T) {
	s, _, _ := newTestSession(t)
	err := s.StartPublishing(context.Background(), newFakeTrack("mic", domain.KindAudio))
	require.Error(t, err)
	assert.Equal(t, core.ErrProduce, core.KindOf(err))
}
