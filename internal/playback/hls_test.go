package playback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamcast/streamcast/internal/domain"
)

const room = domain.RoomID("ch_testroom")

func TestManifestURL(t *testing.T) {
	c := New("http://cdn.example/")
	assert.Equal(t, "http://cdn.example/hls/ch_testroom/index.m3u8", c.ManifestURL(room))
}

func TestFetchPlaylist(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hls/ch_testroom/index.m3u8", r.URL.Path)
		fmt.Fprint(w, `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXTINF:4.000,
seg0.ts
#EXTINF:3.500,
seg1.ts
#EXT-X-ENDLIST
`)
	}))
	defer hs.Close()

	pl, err := New(hs.URL).FetchPlaylist(context.Background(), room)
	require.NoError(t, err)
	assert.Equal(t, 4.0, pl.TargetDuration)
	assert.True(t, pl.Ended)
	require.Len(t, pl.Segments, 2)
	assert.Equal(t, Segment{URI: "seg0.ts", Duration: 4.0}, pl.Segments[0])
	assert.Equal(t, Segment{URI: "seg1.ts", Duration: 3.5}, pl.Segments[1])
}

func TestFetchPlaylistRejectsNonPlaylist(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not a playlist</html>")
	}))
	defer hs.Close()

	_, err := New(hs.URL).FetchPlaylist(context.Background(), room)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an m3u8")
}

func TestFetchPlaylistStatusError(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer hs.Close()

	_, err := New(hs.URL).FetchPlaylist(context.Background(), room)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestWatchDeliversNewSegmentsUntilEnd(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:2\n")
		fmt.Fprint(w, "#EXTINF:2.0,\nseg0.ts\n")
		if n >= 2 {
			fmt.Fprint(w, "#EXTINF:2.0,\nseg1.ts\n#EXT-X-ENDLIST\n")
		}
	}))
	defer hs.Close()

	var got []string
	err := New(hs.URL).Watch(context.Background(), room, 10*time.Millisecond, func(s Segment) error {
		got = append(got, s.URI)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"seg0.ts", "seg1.ts"}, got)
}

func TestWatchStopsOnCallbackError(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:2.0,\nseg0.ts\n")
	}))
	defer hs.Close()

	wantErr := fmt.Errorf("sink full")
	err := New(hs.URL).Watch(context.Background(), room, 10*time.Millisecond, func(Segment) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestWatchHonoursContext(t *testing.T) {
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n")
	}))
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := New(hs.URL).Watch(ctx, room, 10*time.Millisecond, func(Segment) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}