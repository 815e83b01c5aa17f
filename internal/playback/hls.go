// Package playback pulls the transcoded HLS rendition of a room. It is
// the simple consumer next to the signaling core: fetch the manifest,
// follow the segments, stop at ENDLIST.
package playback

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamcast/streamcast/internal/domain"
)

type Segment struct {
	URI      string
	Duration float64
}

type Playlist struct {
	TargetDuration float64
	Segments       []Segment
	Ended          bool
}

type Client struct {
	base string
	http *http.Client
}

func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ManifestURL(room domain.RoomID) string {
	return fmt.Sprintf("%s/hls/%s/index.m3u8", c.base, room)
}

func (c *Client) FetchPlaylist(ctx context.Context, room domain.RoomID) (*Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ManifestURL(room), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: status %d", resp.StatusCode)
	}

	pl := &Playlist{}
	var pendingDuration float64
	sc := bufio.NewScanner(resp.Body)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case first && line != "#EXTM3U":
			return nil, fmt.Errorf("fetch manifest: not an m3u8 playlist")
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			pl.TargetDuration, _ = strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
		case strings.HasPrefix(line, "#EXTINF:"):
			v := strings.TrimSuffix(strings.TrimPrefix(line, "#EXTINF:"), ",")
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			pendingDuration, _ = strconv.ParseFloat(v, 64)
		case line == "#EXT-X-ENDLIST":
			pl.Ended = true
		case strings.HasPrefix(line, "#"):
		default:
			pl.Segments = append(pl.Segments, Segment{URI: line, Duration: pendingDuration})
			pendingDuration = 0
		}
		first = false
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return pl, nil
}

// Watch polls the playlist and hands each newly appeared segment to fn,
// returning when the stream ends, fn fails, or ctx is cancelled.
func (c *Client) Watch(ctx context.Context, room domain.RoomID, interval time.Duration, fn func(Segment) error) error {
	seen := 0
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pl, err := c.FetchPlaylist(ctx, room)
		if err != nil {
			return err
		}
		for _, seg := range pl.Segments[min(seen, len(pl.Segments)):] {
			if err := fn(seg); err != nil {
				return err
			}
			seen++
		}
		if pl.Ended {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
