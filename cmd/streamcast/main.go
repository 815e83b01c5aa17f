package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/config"
	"github.com/streamcast/streamcast/internal/domain"
	"github.com/streamcast/streamcast/internal/media"
	"github.com/streamcast/streamcast/internal/playback"
	"github.com/streamcast/streamcast/internal/session"
	"github.com/streamcast/streamcast/internal/signaling"
)

func main() {
	mode := flag.String("mode", "publish", "publish or watch")
	room := flag.String("room", "", "room id (publish: join instead of create; watch: required)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	switch *mode {
	case "publish":
		err = runPublish(ctx, cfg, domain.RoomID(*room))
	case "watch":
		if *room == "" {
			log.Fatal().Msg("-room is required in watch mode")
		}
		err = runWatch(ctx, cfg, domain.RoomID(*room))
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("exited with error")
	}
	log.Info().Msg("bye")
}

func runPublish(ctx context.Context, cfg *config.Config, roomID domain.RoomID) error {
	ch, err := signaling.Dial(ctx, cfg.ServerURL, signaling.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}

	sess := session.New(ch, media.NewDevice, session.Options{
		OnError: func(err error) {
			log.Warn().Err(err).Msg("server reported error")
		},
	})
	defer func() { _ = sess.Leave(context.Background()) }()

	if roomID == "" {
		roomID, err = sess.CreateRoom(ctx)
	} else {
		roomID, err = sess.JoinRoom(ctx, roomID)
	}
	if err != nil {
		return err
	}
	log.Info().Str("room", string(roomID)).Msg("in room")
	fmt.Printf("share this link: %s/watch/%s\n", cfg.HLSBase, roomID)

	audio, err := media.NewAudioTrack("mic")
	if err != nil {
		return err
	}
	video, err := media.NewVideoTrack("camera")
	if err != nil {
		return err
	}
	if err := sess.StartPublishing(ctx, audio, video); err != nil {
		return err
	}
	log.Info().Msg("publishing, press ctrl-c to stop")

	select {
	case <-ctx.Done():
	case <-sess.Done():
	}
	return sess.StopPublishing(context.Background())
}

func runWatch(ctx context.Context, cfg *config.Config, roomID domain.RoomID) error {
	player := playback.New(cfg.HLSBase)
	log.Info().Str("manifest", player.ManifestURL(roomID)).Msg("watching")

	var total time.Duration
	err := player.Watch(ctx, roomID, 2*time.Second, func(seg playback.Segment) error {
		total += time.Duration(seg.Duration * float64(time.Second))
		log.Info().Str("segment", seg.URI).Dur("position", total).Msg("segment")
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Msg("stream ended")
	return nil
}
