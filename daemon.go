package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/llehouerou/autoplay/internal/config"
	"github.com/llehouerou/autoplay/internal/errmsg"
	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/lastfm"
	"github.com/llehouerou/autoplay/internal/library"
	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/musicbrainz"
	"github.com/llehouerou/autoplay/internal/notify"
	"github.com/llehouerou/autoplay/internal/playback"
	"github.com/llehouerou/autoplay/internal/player"
	"github.com/llehouerou/autoplay/internal/radio"
	"github.com/llehouerou/autoplay/internal/scrobble"
	"github.com/llehouerou/autoplay/internal/spotify"
	"github.com/llehouerou/autoplay/internal/state"
)

// daemon wires the library, the recommendation engine and the local player
// for one playback context.
type daemon struct {
	cfg      *config.Config
	log      zerolog.Logger
	sup      *suture.Supervisor
	registry *playback.Registry
	player   *player.Player
}

// relay forwards player callbacks to the registry, which needs the player
// before it exists.
type relay struct {
	playback.Reporter
}

func newDaemon(ctx context.Context, cfg *config.Config, stateMgr *state.Manager) (*daemon, error) {
	log := logging.With("daemon")
	ac := cfg.GetAutoplayConfig()

	lib := library.New(stateMgr.DB())
	if err := lib.EnsureFTSIndex(); err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpLibraryRebuild, err))
	}
	if cfg.ScanOnStart() && len(cfg.Library.Sources) > 0 {
		scanLibrary(ctx, lib, cfg.Library.Sources)
	}

	router := media.NewRouter()
	router.Register(media.HintLibrary, library.IDPrefix, lib)
	router.Register(media.HintMix, "", lib)
	router.Register(media.HintISRC, "", musicbrainz.NewISRCBackend(musicbrainz.NewClient(), lib))

	var adapters []radio.Adapter
	var lfm *lastfm.Client
	if cfg.HasLastfmConfig() {
		lfm = lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
		if sess, err := stateMgr.GetLastfmSession(); err != nil {
			log.Warn().Err(err).Msg("load lastfm session")
		} else if sess != nil {
			lfm.SetSessionKey(sess.SessionKey)
		}
		cache := radio.NewCache(stateMgr.DB(), ac.CacheTTLDays)
		adapters = append(adapters, radio.NewSimilarAdapter(lfm, cache))
	}

	sp, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Market:       cfg.Spotify.Market,
	})
	switch {
	case errors.Is(err, spotify.ErrNotConfigured):
		log.Info().Msg("spotify not configured")
	case err != nil:
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpSpotifyLogin, err))
	default:
		router.Register(media.HintSpotify, spotify.IDPrefix, sp)
		adapters = append(adapters, radio.NewRecommendAdapter(sp))
	}

	adapters = append(adapters,
		radio.NewMixAdapter(router),
		radio.NewSearchAdapter(router),
		radio.NewTopArtistAdapter(router),
	)

	deps := playback.Deps{
		Fallback: fallback.New(router, fallback.Config{
			MaxAttempts: ac.MaxFallbackAttempts,
			Primary:     media.SourceHint(ac.FallbackPrimary),
			Secondary:   media.SourceHint(ac.FallbackSecondary),
		}),
		Settings: stateMgr,
		Backend:  router,
	}
	if cfg.AutoplayEnabled() {
		deps.Engine = radio.NewEngine(radio.Config{
			Aggregator: radio.AggregatorConfig{
				MinCandidates: ac.MinCandidates,
				Timeout:       ac.AdapterTimeout,
			},
			TopN:      ac.SelectTopN,
			MinScore:  ac.MinScore,
			NearTie:   ac.NearTieWindow,
			MaxJitter: ac.MaxJitter,
		}, radio.NewBackendResolver(router), nil, adapters...)
	}

	rl := &relay{}
	p := player.New(rl)
	p.SetVolume(cfg.PlayerVolume())
	deps.Transport = p

	registry := playback.NewRegistry(playback.Config{
		HistorySize:       ac.HistorySize,
		InactivityTimeout: ac.InactivityTimeout,
		ProgressInterval:  ac.ProgressInterval,
	}, deps)
	rl.Reporter = registry

	sup := suture.New("autoplay", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Str("event", e.String()).Msg("supervisor")
		},
	})
	sup.Add(registry)

	notifier, err := notify.New()
	if err != nil {
		log.Warn().Err(err).Msg("desktop notifications unavailable")
	} else {
		sup.Add(notify.NewSink(notifier, registry.Subscribe(), notify.SinkConfig{
			NowPlaying: cfg.NotifyNowPlaying(),
			UpNext:     cfg.Notify.UpNext,
		}))
	}

	if lfm != nil {
		scrobbler := lastfm.NewScrobbler(lfm, stateMgr)
		sup.Add(scrobbler)
		sup.Add(scrobble.NewSink(scrobbler, registry.Subscribe()))
	}

	if cfg.Metrics.Addr != "" {
		sup.Add(&metricsServer{addr: cfg.Metrics.Addr})
	}

	log.Info().
		Str("context", cfg.Context).
		Int("adapters", len(adapters)).
		Bool("autoplay", deps.Engine != nil).
		Msg("daemon ready")

	return &daemon{cfg: cfg, log: log, sup: sup, registry: registry, player: p}, nil
}

// run starts the services, plays query if set, and blocks until ctx ends.
func (d *daemon) run(ctx context.Context, query string, hint media.SourceHint) error {
	errc := d.sup.ServeBackground(ctx)

	if query != "" {
		it, err := d.registry.Play(ctx, d.cfg.Context, query, hint, "")
		if err != nil {
			d.log.Error().Err(err).Msg(errmsg.FormatWith(errmsg.OpPlaybackStart, query, err))
		} else {
			d.log.Info().Str("item", it.Label()).Msg("playing")
		}
	}

	err := <-errc
	_ = d.player.Stop(d.cfg.Context)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// scanLibrary refreshes the index, logging progress every few seconds.
func scanLibrary(ctx context.Context, lib *library.Library, sources []string) {
	log := logging.With("library")
	progress := make(chan library.ScanProgress, 1)
	go func() {
		var last time.Time
		for p := range progress {
			if time.Since(last) < 2*time.Second && p.Phase != library.PhaseDone {
				continue
			}
			last = time.Now()
			log.Info().
				Str("phase", p.Phase).
				Str("progress", fmt.Sprintf("%s/%s", humanize.Comma(int64(p.Current)), humanize.Comma(int64(p.Total)))).
				Msg("scanning library")
		}
	}()

	start := time.Now()
	stats, err := lib.Refresh(ctx, sources, progress)
	if err != nil {
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpLibraryScan, err))
		return
	}
	count, err := lib.TrackCount()
	if err != nil {
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpLibraryLoad, err))
	}
	log.Info().
		Int("tracks", count).
		Bool("changed", stats.Changed()).
		Dur("took", time.Since(start)).
		Msg("library ready")
}

const metricsShutdownTimeout = 5 * time.Second

// metricsServer exposes the Prometheus registry over HTTP.
type metricsServer struct {
	addr string
}

func (m *metricsServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.Info().Str("addr", m.addr).Msg("metrics listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (m *metricsServer) String() string { return "metrics server" }
