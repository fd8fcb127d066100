// Command autoplay is a headless music daemon: it plays the local library
// for one playback context and keeps the queue going with recommendations
// once it runs dry.
//
//	autoplay [flags] [query...]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/llehouerou/autoplay/internal/config"
	"github.com/llehouerou/autoplay/internal/errmsg"
	"github.com/llehouerou/autoplay/internal/lastfm"
	"github.com/llehouerou/autoplay/internal/logging"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/state"
)

// pendingScrobbleMaxAge drops queued scrobbles Last.fm would refuse anyway.
const pendingScrobbleMaxAge = 14 * 24 * time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	lastfmAuth := flag.Bool("lastfm-auth", false, "link a Last.fm account and exit")
	lastfmUnlink := flag.Bool("lastfm-unlink", false, "forget the linked Last.fm account and exit")
	stayConnected := flag.String("stay-connected", "", `set the stay-connected flag of the context ("on" or "off") and exit`)
	contextID := flag.String("context", "", "playback context id (overrides config)")
	hint := flag.String("source", "", `backend for the initial query ("library", "spotify" or empty)`)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpConfigLoad, err))
		return 1
	}
	if *contextID != "" {
		cfg.Context = *contextID
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	stateMgr, err := state.Open(cfg.Library.DBPath)
	if err != nil {
		logging.Error().Err(err).Msg(errmsg.Format(errmsg.OpStateOpen, err))
		return 1
	}
	defer stateMgr.Close()

	switch {
	case *lastfmAuth:
		return runLastfmAuth(cfg, stateMgr)
	case *lastfmUnlink:
		if err := stateMgr.DeleteLastfmSession(); err != nil {
			fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpSettingsSave, err))
			return 1
		}
		fmt.Println("Last.fm account unlinked")
		return 0
	case *stayConnected != "":
		return runStayConnected(cfg.Context, *stayConnected, stateMgr)
	}

	if err := stateMgr.DeleteOldPendingScrobbles(pendingScrobbleMaxAge); err != nil {
		logging.Warn().Err(err).Msg("prune pending scrobbles")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, stateMgr)
	if err != nil {
		logging.Error().Err(err).Msg(errmsg.Format(errmsg.OpInitialize, err))
		return 1
	}
	if err := d.run(ctx, strings.Join(flag.Args(), " "), media.SourceHint(*hint)); err != nil {
		logging.Error().Err(err).Msg("daemon stopped")
		return 1
	}
	return 0
}

// runLastfmAuth runs the desktop auth flow and stores the session key.
func runLastfmAuth(cfg *config.Config, stateMgr *state.Manager) int {
	if !cfg.HasLastfmConfig() {
		fmt.Fprintln(os.Stderr, "lastfm.api_key and lastfm.api_secret must be configured")
		return 1
	}
	client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	token, err := client.GetToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpLastfmAuth, err))
		return 1
	}

	fmt.Println("Authorize autoplay in your browser, then press Enter:")
	fmt.Println(client.GetAuthURL(token))
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpLastfmAuth, err))
		return 1
	}

	username, key, err := client.GetSession(token)
	if err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpLastfmAuth, err))
		return 1
	}
	if err := stateMgr.SaveLastfmSession(username, key); err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpSettingsSave, err))
		return 1
	}
	fmt.Printf("Linked Last.fm account %s\n", username)
	return 0
}

func runStayConnected(contextID, value string, stateMgr *state.Manager) int {
	var on bool
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1":
		on = true
	case "off", "false", "no", "0":
	default:
		fmt.Fprintf(os.Stderr, "invalid stay-connected value %q\n", value)
		return 2
	}
	if err := stateMgr.SetStayConnected(contextID, on); err != nil {
		fmt.Fprintln(os.Stderr, errmsg.FormatWith(errmsg.OpSettingsSave, contextID, err))
		return 1
	}
	fmt.Printf("stay-connected for %s: %t\n", contextID, on)
	return 0
}
