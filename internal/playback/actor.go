package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/llehouerou/autoplay/internal/fallback"
	"github.com/llehouerou/autoplay/internal/media"
	"github.com/llehouerou/autoplay/internal/metrics"
	"github.com/llehouerou/autoplay/internal/radio"
)

var errCyclePanic = errors.New("recommendation cycle panicked")

// handle processes one inbound event. Only commands return errors to a caller;
// stale transport callbacks are logged and dropped.
func (s *Session) handle(ctx context.Context, ev event) error {
	switch ev := ev.(type) {
	case enqueueCmd:
		return s.onEnqueue(ctx, ev.items)
	case skipCmd:
		return s.onSkip(ctx, ev.by)
	case pauseCmd:
		return s.onPause()
	case resumeCmd:
		return s.onResume()
	case stopCmd:
		s.disconnect(DisconnectStopped)
		return nil
	case trackStarted:
		return s.onStarted(ev)
	case trackEnded:
		return s.onEnded(ctx, ev)
	case trackFailed:
		return s.onFailed(ctx, ev)
	case drainDone:
		s.onDrainDone(ctx, ev)
	case fallbackDone:
		s.onFallbackDone(ctx, ev)
	}
	return nil
}

func (s *Session) invalid(ev event) error {
	err := fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev.name(), s.state)
	s.log.Warn().Str("event", ev.name()).Str("state", s.state.String()).Msg("invalid transition dropped")
	return err
}

func (s *Session) isCurrent(id string) bool {
	return s.current != nil && ItemID(*s.current) == id
}

func (s *Session) transition(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	metrics.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	s.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("transition")

	if from == StateIdle {
		s.cancelInactivity()
	}
	if to == StatePlaying {
		s.startTicker()
	} else {
		s.stopTicker()
	}
	s.emit(StateChange{ContextID: s.contextID, Previous: from, Current: to})
}

func (s *Session) onEnqueue(ctx context.Context, items []media.Item) error {
	for i := range items {
		s.queue = append(s.queue, items[i].Clone())
	}
	if len(items) == 0 {
		return nil
	}
	switch s.state {
	case StateIdle:
		s.advance(ctx)
	case StateDraining:
		// queued items take precedence over a pending recommendation
		s.cancelOp()
		s.advance(ctx)
	}
	return nil
}

// advance plays the next queued item, or asks for a recommendation.
func (s *Session) advance(ctx context.Context) {
	s.attempt, s.attemptID = nil, ""
	if len(s.queue) == 0 {
		s.drain(ctx)
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.load(ctx, next)
}

func (s *Session) load(ctx context.Context, it media.Item) {
	s.current = &it
	s.transition(StateLoading)
	if err := s.deps.Transport.Load(ctx, s.contextID, it); err != nil {
		s.fail(ctx, fmt.Errorf("%w: %w", ErrLoadFailure, err))
	}
}

func (s *Session) onStarted(ev trackStarted) error {
	if s.state != StateLoading || !s.isCurrent(ev.id) {
		return s.invalid(ev)
	}
	if s.pending != nil {
		s.history.Push(*s.pending)
		s.pending = nil
	}
	s.tracker.Reset(s.current.Duration, time.Now())
	s.transition(StatePlaying)
	s.emit(ItemStarted{ContextID: s.contextID, Item: s.current.Clone()})
	s.log.Info().Str("item", s.current.Label()).Bool("autoplay", s.current.Autoplay).Msg("item started")
	return nil
}

func (s *Session) onEnded(ctx context.Context, ev trackEnded) error {
	if !s.state.IsActive() || !s.isCurrent(ev.id) {
		return s.invalid(ev)
	}
	it := *s.current
	played := s.tracker.Position(time.Now())
	s.current = nil
	s.pending = &it
	s.lastEnded = &it
	s.emit(ItemEnded{ContextID: s.contextID, Item: it.Clone(), Reason: EndFinished, Played: played})
	s.advance(ctx)
	return nil
}

func (s *Session) onFailed(ctx context.Context, ev trackFailed) error {
	if (s.state != StateLoading && !s.state.IsActive()) || !s.isCurrent(ev.id) {
		return s.invalid(ev)
	}
	s.fail(ctx, ev.err)
	return nil
}

func (s *Session) onSkip(ctx context.Context, by string) error {
	if !s.state.HasItem() {
		return s.invalid(skipCmd{by: by})
	}
	it := *s.current
	var played time.Duration
	if s.state.IsActive() {
		played = s.tracker.Position(time.Now())
	}
	stalled := s.state == StateStalled

	s.cancelOp()
	if err := s.deps.Transport.Stop(s.contextID); err != nil {
		s.log.Warn().Err(err).Msg("transport stop failed")
	}
	s.skips.RecordSkip(it, by)
	s.current = nil
	s.lastEnded = &it
	if !stalled {
		s.emit(ItemEnded{ContextID: s.contextID, Item: it.Clone(), Reason: EndSkipped, Played: played})
	}
	s.log.Info().Str("item", it.Label()).Str("by", by).Msg("item skipped")
	s.advance(ctx)
	return nil
}

func (s *Session) onPause() error {
	if s.state != StatePlaying {
		return s.invalid(pauseCmd{})
	}
	if err := s.deps.Transport.Pause(s.contextID); err != nil {
		return err
	}
	s.tracker.Pause(time.Now())
	s.transition(StatePaused)
	return nil
}

func (s *Session) onResume() error {
	if s.state != StatePaused {
		return s.invalid(resumeCmd{})
	}
	if err := s.deps.Transport.Resume(s.contextID); err != nil {
		return err
	}
	s.tracker.Resume(time.Now())
	s.transition(StatePlaying)
	return nil
}

// fail handles a load or playback error of the current item by asking the
// fallback resolver for a replacement.
func (s *Session) fail(ctx context.Context, cause error) {
	failed := *s.current
	var played time.Duration
	if s.state.IsActive() {
		played = s.tracker.Position(time.Now())
	}

	var a fallback.Attempt
	if s.attempt != nil && s.attemptID == ItemID(failed) {
		a = s.attempt.Next(failed)
	} else {
		a = fallback.NewAttempt(failed)
	}

	s.log.Warn().Err(cause).Str("item", failed.Label()).Int("attempt", a.Number).Msg("playback failed")
	s.emit(ItemEnded{ContextID: s.contextID, Item: failed.Clone(), Reason: EndFailed, Played: played})
	s.transition(StateStalled)

	if s.deps.Fallback == nil {
		s.unplayableItem(ctx, a, fmt.Errorf("%w: no fallback resolver", fallback.ErrExhausted))
		return
	}

	gen, opCtx := s.beginOp(ctx)
	resolver := s.deps.Fallback
	go func() {
		done := fallbackDone{gen: gen, attempt: a}
		defer func() {
			if r := recover(); r != nil {
				done.err = fmt.Errorf("%w: fallback panicked: %v", fallback.ErrExhausted, r)
			}
			s.post(done)
		}()
		done.item, done.err = resolver.Resolve(opCtx, a)
	}()
}

func (s *Session) onFallbackDone(ctx context.Context, ev fallbackDone) {
	if ev.gen != s.gen || s.state != StateStalled {
		s.log.Debug().Msg("stale fallback result dropped")
		return
	}
	s.endOp()

	if ev.err != nil {
		s.unplayableItem(ctx, ev.attempt, ev.err)
		return
	}

	s.current = nil
	s.attempt = &ev.attempt
	s.attemptID = ItemID(ev.item)
	s.load(ctx, ev.item)
}

func (s *Session) unplayableItem(ctx context.Context, a fallback.Attempt, err error) {
	s.log.Warn().Err(err).Str("item", a.Original.Label()).Msg("item unplayable")
	s.emit(ItemUnplayable{ContextID: s.contextID, Item: a.Original.Clone(), Attempts: a.Number, Err: err})

	s.unplayable = append(s.unplayable, a.Original.Clone())
	if s.current != nil && ItemID(*s.current) != ItemID(a.Original) {
		s.unplayable = append(s.unplayable, s.current.Clone())
	}
	if len(s.unplayable) > maxUnplayable {
		s.unplayable = s.unplayable[len(s.unplayable)-maxUnplayable:]
	}
	s.current = nil
	s.advance(ctx)
}

// drain runs a recommendation cycle off the actor goroutine.
func (s *Session) drain(ctx context.Context) {
	if s.deps.Engine == nil {
		s.enterIdle(IdleQueueEmpty)
		return
	}
	s.transition(StateDraining)

	req := radio.Request{
		History: s.history.Items(),
		Skips:   s.skips.Patterns(),
		Exclude: append([]media.Item(nil), s.unplayable...),
		Now:     time.Now(),
	}
	if s.pending != nil && (s.lastEnded == nil || ItemID(*s.pending) != ItemID(*s.lastEnded)) {
		req.History = append(req.History, s.pending.Clone())
	}
	if s.lastEnded != nil {
		ref := s.lastEnded.Clone()
		req.Reference = &ref
	}

	gen, opCtx := s.beginOp(ctx)
	engine := s.deps.Engine
	go func() {
		done := drainDone{gen: gen}
		defer func() {
			if r := recover(); r != nil {
				done.err = fmt.Errorf("%w: %v", errCyclePanic, r)
			}
			s.post(done)
		}()
		done.res, done.err = engine.Recommend(opCtx, req)
	}()
}

func (s *Session) onDrainDone(ctx context.Context, ev drainDone) {
	if ev.gen != s.gen || s.state != StateDraining {
		s.log.Debug().Msg("stale recommendation dropped")
		return
	}
	s.endOp()

	switch {
	case ev.err == nil:
		metrics.RecommendationCycles.WithLabelValues("selected").Inc()
		c := ev.res.Candidate
		s.emit(RecommendationAdded{
			ContextID: s.contextID,
			Item:      ev.res.Item.Clone(),
			Source:    string(c.Source),
			Score:     c.Score,
			Trace:     append([]string(nil), c.Trace...),
		})
		s.queue = append(s.queue, ev.res.Item)
		s.advance(ctx)
	case errors.Is(ev.err, radio.ErrNoCandidates):
		metrics.RecommendationCycles.WithLabelValues("no_candidates").Inc()
		s.log.Info().Err(ev.err).Msg("no candidates")
		s.enterIdle(IdleNoCandidates)
	case errors.Is(ev.err, radio.ErrNoRecommendation):
		metrics.RecommendationCycles.WithLabelValues("no_recommendation").Inc()
		s.log.Info().Err(ev.err).Msg("no recommendation")
		s.enterIdle(IdleNoRecommendation)
	case errors.Is(ev.err, errCyclePanic):
		metrics.RecommendationCycles.WithLabelValues("panic").Inc()
		s.log.Error().Err(ev.err).Msg("recommendation cycle crashed")
		s.enterIdle(IdleCycleFailed)
	default:
		metrics.RecommendationCycles.WithLabelValues("error").Inc()
		s.log.Warn().Err(ev.err).Msg("recommendation cycle failed")
		s.enterIdle(IdleCycleFailed)
	}
}

func (s *Session) enterIdle(reason IdleReason) {
	s.transition(StateIdle)
	s.emit(SessionIdle{ContextID: s.contextID, Reason: reason})
	s.scheduleInactivity()
}

// scheduleInactivity arms the disconnect timer. The stay-connected setting is
// read here and not when the timer fires.
func (s *Session) scheduleInactivity() {
	s.cancelInactivity()
	if s.state != StateIdle || len(s.queue) > 0 || s.current != nil {
		return
	}
	if s.deps.Settings != nil && s.deps.Settings.StayConnected(s.contextID) {
		s.log.Debug().Msg("stay connected, no inactivity timer")
		return
	}
	s.idle = time.NewTimer(s.cfg.InactivityTimeout)
	s.idleC = s.idle.C
}

func (s *Session) cancelInactivity() {
	if s.idle != nil {
		s.idle.Stop()
	}
	s.idle, s.idleC = nil, nil
}

func (s *Session) onInactivity() {
	if s.state != StateIdle || len(s.queue) > 0 || s.current != nil {
		return
	}
	s.log.Info().Dur("timeout", s.cfg.InactivityTimeout).Msg("inactivity timeout")
	s.disconnect(DisconnectInactive)
}

func (s *Session) startTicker() {
	s.stopTicker()
	s.ticker = time.NewTicker(s.cfg.ProgressInterval)
	s.tickC = s.ticker.C
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker, s.tickC = nil, nil
}

func (s *Session) onProgress() {
	if s.state != StatePlaying {
		return
	}
	now := time.Now()
	if p, ok := s.deps.Transport.(Positioner); ok {
		if pos, ok := p.Position(s.contextID); ok {
			s.tracker.Sync(pos, now)
		}
	}
	s.emit(PositionChange{
		ContextID: s.contextID,
		Position:  s.tracker.Position(now),
		Duration:  s.tracker.Duration(),
	})
}

// beginOp invalidates any in-flight async operation and starts a new one.
func (s *Session) beginOp(ctx context.Context) (uint64, context.Context) {
	s.cancelOp()
	opCtx, cancel := context.WithCancel(ctx)
	s.opCancel = cancel
	return s.gen, opCtx
}

// cancelOp cancels the in-flight operation; its late result is dropped.
func (s *Session) cancelOp() {
	s.gen++
	s.endOp()
}

func (s *Session) endOp() {
	if s.opCancel != nil {
		s.opCancel()
		s.opCancel = nil
	}
}

// reset drops the current item and every timer, keeping history and skips.
func (s *Session) reset() {
	s.cancelInactivity()
	s.stopTicker()
	s.cancelOp()
	if s.current != nil {
		if err := s.deps.Transport.Stop(s.contextID); err != nil {
			s.log.Warn().Err(err).Msg("transport stop failed")
		}
		s.current = nil
	}
	s.attempt, s.attemptID = nil, ""
	if s.state != StateDisconnected {
		s.transition(StateIdle)
	}
}

// disconnect ends the session. Timers are cleared before anything else.
func (s *Session) disconnect(reason DisconnectReason) {
	if s.state == StateDisconnected {
		return
	}
	s.cancelInactivity()
	s.stopTicker()
	s.cancelOp()

	if s.current != nil {
		it := *s.current
		var played time.Duration
		if s.state.IsActive() {
			played = s.tracker.Position(time.Now())
		}
		if err := s.deps.Transport.Stop(s.contextID); err != nil {
			s.log.Warn().Err(err).Msg("transport stop failed")
		}
		if s.state != StateStalled {
			s.emit(ItemEnded{ContextID: s.contextID, Item: it.Clone(), Reason: EndStopped, Played: played})
		}
	}

	s.current = nil
	s.queue = nil
	s.pending = nil
	s.lastEnded = nil
	s.unplayable = nil
	s.attempt, s.attemptID = nil, ""
	s.history.Clear()
	s.skips.Clear()
	s.tracker = Tracker{}

	s.transition(StateDisconnected)
	s.emit(SessionDisconnected{ContextID: s.contextID, Reason: reason})
	s.log.Info().Str("reason", reason.String()).Msg("session disconnected")
}
