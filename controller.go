package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// PlayerContext is the shutdown signal shared by every goroutine
type PlayerContext struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     *sync.WaitGroup
}

func newPlayerContext(parent context.Context) *PlayerContext {
	ctx, cancel := context.WithCancelCause(parent)
	return &PlayerContext{
		ctx:    ctx,
		cancel: cancel,
		wg:     &sync.WaitGroup{},
	}
}

// Go runs f on a new goroutine tracked by the context's wait group
func (p *PlayerContext) Go(f func()) {
	p.wg.Add(1)
	go synchronizedExit(f, p)
}

// Wait blocks until every goroutine started with Go has returned and
// reports why the context was cancelled
func (p *PlayerContext) Wait() error {
	p.wg.Wait()
	return context.Cause(p.ctx)
}

func catchSignals(pctx *PlayerContext) {
	signalctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-signalctx.Done():
		logger.Info("controller", "Caught signal")
		pctx.cancel(ErrUserQuit)
	case <-pctx.ctx.Done():
	}
}

func synchronizedExit(f func(), pctx *PlayerContext) {
	// This defer will run after the `f` function finishes or panics
	defer func() {
		pctx.wg.Done()
		if r := recover(); r != nil {
			err := toError(r)
			logger.Error("controller", "Goroutine failed: %v", err)
			pctx.cancel(err)
		}
	}()
	f()
}

// ConnectionState is what the waiting screen shows about the producer
type ConnectionState interface {
	Connected() bool
	Path() string
}

// HistoryRecorder stores finished sessions
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

// Player walks the playlist one session at a time
type Player struct {
	cfg      PlaybackConfig
	queue    *IngestionQueue
	playlist *Playlist
	conn     ConnectionState
	media    MediaOpener
	renderer Renderer
	input    <-chan Action
	history  HistoryRecorder

	// called before each session starts playing
	onSession func(s *Session)
}

type PlayerDeps struct {
	Queue    *IngestionQueue
	Playlist *Playlist
	Conn     ConnectionState
	Media    MediaOpener
	Renderer Renderer
	Input    <-chan Action
	History  HistoryRecorder
}

func NewPlayer(cfg PlaybackConfig, deps PlayerDeps) *Player {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 100 * time.Millisecond
	}
	return &Player{
		cfg:      cfg,
		queue:    deps.Queue,
		playlist: deps.Playlist,
		conn:     deps.Conn,
		media:    deps.Media,
		renderer: deps.Renderer,
		input:    deps.Input,
		history:  deps.History,
	}
}

// Run plays until the user quits or ctx is done. It fails only when the
// renderer cannot start or the first video cannot be opened.
func (p *Player) Run(ctx context.Context) error {
	if err := p.renderer.Begin(); err != nil {
		return err
	}
	defer p.renderer.End()

	err := p.run(ctx)
	if errors.Is(err, ErrUserQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Player) run(ctx context.Context) error {
	if err := p.waitForQueue(ctx, 1); err != nil {
		return err
	}

	first := true
	for {
		id, _ := p.playlist.Current()
		session, err := OpenSession(ctx, id, p.cfg, SessionDeps{
			Media:    p.media,
			Renderer: p.renderer,
			Input:    p.input,
			Nav:      p.playlist,
		})
		if err != nil {
			if first {
				return err
			}
			logger.Error("controller", "Skipping %s: %v", id, err)
			if err := p.advance(ctx); err != nil {
				return err
			}
			continue
		}
		first = false

		if p.onSession != nil {
			p.onSession(session)
		}
		started := time.Now()
		result := session.Run(ctx)
		if err := session.Close(); err != nil {
			logger.Warn("controller", "Releasing %s: %v", id, err)
		}
		logger.Info("controller", "Session %s ended: %s after %d frames", id, result.Outcome, result.Frames)
		p.record(ctx, session, started, result)

		switch result.Outcome {
		case OutcomeQuit:
			if result.Err != nil {
				return result.Err
			}
			return ErrUserQuit
		case OutcomePrevious:
			p.playlist.Retreat()
		case OutcomeNext:
			p.playlist.Advance()
		default:
			if err := p.advance(ctx); err != nil {
				return err
			}
		}
	}
}

// Moves past the current entry, waiting for the producer when it is the last
func (p *Player) advance(ctx context.Context) error {
	if p.playlist.Advance() {
		return nil
	}
	if err := p.waitForQueue(ctx, p.playlist.Cursor()+2); err != nil {
		return err
	}
	p.playlist.Advance()
	return nil
}

// waitForQueue shows the waiting screen until the queue holds n entries
func (p *Player) waitForQueue(ctx context.Context, n int) error {
	ticker := time.NewTicker(p.cfg.IdleInterval)
	defer ticker.Stop()

	var shown string
	for {
		changed := p.queue.Changed()
		if p.queue.Len() >= n {
			return nil
		}
		if lines := p.statusLines(); lines[0] != shown {
			if err := p.renderer.RenderStatus(lines...); err != nil {
				logger.Warn("controller", "Status screen: %v", err)
			}
			shown = lines[0]
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-changed:
		case <-ticker.C:
		case action := <-p.input:
			if action == ActionQuit {
				return ErrUserQuit
			}
		}
	}
}

func (p *Player) statusLines() []string {
	if p.conn != nil && !p.conn.Connected() {
		return []string{"Waiting for producer on " + p.conn.Path()}
	}
	return []string{"Fetching..."}
}

func (p *Player) record(ctx context.Context, s *Session, started time.Time, result SessionResult) {
	if p.history == nil {
		return
	}
	err := p.history.Record(context.WithoutCancel(ctx), HistoryEntry{
		SessionID: s.ID.String(),
		VideoID:   s.VideoID,
		StartedAt: started,
		Frames:    result.Frames,
		Watched:   result.Watched,
		Outcome:   result.Outcome.String(),
	})
	if err != nil {
		logger.Warn("history", "Recording %s: %v", s.VideoID, err)
	}
}
