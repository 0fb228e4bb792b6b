package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// How long a paused session sleeps between input checks
const pausedPollInterval = 10 * time.Millisecond

type SessionOutcome int

const (
	OutcomeEndOfStream SessionOutcome = iota
	OutcomeNext
	OutcomePrevious
	OutcomeQuit
	OutcomeFailed
)

func (o SessionOutcome) String() string {
	switch o {
	case OutcomeEndOfStream:
		return "end"
	case OutcomeNext:
		return "next"
	case OutcomePrevious:
		return "previous"
	case OutcomeQuit:
		return "quit"
	default:
		return "failed"
	}
}

type SessionResult struct {
	Outcome SessionOutcome
	Frames  int
	Watched time.Duration
	Err     error
}

// SessionDeps are the collaborators a session borrows from the player
type SessionDeps struct {
	Media    MediaOpener
	Renderer Renderer
	Input    <-chan Action
	Nav      Navigator
}

// Session plays one video. It owns the decoder and the audio pipeline
// from OpenSession until Close.
type Session struct {
	ID      uuid.UUID
	VideoID string

	cfg  PlaybackConfig
	deps SessionDeps

	decoder VideoDecoder
	audio   *AudioPipeline
	sync    *SyncController
	pacer   *FramePacer
	info    atomic.Pointer[VideoInfo]

	state  SyncState
	paused bool

	// closed when the info lookup returns
	infoDone chan struct{}
}

// OpenSession opens the video and, best effort, its audio. Only a video
// failure is returned.
func OpenSession(ctx context.Context, videoID string, cfg PlaybackConfig, deps SessionDeps) (*Session, error) {
	s := &Session{
		ID:      uuid.New(),
		VideoID: videoID,
		cfg:     cfg,
		deps:    deps,
		sync:    NewSyncController(cfg.FPS, cfg.MaxSyncSleep),
	}

	decoder, err := deps.Media.OpenVideo(videoID)
	if err != nil {
		return nil, tagErr("session", err)
	}
	s.decoder = decoder

	audio, err := deps.Media.OpenAudio(ctx, videoID)
	if err != nil {
		logger.Warn("session", "Continuing without audio for %s: %v", videoID, err)
	}
	s.audio = audio

	logger.With("session").WithField("session", s.ID.String()).
		Infof("Opened %s (audio: %t)", videoID, s.audio != nil)
	return s, nil
}

// Run plays frames until the video ends, the user navigates or ctx is done
func (s *Session) Run(ctx context.Context) SessionResult {
	s.pacer = NewFramePacer(s.cfg.FPS)
	s.state = SyncState{
		FrameTimer: time.Now(),
		FrameDelay: s.pacer.FrameDuration(),
	}

	// ends the info lookup and the audio with the session
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.audio != nil {
		s.audio.Play(ctx)
	}
	s.infoDone = make(chan struct{})
	go func() {
		defer close(s.infoDone)
		s.lookupInfo(ctx)
	}()

	result := s.loop(ctx)
	result.Frames = s.state.FrameIndex
	result.Watched = time.Duration(s.state.FrameIndex) * s.state.FrameDelay
	logger.Debug("session", "%s showed %v of video in %v", s.VideoID,
		result.Watched, time.Since(s.state.FrameTimer).Round(time.Millisecond))
	return result
}

func (s *Session) loop(ctx context.Context) SessionResult {
	infoInterval := max(s.cfg.InfoInterval, 1)
	renderer := s.deps.Renderer

	for {
		if ctx.Err() != nil {
			return SessionResult{Outcome: OutcomeQuit, Err: context.Cause(ctx)}
		}
		if outcome, done := s.handleInput(); done {
			return SessionResult{Outcome: outcome}
		}

		if s.paused {
			s.pacer.Reset()
			sleepContext(ctx, pausedPollInterval)
			continue
		}

		if s.pacer.Wait(ctx) != nil {
			return SessionResult{Outcome: OutcomeQuit, Err: context.Cause(ctx)}
		}

		frame, err := s.decoder.NextFrame()
		if errors.Is(err, io.EOF) {
			logger.Info("session", "End of %s after %d frames", s.VideoID, s.state.FrameIndex)
			return SessionResult{Outcome: OutcomeEndOfStream}
		}
		if err != nil {
			logger.Error("session", "Decoding %s: %v", s.VideoID, err)
			return SessionResult{Outcome: OutcomeFailed, Err: err}
		}

		s.state.VideoClock = float64(s.state.FrameIndex) * s.sync.FrameDuration

		if err := renderer.RenderFrame(frame); err != nil {
			return SessionResult{Outcome: OutcomeFailed, Err: err}
		}
		if s.state.FrameIndex%infoInterval == 0 {
			if err := renderer.RenderInfo(s.overlay()); err != nil {
				logger.Warn("session", "Overlay: %v", err)
			}
		}

		if s.audio != nil && s.audio.Active() {
			s.state.AudioClock = s.audio.Clock()
			decision := s.sync.Decide(s.state.VideoClock, s.state.AudioClock)
			if decision.Action != SyncProceed {
				logger.Debug("sync", "Frame %d: %s (diff %.3fs, sleep %v)",
					s.state.FrameIndex, decision.Action, decision.Diff, decision.Sleep)
			}
			if s.sync.Apply(ctx, decision) != nil {
				return SessionResult{Outcome: OutcomeQuit, Err: context.Cause(ctx)}
			}
		}

		s.pacer.Advance()
		s.state.FrameIndex++
	}
}

// Applies pending user input. It reports the outcome when the input ends
// the session.
func (s *Session) handleInput() (SessionOutcome, bool) {
	for {
		action := pollAction(s.deps.Input)
		switch action {
		case ActionNone:
			return 0, false
		case ActionQuit:
			return OutcomeQuit, true
		case ActionTogglePause:
			s.paused = !s.paused
			if s.audio != nil {
				if s.paused {
					s.audio.Pause()
				} else {
					s.audio.Resume()
				}
			}
			logger.Info("session", "Paused: %t", s.paused)
			if s.paused {
				if err := s.deps.Renderer.RenderInfo(s.overlay()); err != nil {
					logger.Warn("session", "Overlay: %v", err)
				}
			}
		case ActionPrevious:
			if s.deps.Nav.HasPrevious() {
				return OutcomePrevious, true
			}
		case ActionNext:
			if s.deps.Nav.HasNext() {
				return OutcomeNext, true
			}
			// nothing queued yet, ask for more and keep playing
			s.deps.Nav.RequestMore()
		}
	}
}

func (s *Session) lookupInfo(ctx context.Context) {
	info, err := s.deps.Media.Probe(ctx, s.VideoID)
	if err != nil {
		logger.Debug("session", "No info for %s: %v", s.VideoID, err)
		return
	}
	s.info.Store(&info)
}

func (s *Session) overlay() OverlayInfo {
	o := OverlayInfo{
		ID:      s.VideoID,
		Elapsed: time.Duration(s.state.FrameIndex) * s.state.FrameDelay,
		Index:   s.deps.Nav.Cursor(),
		Total:   s.deps.Nav.Len(),
		Paused:  s.paused,
		Audio:   s.audio != nil,
	}
	if info := s.info.Load(); info != nil {
		o.Duration = info.Duration
	}
	return o
}

// FrameIndex is the number of frames shown so far
func (s *Session) FrameIndex() int {
	return s.state.FrameIndex
}

// AudioClock is zero for a session without audio
func (s *Session) AudioClock() float64 {
	if s.audio == nil {
		return 0
	}
	return s.audio.Clock()
}

// Close stops the audio and waits for the info lookup, then releases the audio
// and the decoder
func (s *Session) Close() error {
	var errs []error
	if s.audio != nil {
		s.audio.Stop()
		if err := s.audio.Err(); err != nil {
			logger.Warn("session", "Audio of %s ended early: %v", s.VideoID, err)
		}
		logger.Debug("session", "Played %d bytes of audio", s.audio.BytesPlayed())
		errs = append(errs, s.audio.Close())
	}
	if s.infoDone != nil {
		<-s.infoDone
	}
	if s.decoder != nil {
		errs = append(errs, s.decoder.Close())
	}
	return errors.Join(errs...)
}
