package main

import (
	"context"
	"math"
	"time"
)

type SyncAction int

const (
	// No correction needed
	SyncProceed SyncAction = iota
	// Video is ahead, sleep before the next frame
	SyncWait
	// Video is far behind, skip any corrective sleep
	SyncCatchUp
)

func (a SyncAction) String() string {
	switch a {
	case SyncWait:
		return "wait"
	case SyncCatchUp:
		return "catch-up"
	default:
		return "proceed"
	}
}

type SyncDecision struct {
	Action SyncAction
	Sleep  time.Duration
	// video clock minus audio clock, in seconds
	Diff float64
}

// SyncState is the per-session timing bookkeeping
type SyncState struct {
	VideoClock float64
	AudioClock float64
	FrameIndex int
	FrameTimer time.Time
	FrameDelay time.Duration
}

// SyncController nudges video pacing relative to the audio clock.
// It only ever adds or omits sleeps, frames are never dropped or repeated.
type SyncController struct {
	FrameDuration float64 // seconds
	MaxSleep      float64 // seconds
}

func NewSyncController(fps float64, maxSleep time.Duration) *SyncController {
	return &SyncController{
		FrameDuration: 1 / fps,
		MaxSleep:      maxSleep.Seconds(),
	}
}

func (s *SyncController) Decide(video, audio float64) SyncDecision {
	diff := video - audio
	switch {
	case diff > s.FrameDuration:
		sleep := min(diff-s.FrameDuration, s.MaxSleep)
		return SyncDecision{Action: SyncWait, Sleep: secondsToDuration(sleep), Diff: diff}
	case diff < -2*s.FrameDuration:
		return SyncDecision{Action: SyncCatchUp, Diff: diff}
	default:
		return SyncDecision{Action: SyncProceed, Diff: diff}
	}
}

// Apply performs the sleep a decision asks for
func (s *SyncController) Apply(ctx context.Context, d SyncDecision) error {
	if d.Action != SyncWait || d.Sleep <= 0 {
		return nil
	}
	return sleepContext(ctx, d.Sleep)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
