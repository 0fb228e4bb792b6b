package main

import (
	"context"
	"math"
	"time"
)

// Sleeps shorter than this are not worth a timer
const minPacingSleep = time.Millisecond

// Returns a new pacer that spaces frames `fps` per second against the wall clock
func NewFramePacer(fps float64) *FramePacer {
	return &FramePacer{
		waitTime: time.Duration(math.Round(1/fps*1e9)) * time.Nanosecond,
		endTime:  time.Now(),
	}
}

// FramePacer keeps the target time of the next frame. The target advances by
// one frame duration per frame, so pacing does not drift with render time.
type FramePacer struct {
	waitTime time.Duration
	endTime  time.Time
}

func (p *FramePacer) FrameDuration() time.Duration {
	return p.waitTime
}

// Reset re-arms the target to now, dropping any pacing debt
func (p *FramePacer) Reset() {
	p.endTime = time.Now()
}

// Wait sleeps until the target time if it is still ahead
func (p *FramePacer) Wait(ctx context.Context) error {
	timeLeft := time.Until(p.endTime)
	if timeLeft > minPacingSleep {
		return sleepContext(ctx, timeLeft)
	}
	if timeLeft < -p.waitTime {
		logger.Debug("timer", "Frame is %v late", -timeLeft)
	}
	return ctx.Err()
}

func (p *FramePacer) Advance() {
	p.endTime = p.endTime.Add(p.waitTime)
}
