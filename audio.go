package main

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

// AudioFormat describes signed 16-bit little endian PCM
type AudioFormat struct {
	SampleRate int
	Channels   int
}

func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// AudioSource yields decoded PCM in the output format. ReadChunk handles one
// compressed packet per call and may return an empty chunk for packets that
// carry no audio. It returns io.EOF once the stream is exhausted.
type AudioSource interface {
	ReadChunk() ([]byte, error)
	Close() error
}

// OutputDevice plays PCM. Write blocks while the device buffer is full,
// which is what paces the decode loop.
type OutputDevice interface {
	Write(pcm []byte) error
	Close() error
}

// AudioPipeline drives one session's audio on its own goroutine and exposes
// a clock derived from the bytes handed to the device.
//
// The source and device belong to the decode goroutine while it runs and are
// released by Close only after it has been joined.
type AudioPipeline struct {
	source    AudioSource
	device    OutputDevice
	format    AudioFormat
	prebuffer int

	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	playing bool
	paused  bool
	err     error
	done    chan struct{}

	bytesPlayed atomic.Int64
	clockBits   atomic.Uint64
	active      atomic.Bool

	stopAfter func() bool
	closeOnce sync.Once
	closeErr  error
}

func NewAudioPipeline(source AudioSource, device OutputDevice, format AudioFormat, prebuffer int) *AudioPipeline {
	a := &AudioPipeline{
		source:    source,
		device:    device,
		format:    format,
		prebuffer: max(prebuffer, 0),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Play starts the decode goroutine. Cancelling ctx has the effect of Stop.
// A pipeline plays once; later calls do nothing.
func (a *AudioPipeline) Play(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.playing = true
	a.paused = false
	a.bytesPlayed.Store(0)
	a.clockBits.Store(0)
	a.done = make(chan struct{})
	a.active.Store(true)
	a.mu.Unlock()

	a.stopAfter = context.AfterFunc(ctx, a.Stop)
	go a.run()
}

func (a *AudioPipeline) run() {
	defer close(a.done)
	defer a.active.Store(false)

	logger.Debug("audio", "Prebuffering %d chunks", a.prebuffer)
	for i := 0; i < a.prebuffer; i++ {
		if !a.isPlaying() {
			return
		}
		chunk, err := a.source.ReadChunk()
		if err != nil {
			a.finish(err)
			return
		}
		if err := a.write(chunk); err != nil {
			a.finish(err)
			return
		}
	}

	for {
		a.mu.Lock()
		for a.playing && a.paused {
			a.cond.Wait()
		}
		playing := a.playing
		a.mu.Unlock()
		if !playing {
			return
		}

		chunk, err := a.source.ReadChunk()
		if err != nil {
			a.finish(err)
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if err := a.write(chunk); err != nil {
			a.finish(err)
			return
		}

		total := a.bytesPlayed.Add(int64(len(chunk)))
		clock := float64(total) / float64(a.format.BytesPerSecond())
		a.clockBits.Store(math.Float64bits(clock))
	}
}

func (a *AudioPipeline) write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	return a.device.Write(chunk)
}

func (a *AudioPipeline) finish(err error) {
	if errors.Is(err, io.EOF) {
		logger.Debug("audio", "End of stream after %.2fs", a.Clock())
		return
	}
	logger.Error("audio", "Playback stopped: %v", err)
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *AudioPipeline) isPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Pause is idempotent and keeps the clock where it is
func (a *AudioPipeline) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playing {
		return
	}
	a.paused = true
	a.cond.Broadcast()
}

// Resume does nothing unless the pipeline is paused
func (a *AudioPipeline) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.paused {
		return
	}
	a.paused = false
	a.cond.Broadcast()
}

func (a *AudioPipeline) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Stop ends playback and waits for the decode goroutine.
// It is idempotent and safe to call before Play.
func (a *AudioPipeline) Stop() {
	a.mu.Lock()
	a.playing = false
	a.paused = false
	a.cond.Broadcast()
	done := a.done
	a.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Close stops playback, then releases the source and the device
func (a *AudioPipeline) Close() error {
	a.closeOnce.Do(func() {
		a.Stop()
		if a.stopAfter != nil {
			a.stopAfter()
		}
		a.closeErr = errors.Join(a.source.Close(), a.device.Close())
	})
	return a.closeErr
}

// Clock returns the seconds of audio handed to the device
func (a *AudioPipeline) Clock() float64 {
	return math.Float64frombits(a.clockBits.Load())
}

func (a *AudioPipeline) BytesPlayed() int64 {
	return a.bytesPlayed.Load()
}

// Active is true while the decode goroutine is still producing audio
func (a *AudioPipeline) Active() bool {
	return a.active.Load()
}

func (a *AudioPipeline) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}
