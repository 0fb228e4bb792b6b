package main

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const SPEAKER_BUFFER_MILLISECONDS = 100

// Chunks queued ahead of the speaker before Write blocks
const beepQueueLength = 8

var (
	speakerOnce sync.Once
	speakerErr  error
	speakerRate beep.SampleRate
)

// The speaker can only be initialized once per process
func initSpeaker(format AudioFormat) error {
	speakerOnce.Do(func() {
		speakerRate = beep.SampleRate(format.SampleRate)
		speakerErr = speaker.Init(speakerRate, speakerRate.N(time.Millisecond*SPEAKER_BUFFER_MILLISECONDS))
	})
	if speakerErr == nil && int(speakerRate) != format.SampleRate {
		return fmt.Errorf("speaker already running at %d Hz", speakerRate)
	}
	return speakerErr
}

// PCMStreamer feeds queued chunks to the speaker and plays silence when
// the queue runs dry
type PCMStreamer struct {
	chunks  chan [][2]float64
	done    chan struct{}
	current [][2]float64
}

func NewPCMStreamer() *PCMStreamer {
	return &PCMStreamer{
		chunks: make(chan [][2]float64, beepQueueLength),
		done:   make(chan struct{}),
	}
}

func (s *PCMStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(s.current) == 0 {
			select {
			case <-s.done:
				return n, n > 0
			case c := <-s.chunks:
				s.current = c
			default:
				// underrun
				clear(samples[n:])
				return len(samples), true
			}
		}
		k := copy(samples[n:], s.current)
		s.current = s.current[k:]
		n += k
	}
	return n, true
}

func (s *PCMStreamer) Err() error {
	return nil
}

// Push queues a chunk, blocking while the queue is full
func (s *PCMStreamer) Push(chunk [][2]float64) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case <-s.done:
		return false
	case s.chunks <- chunk:
		return true
	}
}

func (s *PCMStreamer) Close() {
	close(s.done)
}

// beepDevice plays through the beep speaker
type beepDevice struct {
	streamer *PCMStreamer
	channels int
	once     sync.Once
}

func openBeepDevice(format AudioFormat) (*beepDevice, error) {
	if err := initSpeaker(format); err != nil {
		return nil, fmt.Errorf("initializing speaker: %w", err)
	}
	d := &beepDevice{streamer: NewPCMStreamer(), channels: format.Channels}
	speaker.Play(d.streamer)
	return d, nil
}

func (d *beepDevice) Write(pcm []byte) error {
	if !d.streamer.Push(pcmToSamples(pcm, d.channels)) {
		return fmt.Errorf("beep device closed")
	}
	return nil
}

func (d *beepDevice) Close() error {
	d.once.Do(func() {
		d.streamer.Close()
		speaker.Clear()
	})
	return nil
}

// Converts s16le PCM to beep's stereo floats, duplicating mono
func pcmToSamples(pcm []byte, channels int) [][2]float64 {
	channels = max(channels, 1)
	frameSize := 2 * channels
	samples := make([][2]float64, len(pcm)/frameSize)
	for i := range samples {
		frame := pcm[i*frameSize:]
		left := float64(int16(binary.LittleEndian.Uint16(frame))) / 32768
		right := left
		if channels > 1 {
			right = float64(int16(binary.LittleEndian.Uint16(frame[2:]))) / 32768
		}
		samples[i] = [2]float64{left, right}
	}
	return samples
}
