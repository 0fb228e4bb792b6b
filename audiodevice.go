package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Frames per PortAudio write
const portaudioFramesPerBuffer = 1024

var (
	portaudioOnce sync.Once
	portaudioErr  error
)

// Initializes PortAudio for the lifetime of the process
func initPortAudio() error {
	portaudioOnce.Do(func() {
		portaudioErr = portaudio.Initialize()
	})
	return portaudioErr
}

func terminatePortAudio() {
	if portaudioErr == nil {
		portaudio.Terminate()
	}
}

// portaudioDevice is a blocking output stream. Writes are buffered until a
// full PortAudio buffer is available.
type portaudioDevice struct {
	stream  *portaudio.Stream
	buffer  []int16
	pending []byte
}

func openPortAudioDevice(format AudioFormat) (*portaudioDevice, error) {
	if err := initPortAudio(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	d := &portaudioDevice{
		buffer: make([]int16, portaudioFramesPerBuffer*format.Channels),
	}
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), portaudioFramesPerBuffer, d.buffer)
	if err != nil {
		return nil, fmt.Errorf("opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("starting output stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *portaudioDevice) Write(pcm []byte) error {
	d.pending = append(d.pending, pcm...)
	frameBytes := len(d.buffer) * 2

	written := 0
	for len(d.pending)-written >= frameBytes {
		decodeS16LE(d.buffer, d.pending[written:written+frameBytes])
		if err := d.writeBuffer(); err != nil {
			return err
		}
		written += frameBytes
	}
	d.pending = d.pending[:copy(d.pending, d.pending[written:])]
	return nil
}

func (d *portaudioDevice) writeBuffer() error {
	err := d.stream.Write()
	if errors.Is(err, portaudio.OutputUnderflowed) {
		return nil
	}
	return err
}

// Close plays what is left, padded with silence, and closes the stream
func (d *portaudioDevice) Close() error {
	var errs []error
	if len(d.pending) > 0 {
		n := decodeS16LE(d.buffer, d.pending)
		clear(d.buffer[n:])
		d.pending = d.pending[:0]
		errs = append(errs, d.writeBuffer())
	}
	errs = append(errs, d.stream.Stop(), d.stream.Close())
	return errors.Join(errs...)
}

// Fills dst with little endian samples from src and returns how many were decoded
func decodeS16LE(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return n
}
