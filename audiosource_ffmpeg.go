package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Bytes read from the ffmpeg pipe per chunk
const ffmpegChunkSize = 4096

// ffmpegAudioSource runs an ffmpeg process that writes raw PCM to a pipe
type ffmpegAudioSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	eof    bool

	// bytes per sample frame, all channels
	frameSize int
}

func openFFmpegAudio(id string, format AudioFormat) (*ffmpegAudioSource, error) {
	cmd := ffmpeg.Input(id).
		Output("pipe:", ffmpeg.KwArgs{
			"format": "s16le",
			"acodec": "pcm_s16le",
			"ar":     format.SampleRate,
			"ac":     format.Channels,
		}).
		Compile()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	logger.Debug("ffmpeg", "Running %v", cmd.Args)

	frameSize := 2 * max(format.Channels, 1)
	return &ffmpegAudioSource{
		cmd:       cmd,
		stdout:    stdout,
		buf:       make([]byte, ffmpegChunkSize-ffmpegChunkSize%frameSize),
		frameSize: frameSize,
	}, nil
}

func (s *ffmpegAudioSource) ReadChunk() ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	n, err := io.ReadFull(s.stdout, s.buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		// last partial chunk, keep whole frames only
		s.eof = true
		n -= n % s.frameSize
	case errors.Is(err, io.EOF):
		s.eof = true
		return nil, io.EOF
	case err != nil:
		return nil, err
	}
	chunk := make([]byte, n)
	copy(chunk, s.buf[:n])
	return chunk, nil
}

func (s *ffmpegAudioSource) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	// killed on purpose, the exit status is not interesting
	s.cmd.Wait()
	return nil
}
