package main

import (
	"context"
	"fmt"
)

// MediaOpener creates the per-session decoders
type MediaOpener interface {
	OpenVideo(id string) (VideoDecoder, error)
	// OpenAudio returns a nil pipeline when audio is disabled
	OpenAudio(ctx context.Context, id string) (*AudioPipeline, error)
	Probe(ctx context.Context, id string) (VideoInfo, error)
}

// libavMedia opens media with libav, ffmpeg and the configured audio output
type libavMedia struct {
	audio AudioConfig
	probe bool
}

func newLibavMedia(cfg Config) *libavMedia {
	return &libavMedia{audio: cfg.Audio, probe: cfg.Probe}
}

func (m *libavMedia) OpenVideo(id string) (VideoDecoder, error) {
	return openVideoDecoder(id)
}

func (m *libavMedia) OpenAudio(ctx context.Context, id string) (*AudioPipeline, error) {
	if !m.audio.Enabled {
		return nil, nil
	}
	format := m.audio.Format()

	source, err := m.openSource(ctx, id, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAudioUnavailable, err)
	}
	device, err := openOutputDevice(m.audio.Output, format)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("%w: %w", ErrAudioUnavailable, err)
	}
	return NewAudioPipeline(source, device, format, m.audio.Prebuffer), nil
}

func (m *libavMedia) openSource(ctx context.Context, id string, format AudioFormat) (AudioSource, error) {
	switch m.audio.Decoder {
	case decoderFFmpeg:
		// ffmpeg exits quietly on files without audio, so ask ffprobe first
		info, err := probeVideo(ctx, id)
		if err != nil {
			return nil, err
		}
		if !info.HasAudio {
			return nil, ErrNoAudioStream
		}
		return openFFmpegAudio(id, format)
	case decoderLibav, "":
		return openLibavAudio(id, format)
	default:
		return nil, fmt.Errorf("unknown audio decoder %q", m.audio.Decoder)
	}
}

func (m *libavMedia) Probe(ctx context.Context, id string) (VideoInfo, error) {
	if !m.probe {
		return VideoInfo{}, nil
	}
	return probeVideo(ctx, id)
}

func openOutputDevice(output string, format AudioFormat) (OutputDevice, error) {
	switch output {
	case outputBeep:
		return openBeepDevice(format)
	case outputPortAudio, "":
		return openPortAudioDevice(format)
	default:
		return nil, fmt.Errorf("unknown audio output %q", output)
	}
}

// initAudioOutput brings up the output subsystem once at startup. A failure
// here is fatal, unlike failures of a single video's audio.
func initAudioOutput(cfg AudioConfig) (shutdown func(), err error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	switch cfg.Output {
	case outputBeep:
		if err := initSpeaker(cfg.Format()); err != nil {
			return nil, tagErr("audio", err)
		}
		return func() {}, nil
	case outputPortAudio, "":
		if err := initPortAudio(); err != nil {
			return nil, tagErr("audio", err)
		}
		return terminatePortAudio, nil
	default:
		return nil, tagErr("audio", fmt.Errorf("unknown audio output %q", cfg.Output))
	}
}
