package main

import (
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
)

// libavAudioSource decodes the first audio stream and resamples it to the
// output format, one packet per ReadChunk.
type libavAudioSource struct {
	input     *MediaInput
	resampler *astiav.SoftwareResampleContext
	resampled *astiav.Frame
	format    AudioFormat
	eof       bool
}

func openLibavAudio(id string, format AudioFormat) (*libavAudioSource, error) {
	if err := validateExistance(id); err != nil {
		return nil, err
	}
	input, err := openMediaInput(id, astiav.MediaTypeAudio)
	if err != nil {
		return nil, err
	}

	s := &libavAudioSource{input: input, format: format}
	if s.resampler = astiav.AllocSoftwareResampleContext(); s.resampler == nil {
		input.Close()
		return nil, fmt.Errorf("failed to allocate resampler")
	}
	input.closer.Add(s.resampler.Free)

	s.resampled = astiav.AllocFrame()
	input.closer.Add(s.resampled.Free)
	return s, nil
}

func (s *libavAudioSource) channelLayout() astiav.ChannelLayout {
	if s.format.Channels == 2 {
		return astiav.ChannelLayoutStereo
	}
	return astiav.ChannelLayoutMono
}

func (s *libavAudioSource) ReadChunk() ([]byte, error) {
	if s.eof {
		// drain what the decoder still holds after the flush
		chunk, drained, err := s.drain()
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 && drained {
			return nil, io.EOF
		}
		return chunk, nil
	}

	eof, err := s.input.feed()
	if err != nil {
		return nil, err
	}
	s.eof = eof

	chunk, _, err := s.drain()
	return chunk, err
}

// Receives every frame the decoder has ready and returns them as PCM
func (s *libavAudioSource) drain() (chunk []byte, drained bool, err error) {
	for {
		ok, drained, err := s.input.receive()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return chunk, drained || s.eof, nil
		}

		pcm, err := s.convert()
		if err != nil {
			return nil, false, err
		}
		chunk = append(chunk, pcm...)
	}
}

// Resamples the decoded frame into the output format
func (s *libavAudioSource) convert() ([]byte, error) {
	defer s.input.decoder.frame.Unref()
	defer s.resampled.Unref()

	s.resampled.SetChannelLayout(s.channelLayout())
	s.resampled.SetSampleFormat(astiav.SampleFormatS16)
	s.resampled.SetSampleRate(s.format.SampleRate)

	if err := s.resampler.ConvertFrame(s.input.decoder.frame, s.resampled); err != nil {
		return nil, fmt.Errorf("resampling audio failed: %w", err)
	}

	size, err := s.resampled.SamplesBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("sizing resampled audio failed: %w", err)
	}
	buf := make([]byte, size)
	if _, err := s.resampled.SamplesCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("copying resampled audio failed: %w", err)
	}
	return buf, nil
}

func (s *libavAudioSource) Close() error {
	return s.input.Close()
}
