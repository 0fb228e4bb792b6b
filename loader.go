// This file opens media with libav through the go-astiav bindings.
// See https://github.com/leandromoreira/ffmpeg-libav-tutorial
// for a tutorial on how to use libav.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var libavLogOnce sync.Once

// Routes libav's own messages into the logger
func setupLibavLogging() {
	libavLogOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelError)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			var cs string
			if c != nil {
				if cl := c.Class(); cl != nil {
					cs = " - class: " + cl.String()
				}
			}
			logger.Debug("libav", "%s%s - level: %d", strings.TrimSpace(msg), cs, l)
		})
	})
}

// Decoder for a single stream of an input
type StreamDecoder struct {
	// The codec used to decode the stream
	codec *astiav.Codec
	// Context for the codec
	codecContext *astiav.CodecContext
	// Allocated space for a frame
	frame *astiav.Frame
	// The actual stream from the file
	inputStream *astiav.Stream
}

// MediaInput is an opened container with one selected stream decoder.
// Everything it allocates is released by closer.
type MediaInput struct {
	formatContext *astiav.FormatContext
	closer        *astikit.Closer
	packet        *astiav.Packet
	decoder       *StreamDecoder
}

// Opens id and prepares a decoder for its first stream of the given type
func openMediaInput(id string, mediaType astiav.MediaType) (_ *MediaInput, err error) {
	setupLibavLogging()

	in := &MediaInput{closer: astikit.NewCloser()}
	defer func() {
		if err != nil {
			in.closer.Close()
		}
	}()

	// Allocate input format context
	if in.formatContext = astiav.AllocFormatContext(); in.formatContext == nil {
		return nil, errors.New("failed to allocate input format context")
	}
	in.closer.Add(in.formatContext.Free)

	// Open input file
	if err := in.formatContext.OpenInput(id, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to open input %q: %w", id, err)
	}
	in.closer.Add(in.formatContext.CloseInput)

	// Find stream info
	if err := in.formatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("could not get information on streams in %q: %w", id, err)
	}

	var stream *astiav.Stream
	for _, s := range in.formatContext.Streams() {
		if s.CodecParameters().MediaType() == mediaType {
			stream = s
			break
		}
	}
	if stream == nil {
		switch mediaType {
		case astiav.MediaTypeAudio:
			return nil, ErrNoAudioStream
		case astiav.MediaTypeVideo:
			return nil, ErrNoVideoStream
		}
		return nil, fmt.Errorf("no %s stream", mediaType)
	}

	// Create a new stream decoder
	decoder := &StreamDecoder{inputStream: stream}
	if decoder.codec = astiav.FindDecoder(stream.CodecParameters().CodecID()); decoder.codec == nil {
		return nil, fmt.Errorf("could not find decoder for stream %d", stream.Index())
	}
	logger.Debug("loader", "Decoding %s stream %d of %s with codec %s", mediaType, stream.Index(), id, decoder.codec.Name())

	// Allocate space for the decoding context
	if decoder.codecContext = astiav.AllocCodecContext(decoder.codec); decoder.codecContext == nil {
		return nil, errors.New("failed to allocate decoder context")
	}
	in.closer.Add(decoder.codecContext.Free)

	// Create decoding context based on stream
	if err := stream.CodecParameters().ToCodecContext(decoder.codecContext); err != nil {
		return nil, fmt.Errorf("failed to initialize decoding context: %w", err)
	}

	// Open codec with context
	if err := decoder.codecContext.Open(decoder.codec, nil); err != nil {
		return nil, fmt.Errorf("failed to open decoder with context: %w", err)
	}

	// Allocate frame
	decoder.frame = astiav.AllocFrame()
	in.closer.Add(decoder.frame.Free)

	// Init packet to read frames
	in.packet = astiav.AllocPacket()
	in.closer.Add(in.packet.Free)

	in.decoder = decoder
	return in, nil
}

// Reads packets until one belongs to the selected stream and sends it to
// the decoder. At end of input the decoder is put in draining mode and
// eof is reported.
func (in *MediaInput) feed() (eof bool, err error) {
	for {
		if err := in.formatContext.ReadFrame(in.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				if err := in.decoder.codecContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return true, fmt.Errorf("failed to flush decoder: %w", err)
				}
				return true, nil
			}
			return false, fmt.Errorf("failed to read packet: %w", err)
		}

		if in.packet.StreamIndex() != in.decoder.inputStream.Index() {
			in.packet.Unref()
			continue
		}

		err := in.decoder.codecContext.SendPacket(in.packet)
		in.packet.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			return false, fmt.Errorf("failed to send packet to decoder: %w", err)
		}
		return false, nil
	}
}

// Receives one frame from the decoder into decoder.frame.
// ok is false when the decoder needs more input or is fully drained.
func (in *MediaInput) receive() (ok bool, drained bool, err error) {
	if err := in.decoder.codecContext.ReceiveFrame(in.decoder.frame); err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			return false, false, nil
		}
		if errors.Is(err, astiav.ErrEof) {
			return false, true, nil
		}
		return false, false, fmt.Errorf("receiving frame failed: %w", err)
	}
	return true, false, nil
}

func (in *MediaInput) Close() error {
	in.closer.Close()
	return nil
}

// Checks that a local path exists and is a file. URLs are left to libav.
func validateExistance(id string) error {
	if strings.Contains(id, "://") {
		return nil
	}
	info, err := filesystem().Stat(id)
	if err != nil {
		// Better error message for file not found
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not find file %q", id)
		}
		return fmt.Errorf("can't open file %q: %w", id, err)
	}
	if info.IsDir() {
		return fmt.Errorf("can't read %q: is a directory", id)
	}
	return nil
}
