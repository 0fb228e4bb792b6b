package main

import (
	"fmt"
	"image"
	"io"

	"github.com/asticode/go-astiav"
)

// VideoDecoder yields decoded frames in display order.
// NextFrame returns io.EOF after the last frame.
type VideoDecoder interface {
	NextFrame() (image.Image, error)
	Close() error
}

type libavVideoDecoder struct {
	input   *MediaInput
	eof     bool
	drained bool
}

// Opens the first video stream of id
func openVideoDecoder(id string) (*libavVideoDecoder, error) {
	if err := validateExistance(id); err != nil {
		return nil, err
	}
	input, err := openMediaInput(id, astiav.MediaTypeVideo)
	if err != nil {
		return nil, err
	}
	return &libavVideoDecoder{input: input}, nil
}

func (d *libavVideoDecoder) NextFrame() (image.Image, error) {
	for {
		if d.drained {
			return nil, io.EOF
		}

		ok, drained, err := d.input.receive()
		if err != nil {
			return nil, err
		}
		if ok {
			return d.toImage()
		}
		if drained {
			d.drained = true
			continue
		}

		// the decoder wants input but there is none left
		if d.eof {
			d.drained = true
			continue
		}
		if d.eof, err = d.input.feed(); err != nil {
			return nil, err
		}
	}
}

// Converts the current frame to an image
func (d *libavVideoDecoder) toImage() (image.Image, error) {
	frame := d.input.decoder.frame
	defer frame.Unref()

	data := frame.Data()
	img, err := data.GuessImageFormat()
	if err != nil {
		return nil, fmt.Errorf("guessing image format failed: %w", err)
	}
	if err := data.ToImage(img); err != nil {
		return nil, fmt.Errorf("converting frame to image failed: %w", err)
	}
	return img, nil
}

func (d *libavVideoDecoder) Close() error {
	return d.input.Close()
}
