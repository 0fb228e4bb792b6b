package main

import (
	"bytes"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFFmpegAudioChunks(t *testing.T) {
	Convey("Given ffmpeg output for a stereo format that ends mid frame", t, func() {
		pcm := bytes.Repeat([]byte{1, 2, 3, 4}, 3)
		pcm = append(pcm, 5, 6)
		s := &ffmpegAudioSource{
			stdout:    io.NopCloser(bytes.NewReader(pcm)),
			buf:       make([]byte, 8),
			frameSize: 4,
		}

		Convey("Chunks hold whole frames and the partial frame is dropped", func() {
			chunk, err := s.ReadChunk()
			So(err, ShouldBeNil)
			So(len(chunk), ShouldEqual, 8)

			chunk, err = s.ReadChunk()
			So(err, ShouldBeNil)
			So(chunk, ShouldResemble, []byte{1, 2, 3, 4})

			_, err = s.ReadChunk()
			So(err, ShouldEqual, io.EOF)
		})
	})
}
