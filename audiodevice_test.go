package main

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeS16LE(t *testing.T) {
	Convey("decodeS16LE", t, func() {
		dst := make([]int16, 4)

		Convey("Decodes little endian samples", func() {
			n := decodeS16LE(dst, []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
			So(n, ShouldEqual, 3)
			So(dst[:3], ShouldResemble, []int16{1, -1, -32768})
		})

		Convey("Ignores a trailing odd byte", func() {
			So(decodeS16LE(dst, []byte{0x02, 0x00, 0x07}), ShouldEqual, 1)
			So(dst[0], ShouldEqual, int16(2))
		})

		Convey("Stops when dst is full", func() {
			So(decodeS16LE(dst, make([]byte, 20)), ShouldEqual, 4)
		})
	})
}

func TestPCMToSamples(t *testing.T) {
	Convey("pcmToSamples", t, func() {
		Convey("Duplicates mono into both channels", func() {
			samples := pcmToSamples([]byte{0x00, 0x40, 0x00, 0xc0}, 1)
			So(samples, ShouldResemble, [][2]float64{{0.5, 0.5}, {-0.5, -0.5}})
		})

		Convey("Keeps stereo channels apart", func() {
			samples := pcmToSamples([]byte{0x00, 0x40, 0x00, 0xc0}, 2)
			So(samples, ShouldResemble, [][2]float64{{0.5, -0.5}})
		})

		Convey("Drops incomplete frames", func() {
			So(pcmToSamples([]byte{0x00, 0x40, 0x00}, 2), ShouldBeEmpty)
		})
	})
}

func TestPCMStreamer(t *testing.T) {
	Convey("Given a streamer with two queued chunks", t, func() {
		s := NewPCMStreamer()
		So(s.Push([][2]float64{{0.1, 0.1}, {0.2, 0.2}}), ShouldBeTrue)
		So(s.Push([][2]float64{{0.3, 0.3}}), ShouldBeTrue)

		Convey("It plays them in order and fills an underrun with silence", func() {
			buf := [][2]float64{{9, 9}, {9, 9}, {9, 9}, {9, 9}}
			n, ok := s.Stream(buf)
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, 4)
			So(buf, ShouldResemble, [][2]float64{{0.1, 0.1}, {0.2, 0.2}, {0.3, 0.3}, {0, 0}})
		})

		Convey("A chunk can span several calls", func() {
			buf := make([][2]float64, 1)
			s.Stream(buf)
			So(buf[0], ShouldResemble, [2]float64{0.1, 0.1})
			s.Stream(buf)
			So(buf[0], ShouldResemble, [2]float64{0.2, 0.2})
		})

		Convey("After Close it drains and then ends", func() {
			s.Close()
			So(s.Push([][2]float64{{1, 1}}), ShouldBeFalse)

			buf := make([][2]float64, 8)
			for {
				n, ok := s.Stream(buf)
				if !ok {
					So(n, ShouldEqual, 0)
					break
				}
			}
			So(s.Err(), ShouldBeNil)
		})
	})
}
