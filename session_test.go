package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeDecoder yields `remaining` frames, forever when negative
type fakeDecoder struct {
	mu        sync.Mutex
	remaining int
	err       error
	closed    bool
}

func (d *fakeDecoder) NextFrame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remaining == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, io.EOF
	}
	if d.remaining > 0 {
		d.remaining--
	}
	return uniformImage(2, 2, color.White), nil
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDecoder) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeMedia struct {
	mu        sync.Mutex
	frames    map[string]int
	decodeErr map[string]error
	audio     bool
	audioErr  error
	decoders  map[string]*fakeDecoder
	pipelines []*AudioPipeline

	// info lookups block until their context ends
	slowInfo     bool
	infoReturned atomic.Bool
}

func newFakeMedia(frames map[string]int) *fakeMedia {
	return &fakeMedia{
		frames:    frames,
		decodeErr: make(map[string]error),
		decoders:  make(map[string]*fakeDecoder),
	}
}

func (m *fakeMedia) OpenVideo(id string) (VideoDecoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.frames[id]
	if !ok {
		return nil, fmt.Errorf("%w in %s", ErrNoVideoStream, id)
	}
	d := &fakeDecoder{remaining: n, err: m.decodeErr[id]}
	m.decoders[id] = d
	return d, nil
}

func (m *fakeMedia) OpenAudio(ctx context.Context, id string) (*AudioPipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAudioUnavailable, m.audioErr)
	}
	if !m.audio {
		return nil, nil
	}
	a := NewAudioPipeline(&fakeSource{fill: 441}, &fakeDevice{delay: time.Millisecond}, testFormat, 2)
	m.pipelines = append(m.pipelines, a)
	return a, nil
}

func (m *fakeMedia) Probe(ctx context.Context, id string) (VideoInfo, error) {
	if m.slowInfo {
		<-ctx.Done()
		m.infoReturned.Store(true)
		return VideoInfo{}, ctx.Err()
	}
	return VideoInfo{Duration: 3 * time.Second, HasAudio: m.audio}, nil
}

func (m *fakeMedia) decoder(id string) *fakeDecoder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decoders[id]
}

type fakeRenderer struct {
	mu       sync.Mutex
	frames   int
	infos    []OverlayInfo
	statuses []string
	begun    bool
	ended    bool
}

func (r *fakeRenderer) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = true
	return nil
}

func (r *fakeRenderer) RenderFrame(img image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	return nil
}

func (r *fakeRenderer) RenderInfo(info OverlayInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
	return nil
}

func (r *fakeRenderer) RenderStatus(lines ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, lines...)
	return nil
}

func (r *fakeRenderer) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
	return nil
}

func (r *fakeRenderer) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *fakeRenderer) infoCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.infos)
}

func (r *fakeRenderer) lastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

var testPlayback = PlaybackConfig{
	FPS:          200,
	FetchWindow:  2,
	InfoInterval: 10,
	IdleInterval: 10 * time.Millisecond,
	MaxSyncSleep: 100 * time.Millisecond,
}

func runSession(s *Session) <-chan SessionResult {
	results := make(chan SessionResult, 1)
	go func() { results <- s.Run(context.Background()) }()
	return results
}

func awaitResult(results <-chan SessionResult) (SessionResult, bool) {
	select {
	case r := <-results:
		return r, true
	case <-time.After(3 * time.Second):
		return SessionResult{}, false
	}
}

func TestSession(t *testing.T) {
	Convey("Given a session over a playlist", t, func() {
		media := newFakeMedia(map[string]int{"v1": 25, "v2": -1, "loop": -1})
		renderer := &fakeRenderer{}
		input := make(chan Action, 8)
		fetcher := &recordingFetcher{connected: true}
		playlist := NewPlaylist(queueOf("v1", "v2"), fetcher, 2)
		deps := SessionDeps{Media: media, Renderer: renderer, Input: input, Nav: playlist}

		Convey("A video plays to its end", func() {
			s, err := OpenSession(context.Background(), "v1", testPlayback, deps)
			So(err, ShouldBeNil)

			result, ok := awaitResult(runSession(s))
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeEndOfStream)
			So(result.Frames, ShouldEqual, 25)
			So(result.Watched, ShouldEqual, 125*time.Millisecond)
			So(renderer.frameCount(), ShouldEqual, 25)

			Convey("The overlay is refreshed every tenth frame, starting with the first", func() {
				So(renderer.infoCount(), ShouldEqual, 3)
				So(renderer.infos[0].ID, ShouldEqual, "v1")
				So(renderer.infos[0].Elapsed, ShouldEqual, time.Duration(0))
				So(renderer.infos[1].Elapsed, ShouldEqual, 50*time.Millisecond)
				So(renderer.infos[0].Total, ShouldEqual, 2)
			})

			Convey("Close releases the decoder", func() {
				So(s.Close(), ShouldBeNil)
				So(media.decoder("v1").isClosed(), ShouldBeTrue)
			})
		})

		Convey("Close waits for the info lookup still in flight", func() {
			media.slowInfo = true
			s, err := OpenSession(context.Background(), "v1", testPlayback, deps)
			So(err, ShouldBeNil)

			result, ok := awaitResult(runSession(s))
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeEndOfStream)
			So(s.Close(), ShouldBeNil)
			So(media.infoReturned.Load(), ShouldBeTrue)
			So(renderer.infos[0].Duration, ShouldEqual, time.Duration(0))
		})

		Convey("A decode error ends the session", func() {
			boom := errors.New("corrupt packet")
			media.decodeErr["v1"] = boom
			s, err := OpenSession(context.Background(), "v1", testPlayback, deps)
			So(err, ShouldBeNil)

			result, ok := awaitResult(runSession(s))
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeFailed)
			So(result.Err, ShouldEqual, boom)
			So(result.Frames, ShouldEqual, 25)
		})

		Convey("A missing video fails to open", func() {
			_, err := OpenSession(context.Background(), "nope", testPlayback, deps)
			So(errors.Is(err, ErrNoVideoStream), ShouldBeTrue)
		})

		Convey("Quit ends the session at once", func() {
			input <- ActionQuit
			s, _ := OpenSession(context.Background(), "loop", testPlayback, deps)
			result, ok := awaitResult(runSession(s))
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeQuit)
			So(result.Frames, ShouldEqual, 0)
		})

		Convey("Next moves on when another video is queued", func() {
			s, _ := OpenSession(context.Background(), "loop", testPlayback, deps)
			results := runSession(s)
			input <- ActionNext
			result, ok := awaitResult(results)
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeNext)
		})

		Convey("Next at the tail asks for more and keeps playing", func() {
			playlist.Advance()
			before := fetcher.count()
			s, _ := OpenSession(context.Background(), "loop", testPlayback, deps)
			results := runSession(s)
			input <- ActionNext
			So(waitFor(func() bool { return fetcher.count() == before+1 }), ShouldBeTrue)
			So(waitFor(func() bool { return renderer.frameCount() > 5 }), ShouldBeTrue)

			input <- ActionQuit
			result, ok := awaitResult(results)
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeQuit)
		})

		Convey("Previous is ignored at the head and honoured after it", func() {
			s, _ := OpenSession(context.Background(), "loop", testPlayback, deps)
			results := runSession(s)
			input <- ActionPrevious
			So(waitFor(func() bool { return renderer.frameCount() > 5 }), ShouldBeTrue)
			input <- ActionQuit
			result, _ := awaitResult(results)
			So(result.Outcome, ShouldEqual, OutcomeQuit)

			playlist.Advance()
			s, _ = OpenSession(context.Background(), "loop", testPlayback, deps)
			results = runSession(s)
			input <- ActionPrevious
			result, ok := awaitResult(results)
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomePrevious)
		})

		Convey("Cancelling the context quits with its cause", func() {
			ctx, cancel := context.WithCancelCause(context.Background())
			s, _ := OpenSession(ctx, "loop", testPlayback, deps)
			results := make(chan SessionResult, 1)
			go func() { results <- s.Run(ctx) }()
			cancel(ErrUserQuit)
			result, ok := awaitResult(results)
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeQuit)
			So(result.Err, ShouldEqual, ErrUserQuit)
		})

		Convey("With audio", func() {
			media.audio = true
			s, err := OpenSession(context.Background(), "loop", testPlayback, deps)
			So(err, ShouldBeNil)
			So(s.AudioClock(), ShouldEqual, 0.0)
			So(s.FrameIndex(), ShouldEqual, 0)
			results := runSession(s)

			Convey("Pause holds video and audio until resumed", func() {
				So(waitFor(func() bool { return renderer.frameCount() > 2 }), ShouldBeTrue)
				input <- ActionTogglePause
				So(waitFor(func() bool { return media.pipelines[0].Paused() }), ShouldBeTrue)

				time.Sleep(20 * time.Millisecond)
				frames := renderer.frameCount()
				time.Sleep(50 * time.Millisecond)
				So(renderer.frameCount(), ShouldEqual, frames)

				input <- ActionTogglePause
				So(waitFor(func() bool { return renderer.frameCount() > frames }), ShouldBeTrue)
				So(media.pipelines[0].Paused(), ShouldBeFalse)

				input <- ActionQuit
				_, ok := awaitResult(results)
				So(ok, ShouldBeTrue)
			})

			Convey("Close stops and releases the audio", func() {
				So(waitFor(func() bool { return s.AudioClock() > 0 }), ShouldBeTrue)
				input <- ActionQuit
				_, ok := awaitResult(results)
				So(ok, ShouldBeTrue)

				So(s.Close(), ShouldBeNil)
				So(media.pipelines[0].Active(), ShouldBeFalse)
				So(media.decoder("loop").isClosed(), ShouldBeTrue)
			})
		})

		Convey("Unavailable audio leaves the session silent", func() {
			media.audioErr = errors.New("no output device")
			s, err := OpenSession(context.Background(), "v1", testPlayback, deps)
			So(err, ShouldBeNil)
			So(s.AudioClock(), ShouldEqual, 0.0)

			result, ok := awaitResult(runSession(s))
			So(ok, ShouldBeTrue)
			So(result.Outcome, ShouldEqual, OutcomeEndOfStream)
			So(renderer.infos[0].Audio, ShouldBeFalse)
		})
	})

	Convey("Outcomes have names", t, func() {
		So(OutcomeEndOfStream.String(), ShouldEqual, "end")
		So(OutcomeFailed.String(), ShouldEqual, "failed")
	})
}
