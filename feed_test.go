package main

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadFeedIDs(t *testing.T) {
	Convey("Given an in-memory filesystem", t, func() {
		useMemMapFs()
		Reset(useOsFs)
		fs := filesystem()

		Convey("A directory yields its videos in name order", func() {
			So(fs.MkdirAll("/videos/sub", 0o755), ShouldBeNil)
			for _, name := range []string{"b.mp4", "a.MKV", "notes.txt", "c.webm"} {
				So(fs.WriteFile("/videos/"+name, []byte("x"), 0o644), ShouldBeNil)
			}

			ids, err := loadFeedIDs("/videos")
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"/videos/a.MKV", "/videos/b.mp4", "/videos/c.webm"})
		})

		Convey("A list file yields its lines without comments or repeats", func() {
			So(fs.WriteFile("/list.txt", []byte("# queued clips\n/a.mp4\n\n  /b.mp4  \n/a.mp4\n"), 0o644), ShouldBeNil)

			ids, err := loadFeedIDs("/list.txt")
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"/a.mp4", "/b.mp4"})
		})

		Convey("An empty directory is an error", func() {
			So(fs.MkdirAll("/empty", 0o755), ShouldBeNil)
			_, err := loadFeedIDs("/empty")
			So(err, ShouldNotBeNil)
		})

		Convey("A missing source is an error", func() {
			_, err := loadFeedIDs("/nowhere")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestFeeder(t *testing.T) {
	Convey("Given a player listening and a feeder with 7 videos", t, func() {
		path := tempSocketPath(t)
		queue := NewIngestionQueue()
		l := NewSocketListener(ListenerConfig{Path: path, PollInterval: testPollInterval}, queue)
		playlist := NewPlaylist(queue, l, 2)
		l.OnConnect = func() { playlist.RequestMore() }
		So(l.Start(context.Background()), ShouldBeNil)
		Reset(l.Stop)

		ids := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7"}
		feeder := NewFeeder(FeedConfig{Socket: path, Batch: 3, Delay: time.Millisecond}, ids)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- feeder.Run(ctx) }()
		Reset(func() {
			cancel()
			<-done
		})

		waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
		Reset(waitCancel)

		Convey("Connecting triggers the first batch", func() {
			So(queue.WaitLen(waitCtx, 3), ShouldBeNil)
			So(waitFor(func() bool { return feeder.Acks() == 3 }), ShouldBeTrue)
			So(queue.snapshot(), ShouldResemble, []string{"v1", "v2", "v3"})
			So(feeder.Sent(), ShouldEqual, 3)
		})

		Convey("Each fetch brings the next batch until the list runs out", func() {
			So(queue.WaitLen(waitCtx, 3), ShouldBeNil)
			So(waitFor(func() bool { return feeder.Acks() == 3 }), ShouldBeTrue)

			So(playlist.RequestMore(), ShouldBeTrue)
			So(queue.WaitLen(waitCtx, 6), ShouldBeNil)
			So(waitFor(func() bool { return feeder.Acks() == 6 }), ShouldBeTrue)

			So(playlist.RequestMore(), ShouldBeTrue)
			So(queue.WaitLen(waitCtx, 7), ShouldBeNil)
			So(waitFor(func() bool { return feeder.Acks() == 7 }), ShouldBeTrue)

			So(playlist.RequestMore(), ShouldBeTrue)
			time.Sleep(2 * testPollInterval)
			So(queue.snapshot(), ShouldResemble, ids)
			So(feeder.Sent(), ShouldEqual, 7)
		})

		Convey("Run returns quietly when cancelled", func() {
			So(queue.WaitLen(waitCtx, 3), ShouldBeNil)
			cancel()
			select {
			case err := <-done:
				So(err, ShouldBeNil)
				done <- nil
			case <-time.After(2 * time.Second):
				So("feeder did not stop", ShouldBeEmpty)
			}
		})
	})
}
