package main

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// records what the playlist sends to the producer
type recordingFetcher struct {
	mu        sync.Mutex
	messages  []string
	connected bool
}

func (f *recordingFetcher) Send(msg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.messages = append(f.messages, msg)
	return true
}

func (f *recordingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func queueOf(ids ...string) *IngestionQueue {
	q := NewIngestionQueue()
	for _, id := range ids {
		q.PushUnique(id)
	}
	return q
}

func TestPlaylist(t *testing.T) {
	Convey("Given a playlist over 6 videos", t, func() {
		fetcher := &recordingFetcher{connected: true}
		p := NewPlaylist(queueOf("v0", "v1", "v2", "v3", "v4", "v5"), fetcher, 2)

		Convey("It starts at the head", func() {
			id, ok := p.Current()
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "v0")
			So(p.HasPrevious(), ShouldBeFalse)
			So(p.HasNext(), ShouldBeTrue)
		})

		Convey("Advancing far from the tail sends nothing", func() {
			So(p.Advance(), ShouldBeTrue)
			So(p.Advance(), ShouldBeTrue)
			So(p.Cursor(), ShouldEqual, 2)
			So(fetcher.count(), ShouldEqual, 0)
		})

		Convey("Each advance within two of the tail sends one fetch", func() {
			p.Advance()
			p.Advance()
			p.Advance() // from 2, three from the tail
			So(fetcher.count(), ShouldEqual, 0)

			p.Advance() // from 3
			So(fetcher.count(), ShouldEqual, 1)
			p.Advance() // from 4
			So(fetcher.count(), ShouldEqual, 2)
			So(fetcher.messages, ShouldResemble, []string{fetchCommand, fetchCommand})
			So(p.Cursor(), ShouldEqual, 5)
		})

		Convey("Advancing at the tail stays put but still asks for more", func() {
			for p.Advance() {
			}
			So(p.Cursor(), ShouldEqual, 5)
			before := fetcher.count()
			So(p.Advance(), ShouldBeFalse)
			So(fetcher.count(), ShouldEqual, before+1)
		})

		Convey("Retreat is clamped at the head", func() {
			So(p.Retreat(), ShouldBeFalse)
			p.Advance()
			So(p.Retreat(), ShouldBeTrue)
			So(p.Cursor(), ShouldEqual, 0)
		})

		Convey("Growth of the queue is visible", func() {
			for p.Advance() {
			}
			So(p.HasNext(), ShouldBeFalse)
			p.queue.PushUnique("v6")
			So(p.HasNext(), ShouldBeTrue)
			So(p.Len(), ShouldEqual, 7)
		})

		Convey("Without a producer fetches are dropped", func() {
			fetcher.connected = false
			for p.Advance() {
			}
			So(fetcher.count(), ShouldEqual, 0)
			So(p.RequestMore(), ShouldBeFalse)
		})
	})

	Convey("A playlist without a fetcher", t, func() {
		p := NewPlaylist(queueOf("a"), nil, 2)
		So(p.RequestMore(), ShouldBeFalse)
		So(p.Advance(), ShouldBeFalse)
	})
}
