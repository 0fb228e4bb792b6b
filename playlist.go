package main

// Sent to the producer when the cursor gets close to the end of the queue
const fetchCommand = "fetch\n"

// Fetcher delivers a message to the producer. Send must not block
// waiting for a producer and reports whether the message went out.
type Fetcher interface {
	Send(msg string) bool
}

// Navigator is the view of the playlist a playback session needs
type Navigator interface {
	Cursor() int
	Len() int
	HasNext() bool
	HasPrevious() bool
	RequestMore() bool
}

// Playlist walks the ingestion queue with a cursor. The cursor is owned by
// the playback goroutine; only RequestMore may be called from elsewhere.
type Playlist struct {
	queue   *IngestionQueue
	fetcher Fetcher
	window  int
	cursor  int
}

func NewPlaylist(queue *IngestionQueue, fetcher Fetcher, window int) *Playlist {
	return &Playlist{
		queue:   queue,
		fetcher: fetcher,
		window:  max(window, 0),
	}
}

func (p *Playlist) Cursor() int {
	return p.cursor
}

func (p *Playlist) Len() int {
	return p.queue.Len()
}

func (p *Playlist) Current() (string, bool) {
	return p.queue.Get(p.cursor)
}

func (p *Playlist) HasNext() bool {
	return p.cursor < p.queue.Len()-1
}

func (p *Playlist) HasPrevious() bool {
	return p.cursor > 0
}

// Advance moves to the next entry if there is one. When the cursor is within
// the fetch window of the tail, one fetch request is sent per call.
func (p *Playlist) Advance() bool {
	size := p.queue.Len()
	if size-1-p.cursor <= p.window {
		p.RequestMore()
	}
	if p.cursor >= size-1 {
		return false
	}
	p.cursor++
	return true
}

func (p *Playlist) Retreat() bool {
	if p.cursor == 0 {
		return false
	}
	p.cursor--
	return true
}

func (p *Playlist) RequestMore() bool {
	if p.fetcher == nil {
		return false
	}
	return p.fetcher.Send(fetchCommand)
}
