package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const feedRetryInterval = 2 * time.Second

var videoExtensions = []string{".mp4", ".mkv", ".webm", ".mov", ".avi", ".m4v"}

// loadFeedIDs lists the videos of a directory, or the lines of a list file
func loadFeedIDs(source string) ([]string, error) {
	fs := filesystem()
	info, err := fs.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("reading feed source: %w", err)
	}

	var ids []string
	if info.IsDir() {
		entries, err := fs.ReadDir(source)
		if err != nil {
			return nil, fmt.Errorf("reading feed directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !lo.Contains(videoExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
				continue
			}
			ids = append(ids, filepath.Join(source, e.Name()))
		}
		slices.Sort(ids)
	} else {
		data, err := fs.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading feed list: %w", err)
		}
		ids = lo.FilterMap(strings.Split(string(data), "\n"), func(line string, _ int) (string, bool) {
			line = strings.TrimSpace(line)
			return line, line != "" && !strings.HasPrefix(line, "#")
		})
	}

	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no videos found in %s", source)
	}
	return ids, nil
}

// Feeder is a producer: it connects to the player and answers every fetch
// request with the next batch of ids.
type Feeder struct {
	cfg FeedConfig
	ids []string

	mu   sync.Mutex
	next int
	acks int
}

func NewFeeder(cfg FeedConfig, ids []string) *Feeder {
	return &Feeder{cfg: cfg, ids: ids}
}

// Run keeps a connection to the player until ctx ends, reconnecting after drops
func (f *Feeder) Run(ctx context.Context) error {
	for {
		conn, err := net.DialTimeout("unix", f.cfg.Socket, feedRetryInterval)
		if err != nil {
			logger.Info("feed", "Failed to connect: %v. Retrying in %v", err, feedRetryInterval)
			if err := sleepContext(ctx, feedRetryInterval); err != nil {
				return nil
			}
			continue
		}
		logger.Info("feed", "Connected to %s", f.cfg.Socket)

		err = f.serve(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("feed", "Connection lost: %v", err)
	}
}

// Handles one connection until it fails
func (f *Feeder) serve(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("player closed the connection")
			}
			return err
		}
		line = strings.TrimSuffix(line, "\n")

		switch {
		case line == strings.TrimSuffix(fetchCommand, "\n"):
			if err := f.sendBatch(ctx, conn); err != nil {
				return err
			}
		case strings.HasPrefix(line, ackPrefix):
			logger.Info("feed", "Player acknowledged %s", strings.TrimPrefix(line, ackPrefix))
			f.mu.Lock()
			f.acks++
			f.mu.Unlock()
		default:
			logger.Debug("feed", "Ignoring %q", line)
		}
	}
}

func (f *Feeder) sendBatch(ctx context.Context, w io.Writer) error {
	start := f.Sent()
	if start >= len(f.ids) {
		logger.Info("feed", "Fetch requested but all %d videos were sent", len(f.ids))
		return nil
	}

	batch := f.ids[start:min(start+max(f.cfg.Batch, 1), len(f.ids))]
	for i, id := range batch {
		if i > 0 {
			if err := sleepContext(ctx, f.cfg.Delay); err != nil {
				return err
			}
		}
		// one id per message so the player acks each separately
		if _, err := io.WriteString(w, id+"\n"); err != nil {
			return err
		}
		f.mu.Lock()
		f.next++
		f.mu.Unlock()
	}
	logger.Info("feed", "Sent %d videos, %d left", len(batch), len(f.ids)-f.Sent())
	return nil
}

func (f *Feeder) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

func (f *Feeder) Acks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}
