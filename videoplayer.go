package main

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// Renderer draws a session on the terminal. Calls come from the playback
// goroutine only.
type Renderer interface {
	Begin() error
	RenderFrame(img image.Image) error
	RenderInfo(info OverlayInfo) error
	// RenderStatus replaces the screen with a centered message
	RenderStatus(lines ...string) error
	End() error
}

// OverlayInfo is what the info panel shows
type OverlayInfo struct {
	ID       string
	Elapsed  time.Duration
	Duration time.Duration
	Index    int
	Total    int
	Paused   bool
	Audio    bool
}

const overlayNameWidth = 20

var (
	accentColor = lipgloss.Color("#89b4fa")
	faintColor  = lipgloss.Color("#6c7086")
	warnColor   = lipgloss.Color("#f9e2af")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	faintStyle = lipgloss.NewStyle().Foreground(faintColor)
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(warnColor)
)

// terminalRenderer prints frames as characters through a buffered writer
type terminalRenderer struct {
	writer    *bufio.Writer
	term      TermData
	cfg       RenderConfig
	converter *AsciiConverter

	// measures the terminal, replaced in tests
	measure func(t *TermData, ratio uint) (bool, error)

	frameWidth int
	needsClear bool
}

func newTerminalRenderer(out io.Writer, cfg RenderConfig) (*terminalRenderer, error) {
	chars, err := charsetByName(cfg.Charset)
	if err != nil {
		return nil, tagErr("renderer", err)
	}
	return &terminalRenderer{
		writer:    bufio.NewWriter(out),
		cfg:       cfg,
		converter: NewAsciiConverter(chars, cfg.Width, cfg.Height),
		measure:   (*TermData).updateSize,
	}, nil
}

func (r *terminalRenderer) Begin() error {
	if _, err := r.measure(&r.term, r.cfg.Ratio); err != nil {
		return err
	}
	r.writer.WriteString(ENTER_ALT_BUFFER_TERM)
	r.writer.WriteString(HIDE_CURSOR_TERM)
	r.writer.WriteString(CLEAR_SCREEN_TERM)
	logger.Info("renderer", "Started on a %dx%d terminal", r.term.cols, r.term.rows)
	return r.writer.Flush()
}

func (r *terminalRenderer) End() error {
	r.writer.WriteString(CLEAR_SCREEN_TERM)
	r.writer.WriteString(SHOW_CURSOR_TERM)
	r.writer.WriteString(EXIT_ALT_BUFFER_TERM)
	return r.writer.Flush()
}

func (r *terminalRenderer) refreshSize() {
	if r.term.defined && !r.cfg.Resize {
		return
	}
	changed, err := r.measure(&r.term, r.cfg.Ratio)
	if err != nil {
		logger.Warn("renderer", "Could not measure terminal: %v", err)
		return
	}
	if changed {
		r.needsClear = true
	}
}

func (r *terminalRenderer) RenderFrame(img image.Image) error {
	start := time.Now()
	r.refreshSize()
	frame := r.converter.Convert(img, &r.term)

	if r.needsClear || frame.Width() != r.frameWidth {
		r.writer.WriteString(CLEAR_SCREEN_TERM)
		r.needsClear = false
	}
	r.frameWidth = frame.Width()

	r.writer.WriteString(MOVE_HOME_TERM)
	for i, row := range frame.rows {
		if i > 0 {
			r.writer.WriteString("\r\n")
		}
		r.writer.WriteString(string(row))
	}
	err := r.writer.Flush()
	logger.Debug("renderer", "Frame took %v to render", time.Since(start))
	return err
}

func (r *terminalRenderer) RenderInfo(info OverlayInfo) error {
	panel := renderOverlay(info)

	// next to the picture when there is room, over it otherwise
	col := 1
	if r.frameWidth+lipgloss.Width(panel)+1 <= int(r.term.cols) {
		col = r.frameWidth + 2
	}
	for i, line := range strings.Split(panel, "\n") {
		moveTo(r.writer, i+1, col)
		r.writer.WriteString(line)
	}
	return r.writer.Flush()
}

func (r *terminalRenderer) RenderStatus(lines ...string) error {
	r.refreshSize()
	r.frameWidth = 0
	r.needsClear = true

	body := make([]string, 0, len(lines)+2)
	body = append(body, titleStyle.Render(appName))
	for _, line := range lines {
		body = append(body, faintStyle.Render(line))
	}
	if r.term.tooSmall() {
		body = append(body, "", warnStyle.Render(fmt.Sprintf(
			"Terminal is %dx%d, at least %dx%d recommended",
			r.term.cols, r.term.rows, minTermCols, minTermRows)))
	}
	screen := lipgloss.Place(int(r.term.cols), int(r.term.rows),
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, body...))

	r.writer.WriteString(CLEAR_SCREEN_TERM)
	r.writer.WriteString(MOVE_HOME_TERM)
	r.writer.WriteString(strings.ReplaceAll(screen, "\n", "\r\n"))
	return r.writer.Flush()
}

func renderOverlay(info OverlayInfo) string {
	name := truncate.StringWithTail(filepath.Base(info.ID), overlayNameWidth, "…")
	elapsed := formatClock(info.Elapsed)
	if info.Duration > 0 {
		elapsed += " / " + formatClock(info.Duration)
	}

	state := "playing"
	if info.Paused {
		state = "paused"
	}
	if !info.Audio {
		state += ", no audio"
	}

	lines := []string{
		titleStyle.Render("VIDEO INFO"),
		"File: " + name,
		"Time: " + elapsed,
		fmt.Sprintf("Item: %d/%d", info.Index+1, info.Total),
		faintStyle.Render(state),
		"",
		titleStyle.Render("CONTROLS"),
		"q Quit",
		"␣ Pause",
		"↑↓ Scroll",
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// Formats d as mm:ss
func formatClock(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
