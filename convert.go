package main

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
)

var (
	CHARS_ASCII = []rune{
		' ', '.', '\'', '`', '^', '"', ',',
		':', ';', 'I', 'l', '!', 'i', '>',
		'<', '~', '+', '_', '-', '?', ']',
		'[', '}', '{', '1', ')', '(', '|',
		'\\', '/', 't', 'f', 'j', 'r', 'x',
		'n', 'u', 'v', 'c', 'z', 'X', 'Y',
		'U', 'J', 'C', 'L', 'Q', '0', 'O',
		'Z', 'm', 'w', 'q', 'p', 'd', 'b',
		'k', 'h', 'a', 'o', '*', '#', 'M',
		'W', '&', '8', '%', 'B', '$', '@',
	}
	CHARS_BLOCK = []rune{
		' ', '░', '▒', '▓', '█',
	}
	CHARS_ASCII_NO_SPACE = CHARS_ASCII[1:]
)

func charsetByName(name string) ([]rune, error) {
	switch name {
	case "ascii", "":
		return CHARS_ASCII, nil
	case "ascii_no_space":
		return CHARS_ASCII_NO_SPACE, nil
	case "block":
		return CHARS_BLOCK, nil
	default:
		return nil, fmt.Errorf("unknown character set %q", name)
	}
}

// AsciiFrame is a converted frame, one string of runes per terminal row
type AsciiFrame struct {
	rows  [][]rune
	width int
}

func (f *AsciiFrame) Width() int  { return f.width }
func (f *AsciiFrame) Height() int { return len(f.rows) }

// AsciiConverter scales images to the terminal and maps brightness to characters
type AsciiConverter struct {
	chars     []rune
	maxWidth  uint
	maxHeight uint
}

func NewAsciiConverter(chars []rune, maxWidth, maxHeight uint) *AsciiConverter {
	return &AsciiConverter{chars: chars, maxWidth: maxWidth, maxHeight: maxHeight}
}

func (c *AsciiConverter) toASCII(val float64) rune {
	return c.chars[int(math.Round(val/255*float64(len(c.chars)-1)))]
}

func normalizeRGBA(r, g, b, a uint32) (uint32, uint32, uint32, float64) {
	return uint32(float64(r) / 0xffff * 255), uint32(float64(g) / 0xffff * 255), uint32(float64(b) / 0xffff * 255), float64(a) / 0xffff
}

func toBrightness(r, g, b uint32, a float64) float64 {
	return float64(r+g+b) / 3 * a
}

// Convert fits img into the terminal, limited by the configured size
func (c *AsciiConverter) Convert(img image.Image, term *TermData) *AsciiFrame {
	ratio := max(term.ratio, 1)
	cols := term.cols
	if c.maxWidth != 0 {
		cols = min(cols, c.maxWidth)
	}
	rows := term.rows
	if c.maxHeight != 0 {
		rows = min(rows, c.maxHeight)
	}

	// every pixel is printed ratio characters wide
	resized := resize.Thumbnail(cols/ratio, rows, img, resize.NearestNeighbor)
	bounds := resized.Bounds()
	imgWidth, imgHeight := bounds.Dx(), bounds.Dy()

	frame := &AsciiFrame{
		rows:  make([][]rune, imgHeight),
		width: imgWidth * int(ratio),
	}
	for y := 0; y < imgHeight; y++ {
		row := make([]rune, 0, frame.width)
		for x := 0; x < imgWidth; x++ {
			r, g, b, a := normalizeRGBA(resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA())
			chr := c.toASCII(toBrightness(r, g, b, a))
			for i := uint(0); i < ratio; i++ {
				row = append(row, chr)
			}
		}
		frame.rows[y] = row
	}
	return frame
}
