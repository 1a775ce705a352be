package paginate

import (
	"fmt"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultCellRatio is the width of one narrow character cell as a
// multiple of the font size. East Asian wide characters take two cells.
const DefaultCellRatio = 0.5

// TitleScale is how much larger the chapter title renders than body text.
const TitleScale = 1.4

// Measurer kinds accepted by NewMeasurer.
const (
	KindGrid = "grid"
	KindWrap = "wrap"
	KindFont = "font"
)

// NewMeasurer returns the measurer of the given kind calibrated to p.
func NewMeasurer(kind string, p Params) (Measurer, error) {
	switch kind {
	case "", KindGrid:
		return NewGridMeasurer(p), nil
	case KindWrap:
		return NewWrapMeasurer(p), nil
	case KindFont:
		return NewFontMeasurer(p, nil), nil
	default:
		return nil, fmt.Errorf("paginate: unknown measurer %q", kind)
	}
}

// GridMeasurer models text as a grid of fixed-width cells and breaks lines
// at any character. It is deterministic and cheap, which makes it the
// measurer of choice for tests and for terminals.
type GridMeasurer struct {
	Params    Params
	CellRatio float64
}

// NewGridMeasurer returns a GridMeasurer with DefaultCellRatio.
func NewGridMeasurer(p Params) GridMeasurer {
	return GridMeasurer{Params: p, CellRatio: DefaultCellRatio}
}

// Columns is the number of narrow cells that fit on one line.
func (g GridMeasurer) Columns() int {
	return columns(g.Params, g.CellRatio)
}

// Measure implements Measurer.
func (g GridMeasurer) Measure(text string) float64 {
	if text == "" {
		return 0
	}
	cols := g.Columns()
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		lines += cellLines(runewidth.StringWidth(line), cols)
	}
	return float64(lines) * g.Params.LineStep()
}

// MeasureTitle implements TitleMeasurer.
func (g GridMeasurer) MeasureTitle(title string) float64 {
	return GridMeasurer{Params: scaled(g.Params, TitleScale), CellRatio: g.CellRatio}.Measure(title)
}

// WrapMeasurer breaks lines at word boundaries on the same cell grid as
// GridMeasurer. Words longer than a line are broken by cells.
type WrapMeasurer struct {
	Params    Params
	CellRatio float64
}

// NewWrapMeasurer returns a WrapMeasurer with DefaultCellRatio.
func NewWrapMeasurer(p Params) WrapMeasurer {
	return WrapMeasurer{Params: p, CellRatio: DefaultCellRatio}
}

// Measure implements Measurer.
func (w WrapMeasurer) Measure(text string) float64 {
	if text == "" {
		return 0
	}
	cols := columns(w.Params, w.CellRatio)
	lines := 0
	for _, line := range strings.Split(wordwrap.String(text, cols), "\n") {
		lines += cellLines(runewidth.StringWidth(line), cols)
	}
	return float64(lines) * w.Params.LineStep()
}

// MeasureTitle implements TitleMeasurer.
func (w WrapMeasurer) MeasureTitle(title string) float64 {
	return WrapMeasurer{Params: scaled(w.Params, TitleScale), CellRatio: w.CellRatio}.Measure(title)
}

// FontMeasurer wraps words by the advance widths of a real font face,
// scaled from the face's native size to Params.FontSize.
type FontMeasurer struct {
	Params Params
	Face   font.Face
}

// NewFontMeasurer returns a FontMeasurer for face; nil selects
// basicfont.Face7x13.
func NewFontMeasurer(p Params, face font.Face) FontMeasurer {
	if face == nil {
		face = basicfont.Face7x13
	}
	return FontMeasurer{Params: p, Face: face}
}

// Measure implements Measurer.
func (f FontMeasurer) Measure(text string) float64 {
	if text == "" {
		return 0
	}
	native := float64(f.Face.Metrics().Height) / 64
	if native <= 0 {
		native = 1
	}
	maxWidth := f.Params.Width * native / f.Params.FontSize
	if maxWidth <= 0 || math.IsNaN(maxWidth) || math.IsInf(maxWidth, 0) {
		maxWidth = 1
	}

	space := advance(font.MeasureString(f.Face, " "))
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		lines += wrapWords(f.Face, strings.Fields(line), space, maxWidth)
	}
	return float64(lines) * f.Params.LineStep()
}

// MeasureTitle implements TitleMeasurer.
func (f FontMeasurer) MeasureTitle(title string) float64 {
	return FontMeasurer{Params: scaled(f.Params, TitleScale), Face: f.Face}.Measure(title)
}

// wrapWords counts the lines greedy word wrapping needs for words. An empty
// line still takes one line.
func wrapWords(face font.Face, words []string, space, maxWidth float64) int {
	lines := 1
	var lineWidth float64
	for _, word := range words {
		w := advance(font.MeasureString(face, word))
		switch {
		case lineWidth == 0:
			lineWidth = w
		case lineWidth+space+w <= maxWidth:
			lineWidth += space + w
		default:
			lines++
			lineWidth = w
		}
		// A word wider than the line spills over by whole lines.
		for lineWidth > maxWidth {
			lines++
			lineWidth -= maxWidth
		}
	}
	return lines
}

func advance(x fixed.Int26_6) float64 {
	return float64(x) / 64
}

func columns(p Params, cellRatio float64) int {
	if cellRatio <= 0 {
		cellRatio = DefaultCellRatio
	}
	cell := p.FontSize * cellRatio
	if cell <= 0 {
		return 1
	}
	cols := int(math.Floor(p.Width / cell))
	if cols < 1 {
		return 1
	}
	return cols
}

// cellLines is the number of lines width cells occupy; an empty line still
// takes one.
func cellLines(width, cols int) int {
	if width <= 0 {
		return 1
	}
	return (width + cols - 1) / cols
}

func scaled(p Params, k float64) Params {
	p.FontSize *= k
	return p
}
