// Package paginate splits a chapter's paragraphs into pages that fit a
// content box, using an injected measurement capability to decide how
// much text fits.
//
// Paginate is a pure function: the same paragraphs, title, parameters and
// measurer always produce the same pages, so a saved page index stays
// meaningful when a chapter is paginated again under unchanged settings.
package paginate

// TitleGapEm is the fixed space below the chapter title on the first page,
// in multiples of the font size.
const TitleGapEm = 1.5

// Params are the layout parameters a pagination pass runs under.
type Params struct {
	// FontSize is the body font size in pixels.
	FontSize float64

	// LineHeight is the line height as a multiple of FontSize.
	LineHeight float64

	// ParagraphSpacing is the gap between paragraphs as a multiple of FontSize.
	ParagraphSpacing float64

	// Width and Height are the content box dimensions in pixels.
	Width  float64
	Height float64
}

// LineStep is the height of one rendered line.
func (p Params) LineStep() float64 { return p.FontSize * p.LineHeight }

// ParagraphGap is the vertical gap placed between two paragraphs on a page.
func (p Params) ParagraphGap() float64 { return p.FontSize * p.ParagraphSpacing }

// TitleGap is the gap between the title and the first paragraph.
func (p Params) TitleGap() float64 { return p.FontSize * TitleGapEm }

// Measurer reports the rendered height of text at a fixed width and style.
// Heights must not decrease as text grows by appending characters.
type Measurer interface {
	Measure(text string) float64
}

// TitleMeasurer is implemented by measurers that render the chapter title
// in a different style than body text.
type TitleMeasurer interface {
	MeasureTitle(title string) float64
}

// Fragment is the part of one paragraph placed on one page.
type Fragment struct {
	// Text is the displayed part of the paragraph.
	Text string

	// Source is the whole paragraph the fragment was cut from.
	Source string

	// Continuation is false only for the first fragment of a paragraph.
	Continuation bool
}

// Page is one screen of content.
type Page struct {
	Fragments []Fragment

	// ShowTitle is true only for the first page of a chapter.
	ShowTitle bool
}

// Paginate lays paragraphs out into pages of p.Height.
//
// Without paragraphs, without a measurer or with a non-positive content box
// the result is one titled page holding every paragraph whole.
func Paginate(paragraphs []string, title string, p Params, m Measurer) []Page {
	if len(paragraphs) == 0 || p.Width <= 0 || p.Height <= 0 || m == nil {
		return []Page{wholePage(paragraphs)}
	}

	lineStep := p.LineStep()
	gap := p.ParagraphGap()

	var titleReserve float64
	if title != "" {
		titleReserve = measureTitle(m, title) + p.TitleGap()
	}

	l := layout{height: p.Height}
	l.remaining = p.Height - titleReserve

	for _, para := range paragraphs {
		rest := para
		cont := false
		// An empty paragraph still gets its one fragment.
		for {
			g := gap
			if len(l.cur) == 0 {
				g = 0
			}

			h := m.Measure(rest)
			if h+g <= l.remaining {
				l.place(Fragment{Text: rest, Source: para, Continuation: cont}, h+g)
				break
			}

			if budget := l.remaining - g; budget >= lineStep {
				if n := fitPrefix(m, rest, budget); n > 0 {
					l.place(Fragment{Text: rest[:n], Source: para, Continuation: cont}, 0)
					l.flush()
					rest = rest[n:]
					cont = true
					continue
				}
			}

			if len(l.cur) > 0 {
				l.flush()
				continue
			}

			// Taller than an empty page: place it anyway.
			l.place(Fragment{Text: rest, Source: para, Continuation: cont}, 0)
			l.flush()
			break
		}
	}
	if len(l.cur) > 0 {
		l.flush()
	}
	return l.pages
}

// layout is the mutable state of one Paginate call.
type layout struct {
	pages     []Page
	cur       []Fragment
	height    float64
	remaining float64
}

func (l *layout) place(f Fragment, used float64) {
	l.cur = append(l.cur, f)
	l.remaining -= used
}

// flush closes the current page. Only the first page carries the title, so
// every later page starts with the full height.
func (l *layout) flush() {
	l.pages = append(l.pages, Page{Fragments: l.cur, ShowTitle: len(l.pages) == 0})
	l.cur = nil
	l.remaining = l.height
}

// fitPrefix returns the byte length of the longest proper prefix of text,
// cut on a rune boundary, whose height fits budget. Zero means no prefix of
// at least one rune fits.
func fitPrefix(m Measurer, text string, budget float64) int {
	offsets := runeOffsets(text)
	// offsets[k] is the byte offset after k runes; search k in 1..len-1.
	lo, hi, best := 1, len(offsets)-2, 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if m.Measure(text[:offsets[mid]]) <= budget {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return offsets[best]
}

// runeOffsets returns the byte offset of every rune boundary in s,
// including 0 and len(s).
func runeOffsets(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

func wholePage(paragraphs []string) Page {
	frags := make([]Fragment, len(paragraphs))
	for i, para := range paragraphs {
		frags[i] = Fragment{Text: para, Source: para}
	}
	return Page{Fragments: frags, ShowTitle: true}
}

func measureTitle(m Measurer, title string) float64 {
	if tm, ok := m.(TitleMeasurer); ok {
		return tm.MeasureTitle(title)
	}
	return m.Measure(title)
}
