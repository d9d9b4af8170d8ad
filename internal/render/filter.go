package render

import (
	"bufio"
	"io"
	"regexp"
)

// Filter rewrites every match of Pattern in the SVG stream. Matching is
// applied one line at a time, so patterns see at most one line including
// its trailing newline.
type Filter struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement []byte
}

// Apply returns line with every match replaced literally.
func (f Filter) Apply(line []byte) []byte {
	return f.Pattern.ReplaceAllLiteral(line, f.Replacement)
}

// DefaultFilters strips the XML declaration line and comment lines that
// dvisvgm emits, then rewrites the deprecated xlink:href attribute.
func DefaultFilters() []Filter {
	return []Filter{
		{Name: "xml-declaration", Pattern: regexp.MustCompile(`<\?xml.*\?>\n`)},
		{Name: "comment", Pattern: regexp.MustCompile(`<!--.*-->\n`)},
		{Name: "xlink-href", Pattern: regexp.MustCompile(`xlink:href`), Replacement: []byte("href")},
	}
}

// filterReaderSize is the initial line buffer. dvisvgm writes whole
// glyph paths on a line, so ReadBytes grows past it when needed.
const filterReaderSize = 32 << 10

// NewFilterReader chains filters over r in order. Each stage consumes the
// previous stage's output, and read errors from r surface unchanged.
func NewFilterReader(r io.Reader, filters ...Filter) io.Reader {
	for _, f := range filters {
		r = &filterReader{src: bufio.NewReaderSize(r, filterReaderSize), filter: f}
	}
	return r
}

type filterReader struct {
	src     *bufio.Reader
	filter  Filter
	pending []byte
	err     error
}

func (r *filterReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		line, err := r.src.ReadBytes('\n')
		r.err = err
		if len(line) > 0 {
			r.pending = r.filter.Apply(line)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
