package render

import "strings"

// Kind identifies the role a segment plays in a rendered document.
type Kind int

const (
	KindText Kind = iota
	KindCode
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCode:
		return "code"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Row is one rendered table row. Separator rows never appear as a Row.
type Row struct {
	Header bool
	Cells  []string
}

// Segment is a non-overlapping span of the markdown source.
type Segment struct {
	Kind   Kind
	Source string

	// Set for KindCode.
	Lang string
	Code string

	// Set for KindTable.
	Rows []Row
}

// Document is the ordered segment sequence produced by Parse.
type Document struct {
	Segments []Segment
}

// HTML renders every segment in order.
func (d Document) HTML() string {
	var b strings.Builder
	for _, seg := range d.Segments {
		b.WriteString(seg.HTML())
	}
	return b.String()
}

// Source reassembles the original markdown.
func (d Document) Source() string {
	var b strings.Builder
	for _, seg := range d.Segments {
		b.WriteString(seg.Source)
	}
	return b.String()
}

func (s Segment) HTML() string {
	switch s.Kind {
	case KindCode:
		return codeBlockHTML(s.Lang, s.Code)
	case KindTable:
		return tableHTML(s.Rows)
	default:
		return formatInline(s.Source)
	}
}
