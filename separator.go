package zio

type sepKind int8

const (
	sepNone sepKind = iota
	sepParagraph
	sepBytes
)

// Separator tells the line readers where one record ends.
type Separator struct {
	kind sepKind
	sep  []byte
}

var (
	// LineSeparator splits on "\n".
	LineSeparator = Sep("\n")
	// ParagraphSeparator splits on runs of blank lines; the runs themselves
	// never produce empty records.
	ParagraphSeparator = Separator{kind: sepParagraph}
	// NoSeparator makes a record of the whole remaining stream.
	NoSeparator = Separator{kind: sepNone}
)

var paragraphSep = []byte("\n\n")

// Sep builds a separator from s. The empty string selects paragraph mode.
func Sep(s string) Separator {
	if s == "" {
		return ParagraphSeparator
	}
	return Separator{kind: sepBytes, sep: []byte(s)}
}

func (s Separator) String() string {
	switch s.kind {
	case sepNone:
		return "<none>"
	case sepParagraph:
		return "<paragraph>"
	}
	return string(s.sep)
}
