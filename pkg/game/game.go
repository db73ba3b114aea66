// Package game defines the abstract game tree: the in-memory shape that an
// external PGN reader produces and an external PGN emitter consumes. The
// ingestion and reconstruction engines operate entirely against this
// vocabulary; nothing in this package knows about blobs, hashes or on-disk
// layout.
package game

import "github.com/herohde/ccamc/pkg/rules"

// Header is one PGN tag pair, e.g. {Tag: "Event", Value: "Test"}.
type Header struct {
	Tag   string
	Value string
}

// The canonical Seven Tag Roster, in the tag-id order the metadata store uses.
var STRTags = [7]string{"Event", "Site", "Date", "Round", "White", "Black", "Result"}

// AnnotationType distinguishes the four kinds of annotation record.
type AnnotationType uint8

const (
	AnnotationComment AnnotationType = iota
	AnnotationNAG
	AnnotationVariation
	AnnotationNewline
)

// Annotation is the tagged-sum of things that can be attached to a mainline
// move index: a comment, a NAG code, a nested variation, or a bare newline
// layout marker.
type Annotation interface {
	Type() AnnotationType
}

// Comment is free text attached before or after a move, delimited by either
// braces ("{...}") or a trailing semicolon-to-end-of-line, per standard PGN.
type Comment struct {
	Text         string
	Pre          bool // true: printed before the move; false: after
	Semicolon    bool // true: "; text"; false: "{text}"
	NewlineAfter bool // true: the source had a line break right after the comment
}

func (Comment) Type() AnnotationType { return AnnotationComment }

// NAG is a Numeric Annotation Glyph, e.g. "$1" for a good move.
type NAG struct {
	Code byte
}

func (NAG) Type() AnnotationType { return AnnotationNAG }

// Variation is a nested alternative to the mainline move it is attached to,
// itself a full (sub-)game tree with its own headers (typically empty) and
// annotations.
type Variation struct {
	Tree *Tree
}

func (Variation) Type() AnnotationType { return AnnotationVariation }

// Newline is a bare layout marker with no semantic content, used to preserve
// PGN movetext line breaks bit-exactly on reconstruction.
type Newline struct{}

func (Newline) Type() AnnotationType { return AnnotationNewline }

// MoveAnnotation binds an Annotation to a 0-based index into Tree.Moves.
// Multiple annotations may share the same MoveIndex; their relative order is
// significant and preserved as given.
type MoveAnnotation struct {
	MoveIndex int
	Value     Annotation
}

// Tree is one game or variation: an ordered mainline move sequence, the
// headers that apply to it (non-empty only for the top-level game), and the
// annotations interleaved at specific move indices.
type Tree struct {
	Headers     []Header
	Moves       []rules.Move
	Annotations []MoveAnnotation
}

// Header looks up a tag's value by name.
func (t *Tree) Header(tag string) (string, bool) {
	for _, h := range t.Headers {
		if h.Tag == tag {
			return h.Value, true
		}
	}
	return "", false
}
