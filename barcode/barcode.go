// Package barcode parses and validates panel serial codes and derives the
// routing attributes (panel type, production line) carried inside them.
//
// A serial code is fixed-position text of the form
//
//	CRS 25 W T 36 - 00042
//	tag yy f b type  sequence
//
// where the company tag is always "CRS", yy is a two-digit production year,
// f is the frame tag (W white, B black), b is the backsheet tag (T
// transparent, W white, C clear), the panel type is one of 36, 40, 60, 72 or
// 144 cells, and the sequence is five digits and never all-zero. The total
// length is 15 characters, or 16 for the three-digit 144 type.
package barcode

import (
	"fmt"
	"strconv"
)

// CompanyTag is the fixed prefix of every serial code.
const CompanyTag = "CRS"

// Production lines. Panel type alone decides the line; nothing else in the
// system may override this mapping.
const (
	LineA = "A"
	LineB = "B"
)

// Plausible two-digit production years accepted by the codec.
const (
	MinYear = 20
	MaxYear = 45
)

// Frame tags.
const (
	FrameWhite = "W"
	FrameBlack = "B"
)

// Backsheet tags.
const (
	BacksheetTransparent = "T"
	BacksheetWhite       = "W"
	BacksheetClear       = "C"
)

// PanelTypes lists the valid cell counts in ascending order.
var PanelTypes = []int{36, 40, 60, 72, 144}

// Identifier is the structured form of a validated serial code.
type Identifier struct {
	CompanyTag string `json:"company_tag"`
	Year       int    `json:"year"`
	FrameTag   string `json:"frame_tag"`
	Backsheet  string `json:"backsheet_tag"`
	PanelType  int    `json:"panel_type"`
	Sequence   int    `json:"sequence"`
}

// MalformedIdentifierError reports the first field of a serial code that
// failed validation.
type MalformedIdentifierError struct {
	Code   string
	Field  string
	Reason string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s: %s", e.Code, e.Field, e.Reason)
}

func malformed(code, field, reason string) error {
	return &MalformedIdentifierError{Code: code, Field: field, Reason: reason}
}

// LineForType maps a panel type to its production line. The boolean is false
// for unknown panel types.
func LineForType(panelType int) (string, bool) {
	switch panelType {
	case 36, 40, 60, 72:
		return LineA, true
	case 144:
		return LineB, true
	default:
		return "", false
	}
}

// Decode parses a serial code. It is a pure function: the same input always
// yields the same Identifier or the same MalformedIdentifierError, naming
// the first violated field.
func Decode(code string) (*Identifier, error) {
	if len(code) != 15 && len(code) != 16 {
		return nil, malformed(code, "length", fmt.Sprintf("expected 15 or 16 characters, got %d", len(code)))
	}

	if code[:3] != CompanyTag {
		return nil, malformed(code, "company_tag", fmt.Sprintf("expected %q, got %q", CompanyTag, code[:3]))
	}

	year, err := strconv.Atoi(code[3:5])
	if err != nil {
		return nil, malformed(code, "year", "not numeric")
	}
	if year < MinYear || year > MaxYear {
		return nil, malformed(code, "year", fmt.Sprintf("%02d outside plausible range %02d-%02d", year, MinYear, MaxYear))
	}

	frame := code[5:6]
	if frame != FrameWhite && frame != FrameBlack {
		return nil, malformed(code, "frame_tag", fmt.Sprintf("expected %q or %q, got %q", FrameWhite, FrameBlack, frame))
	}

	backsheet := code[6:7]
	if backsheet != BacksheetTransparent && backsheet != BacksheetWhite && backsheet != BacksheetClear {
		return nil, malformed(code, "backsheet_tag", fmt.Sprintf("got %q", backsheet))
	}

	// The panel type occupies everything between the fixed prefix and the
	// hyphen that introduces the five-digit sequence.
	sep := len(code) - 6
	typeField := code[7:sep]
	panelType, err := strconv.Atoi(typeField)
	if err != nil {
		return nil, malformed(code, "panel_type", "not numeric")
	}
	if _, ok := LineForType(panelType); !ok {
		return nil, malformed(code, "panel_type", fmt.Sprintf("%d is not a known cell count", panelType))
	}

	if code[sep] != '-' {
		return nil, malformed(code, "separator", fmt.Sprintf("expected '-' before sequence, got %q", string(code[sep])))
	}

	seqField := code[sep+1:]
	for _, c := range seqField {
		if c < '0' || c > '9' {
			return nil, malformed(code, "sequence", "not numeric")
		}
	}
	sequence, _ := strconv.Atoi(seqField)
	if sequence == 0 {
		return nil, malformed(code, "sequence", "all-zero sequence is reserved")
	}

	return &Identifier{
		CompanyTag: CompanyTag,
		Year:       year,
		FrameTag:   frame,
		Backsheet:  backsheet,
		PanelType:  panelType,
		Sequence:   sequence,
	}, nil
}

// Encode renders the identifier back into its serial code form. Decoding a
// valid code and encoding the result reproduces the original input.
func (id *Identifier) Encode() string {
	return fmt.Sprintf("%s%02d%s%s%d-%05d", id.CompanyTag, id.Year, id.FrameTag, id.Backsheet, id.PanelType, id.Sequence)
}

// Line derives the production line from the panel type.
func (id *Identifier) Line() string {
	line, _ := LineForType(id.PanelType)
	return line
}

func (id *Identifier) String() string {
	return id.Encode()
}
