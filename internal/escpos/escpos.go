// Package escpos builds ESC/POS command streams for thermal receipt printers.
// An Encoder accumulates control sequences and encoded text in call order and
// hands the whole job back from Flush. It performs no I/O.
package escpos

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ESC/POS control bytes
const (
	esc byte = 0x1B
	gs  byte = 0x1D
	lf  byte = 0x0A
)

var (
	ErrInvalidBarcodeType = errors.New("escpos: invalid barcode type")
	ErrBarcodeTooLong     = errors.New("escpos: barcode data longer than 255 bytes")
)

// Alignment selects text justification.
type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// Font selects one of the printer's built-in fonts.
type Font byte

const (
	FontA Font = 0 // 12x24
	FontB Font = 1 // 9x17
)

// Size codes for GS !. The high nibble is the width multiplier minus one,
// the low nibble the height multiplier minus one.
const (
	SizeNormal       byte = 0x00
	SizeDoubleHeight byte = 0x01
	SizeDoubleWidth  byte = 0x10
	SizeDouble       byte = 0x11
)

// Character code tables for ESC t.
const (
	tablePC437   byte = 0x00
	tableWPC1252 byte = 0x10
)

// Encoder accumulates a single print job. The zero value is not usable;
// create one with NewEncoder.
type Encoder struct {
	buf   []byte
	table byte
	text  *encoding.Encoder
}

// NewEncoder returns an empty Encoder that encodes text as CP437, the
// power-on code table of most ESC/POS printers.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.reset()
	return e
}

func (e *Encoder) reset() {
	e.buf = nil
	e.setTable(tablePC437)
}

func (e *Encoder) setTable(table byte) {
	e.table = table
	var cm *charmap.Charmap
	switch table {
	case tableWPC1252:
		cm = charmap.Windows1252
	default:
		cm = charmap.CodePage437
	}
	e.text = encoding.ReplaceUnsupported(cm.NewEncoder())
}

func (e *Encoder) raw(b ...byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Raw appends bytes verbatim.
func (e *Encoder) Raw(b []byte) *Encoder {
	return e.raw(b...)
}

// Init resets the printer to its power-on settings (ESC @).
func (e *Encoder) Init() *Encoder {
	return e.raw(esc, '@')
}

// Cut performs a partial paper cut (GS V 1).
func (e *Encoder) Cut() *Encoder {
	return e.raw(gs, 'V', 0x01)
}

// Align sets justification for the following lines (ESC a n).
func (e *Encoder) Align(a Alignment) *Encoder {
	return e.raw(esc, 'a', byte(a))
}

// Font selects font A or B (ESC M n).
func (e *Encoder) Font(f Font) *Encoder {
	return e.raw(esc, 'M', byte(f))
}

// Size sets the character scale from a raw GS ! size code.
func (e *Encoder) Size(code byte) *Encoder {
	return e.raw(gs, '!', code)
}

// Bold toggles emphasized mode (ESC E n).
func (e *Encoder) Bold(on bool) *Encoder {
	return e.raw(esc, 'E', boolByte(on))
}

// Underline toggles one-dot underline (ESC - n).
func (e *Encoder) Underline(on bool) *Encoder {
	return e.raw(esc, '-', boolByte(on))
}

// InternationalCharset selects the WPC1252 code table. Text appended after
// this call is encoded as Windows-1252.
func (e *Encoder) InternationalCharset() *Encoder {
	e.setTable(tableWPC1252)
	return e.raw(esc, 't', tableWPC1252)
}

// AlphanumericCharset selects the PC437 code table. Text appended after this
// call is encoded as CP437.
func (e *Encoder) AlphanumericCharset() *Encoder {
	e.setTable(tablePC437)
	return e.raw(esc, 't', tablePC437)
}

// Text appends s encoded for the active code table. Runes the table cannot
// represent are substituted; nothing is escaped.
func (e *Encoder) Text(s string) *Encoder {
	b, err := e.text.Bytes([]byte(s))
	if err != nil {
		// ReplaceUnsupported only fails on invalid state; fall back to the raw bytes.
		b = []byte(s)
	}
	return e.raw(b...)
}

// Newline appends a line feed.
func (e *Encoder) Newline() *Encoder {
	return e.raw(lf)
}

// Line appends s followed by a line feed.
func (e *Encoder) Line(s string) *Encoder {
	return e.Text(s).Newline()
}

// Feed prints the buffer and feeds n lines (ESC d n).
func (e *Encoder) Feed(n byte) *Encoder {
	return e.raw(esc, 'd', n)
}

// Barcode appends a length-prefixed barcode command (GS k m n d1..dn).
// Symbologies outside the supported set are rejected with
// ErrInvalidBarcodeType and nothing is appended.
func (e *Encoder) Barcode(data string, sym Symbology) error {
	if !sym.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBarcodeType, sym)
	}
	if len(data) > 0xFF {
		return fmt.Errorf("%w: got %d", ErrBarcodeTooLong, len(data))
	}
	e.raw(gs, 'k', byte(sym), byte(len(data)))
	e.raw([]byte(data)...)
	return nil
}

// Len returns the number of bytes accumulated so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Flush returns the accumulated job and resets the Encoder, including the
// active code table. The returned slice is owned by the caller.
func (e *Encoder) Flush() []byte {
	out := e.buf
	if out == nil {
		out = []byte{}
	}
	e.reset()
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
