package escpos

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectiveBytes(t *testing.T) {
	tests := []struct {
		name  string
		apply func(e *Encoder)
		want  []byte
	}{
		{"init", func(e *Encoder) { e.Init() }, []byte{0x1B, 0x40}},
		{"cut", func(e *Encoder) { e.Cut() }, []byte{0x1D, 0x56, 0x01}},
		{"align left", func(e *Encoder) { e.Align(AlignLeft) }, []byte{0x1B, 0x61, 0x00}},
		{"align center", func(e *Encoder) { e.Align(AlignCenter) }, []byte{0x1B, 0x61, 0x01}},
		{"align right", func(e *Encoder) { e.Align(AlignRight) }, []byte{0x1B, 0x61, 0x02}},
		{"font A", func(e *Encoder) { e.Font(FontA) }, []byte{0x1B, 0x4D, 0x00}},
		{"font B", func(e *Encoder) { e.Font(FontB) }, []byte{0x1B, 0x4D, 0x01}},
		{"size", func(e *Encoder) { e.Size(0x11) }, []byte{0x1D, 0x21, 0x11}},
		{"bold on", func(e *Encoder) { e.Bold(true) }, []byte{0x1B, 0x45, 0x01}},
		{"bold off", func(e *Encoder) { e.Bold(false) }, []byte{0x1B, 0x45, 0x00}},
		{"underline on", func(e *Encoder) { e.Underline(true) }, []byte{0x1B, 0x2D, 0x01}},
		{"underline off", func(e *Encoder) { e.Underline(false) }, []byte{0x1B, 0x2D, 0x00}},
		{"international", func(e *Encoder) { e.InternationalCharset() }, []byte{0x1B, 0x74, 0x10}},
		{"alphanumeric", func(e *Encoder) { e.AlphanumericCharset() }, []byte{0x1B, 0x74, 0x00}},
		{"feed", func(e *Encoder) { e.Feed(3) }, []byte{0x1B, 0x64, 0x03}},
		{"text", func(e *Encoder) { e.Text("Hi") }, []byte{'H', 'i'}},
		{"line", func(e *Encoder) { e.Line("ok") }, []byte{'o', 'k', 0x0A}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoder()
			tt.apply(e)
			assert.Equal(t, tt.want, e.Flush())
		})
	}
}

func TestFlushConcatenatesInCallOrder(t *testing.T) {
	e := NewEncoder()
	e.Init().Align(AlignCenter).Bold(true).Text("TOTAL").Bold(false).Newline().Cut()

	want := []byte{
		0x1B, 0x40,
		0x1B, 0x61, 0x01,
		0x1B, 0x45, 0x01,
		'T', 'O', 'T', 'A', 'L',
		0x1B, 0x45, 0x00,
		0x0A,
		0x1D, 0x56, 0x01,
	}
	assert.Equal(t, want, e.Flush())
}

func TestFlushDrainsOnce(t *testing.T) {
	e := NewEncoder()
	e.Text("abc")

	first := e.Flush()
	second := e.Flush()

	assert.Equal(t, []byte("abc"), first)
	assert.NotNil(t, second)
	assert.Empty(t, second)
	assert.Equal(t, 0, e.Len())
}

func TestFlushDoesNotShareBacking(t *testing.T) {
	e := NewEncoder()
	e.Text("first")
	job := e.Flush()

	e.Text("XXXXX")
	assert.Equal(t, []byte("first"), job, "a flushed job must not be mutated by later directives")
}

func TestTextCodePages(t *testing.T) {
	e := NewEncoder()
	e.Text("é")
	assert.Equal(t, []byte{0x82}, e.Flush(), "default table encodes CP437")

	e.InternationalCharset().Text("é")
	assert.Equal(t, []byte{0x1B, 0x74, 0x10, 0xE9}, e.Flush())

	e.InternationalCharset().AlphanumericCharset().Text("é")
	assert.Equal(t, []byte{0x1B, 0x74, 0x10, 0x1B, 0x74, 0x00, 0x82}, e.Flush())
}

func TestFlushResetsCodePage(t *testing.T) {
	e := NewEncoder()
	e.InternationalCharset()
	e.Flush()

	e.Text("é")
	assert.Equal(t, []byte{0x82}, e.Flush())
}

func TestTextUnsupportedRuneIsSubstituted(t *testing.T) {
	e := NewEncoder()
	e.Text("a中b")
	out := e.Flush()

	require.Len(t, out, 3)
	assert.Equal(t, byte('a'), out[0])
	assert.Equal(t, byte('b'), out[2])
}

func TestBarcodeValidTypes(t *testing.T) {
	syms := []Symbology{UPCA, UPCE, EAN13, EAN8, CODE39, ITF, CODABAR, CODE93, CODE128}
	data := "4006381333931"

	for _, sym := range syms {
		t.Run(sym.String(), func(t *testing.T) {
			e := NewEncoder()
			require.NoError(t, e.Barcode(data, sym))

			out := e.Flush()
			require.Len(t, out, 4+len(data))
			assert.Equal(t, []byte{0x1D, 0x6B, byte(sym)}, out[:3])
			assert.Equal(t, byte(len(data)), out[3], "length byte must equal data length")
			assert.Equal(t, data, string(out[4:]))
		})
	}
}

func TestBarcodeInvalidType(t *testing.T) {
	for _, sym := range []Symbology{0, 6, 64, 74, 255} {
		e := NewEncoder()
		e.Text("x")

		err := e.Barcode("123", sym)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidBarcodeType))
		assert.Equal(t, []byte("x"), e.Flush(), "a rejected barcode must not append bytes")
	}
}

func TestBarcodeTooLong(t *testing.T) {
	e := NewEncoder()
	err := e.Barcode(strings.Repeat("1", 256), CODE128)
	assert.ErrorIs(t, err, ErrBarcodeTooLong)
	assert.Empty(t, e.Flush())

	require.NoError(t, e.Barcode(strings.Repeat("1", 255), CODE128))
	out := e.Flush()
	assert.Equal(t, byte(0xFF), out[3])
}

func TestParseSymbology(t *testing.T) {
	tests := []struct {
		in   string
		want Symbology
	}{
		{"CODE128", CODE128},
		{"code128", CODE128},
		{"UPC-A", UPCA},
		{"upca", UPCA},
		{"UPC_E", UPCE},
		{"ean13", EAN13},
		{"EAN8", EAN8},
		{"Codabar", CODABAR},
		{"CODE93", CODE93},
		{"ITF", ITF},
		{"code39", CODE39},
	}
	for _, tt := range tests {
		got, err := ParseSymbology(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSymbology("QR")
	assert.ErrorIs(t, err, ErrInvalidBarcodeType)
}
