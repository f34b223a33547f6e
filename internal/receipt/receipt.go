// Package receipt lays out receipt documents as ESC/POS jobs.
package receipt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/bleprint/internal/escpos"
)

// DefaultWidth is the line width of a 58mm printer in font A.
const DefaultWidth = 32

// Receipt is a printable document.
type Receipt struct {
	Title    string   `yaml:"title"`
	Lines    []string `yaml:"lines"`
	Items    []Item   `yaml:"items"`
	Currency string   `yaml:"currency"`
	Barcode  *Barcode `yaml:"barcode"`
	Footer   string   `yaml:"footer"`

	// Width is the number of columns per line; 0 means DefaultWidth.
	Width int `yaml:"width"`
	// International switches to the WPC1252 code table for accented text.
	International bool `yaml:"international"`
}

// Item is one priced line. Prices are integer minor units.
type Item struct {
	Name      string `yaml:"name"`
	Quantity  int    `yaml:"quantity"`
	UnitCents int64  `yaml:"unit_cents"`
}

// Barcode is printed centered below the totals.
type Barcode struct {
	Type string `yaml:"type"` // e.g. "CODE128", "EAN13"
	Data string `yaml:"data"`
}

// Total returns the sum of all item amounts.
func (r *Receipt) Total() int64 {
	var total int64
	for _, it := range r.Items {
		total += it.Amount()
	}
	return total
}

// Amount returns quantity times unit price. A zero quantity counts as one.
func (it Item) Amount() int64 {
	return it.UnitCents * int64(it.qty())
}

func (it Item) qty() int {
	if it.Quantity <= 0 {
		return 1
	}
	return it.Quantity
}

// Render writes r into enc and returns the flushed job. On error the
// encoder is drained so no partial job leaks into the next one.
func Render(enc *escpos.Encoder, r *Receipt) ([]byte, error) {
	var sym escpos.Symbology
	if r.Barcode != nil {
		var err error
		if sym, err = escpos.ParseSymbology(r.Barcode.Type); err != nil {
			return nil, fmt.Errorf("receipt: %w", err)
		}
	}

	width := r.Width
	if width <= 0 {
		width = DefaultWidth
	}

	enc.Init()
	if r.International {
		enc.InternationalCharset()
	}

	enc.Align(escpos.AlignCenter)
	if r.Title != "" {
		enc.Bold(true).Size(escpos.SizeDouble).Line(r.Title).Size(escpos.SizeNormal).Bold(false)
	}
	for _, l := range r.Lines {
		enc.Line(l)
	}
	enc.Align(escpos.AlignLeft)

	if len(r.Items) > 0 {
		rule := strings.Repeat("-", width)
		enc.Line(rule)
		for _, it := range r.Items {
			name := it.Name
			if it.qty() > 1 {
				name = fmt.Sprintf("%dx %s", it.qty(), name)
			}
			enc.Line(columns(name, FormatMoney(r.Currency, it.Amount()), width))
		}
		enc.Line(rule)
		enc.Bold(true).Line(columns("TOTAL", FormatMoney(r.Currency, r.Total()), width)).Bold(false)
	}

	if r.Barcode != nil {
		enc.Newline().Align(escpos.AlignCenter)
		if err := enc.Barcode(r.Barcode.Data, sym); err != nil {
			enc.Flush()
			return nil, fmt.Errorf("receipt: %w", err)
		}
		enc.Newline().Align(escpos.AlignLeft)
	}

	if r.Footer != "" {
		enc.Newline().Align(escpos.AlignCenter).Line(r.Footer).Align(escpos.AlignLeft)
	}

	enc.Feed(3).Cut()
	return enc.Flush(), nil
}

// TestPage returns a short job exercising fonts, styles and both code tables.
func TestPage(enc *escpos.Encoder) []byte {
	enc.Init().
		Align(escpos.AlignCenter).
		Bold(true).Size(escpos.SizeDouble).Line("Test Print").Size(escpos.SizeNormal).Bold(false).
		Line("bleprint").
		Newline().
		Align(escpos.AlignLeft).
		Font(escpos.FontB).Line("Font B").Font(escpos.FontA).
		Bold(true).Line("Bold").Bold(false).
		Underline(true).Line("Underline").Underline(false).
		Size(escpos.SizeDoubleHeight).Line("Tall").Size(escpos.SizeNormal).
		InternationalCharset().Line("Café crème").
		AlphanumericCharset().Line("PC437 ready").
		Feed(3).
		Cut()
	return enc.Flush()
}

// Load reads a receipt document from a YAML file.
func Load(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("receipt: reading %s: %w", path, err)
	}
	var r Receipt
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("receipt: parsing %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate rejects documents that would print nothing useful.
func (r *Receipt) Validate() error {
	if r.Title == "" && len(r.Lines) == 0 && len(r.Items) == 0 && r.Footer == "" && r.Barcode == nil {
		return errors.New("receipt: empty document")
	}
	for i, it := range r.Items {
		if it.Name == "" {
			return fmt.Errorf("receipt: item %d has no name", i+1)
		}
		if it.Quantity < 0 {
			return fmt.Errorf("receipt: item %q has negative quantity", it.Name)
		}
	}
	return nil
}

// FormatMoney renders minor units as currency plus a two-decimal amount.
func FormatMoney(currency string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, currency, cents/100, cents%100)
}

// columns left-aligns left and right-aligns right within width, truncating
// left when both do not fit.
func columns(left, right string, width int) string {
	avail := width - utf8.RuneCountInString(right) - 1
	if avail < 0 {
		avail = 0
	}
	if utf8.RuneCountInString(left) > avail {
		left = string([]rune(left)[:avail])
	}
	pad := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}
