package escpos

import (
	"fmt"
	"strings"
)

// Symbology is the GS k function-B type byte for a barcode system.
type Symbology byte

const (
	UPCA    Symbology = 65
	UPCE    Symbology = 66
	EAN13   Symbology = 67
	EAN8    Symbology = 68
	CODE39  Symbology = 69
	ITF     Symbology = 70
	CODABAR Symbology = 71
	CODE93  Symbology = 72
	CODE128 Symbology = 73
)

var symbologyNames = map[Symbology]string{
	UPCA:    "UPC-A",
	UPCE:    "UPC-E",
	EAN13:   "EAN13",
	EAN8:    "EAN8",
	CODE39:  "CODE39",
	ITF:     "ITF",
	CODABAR: "CODABAR",
	CODE93:  "CODE93",
	CODE128: "CODE128",
}

// Valid reports whether s is one of the supported symbologies.
func (s Symbology) Valid() bool {
	_, ok := symbologyNames[s]
	return ok
}

func (s Symbology) String() string {
	if name, ok := symbologyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Symbology(%d)", byte(s))
}

// ParseSymbology maps a name such as "CODE128", "ean13" or "UPC-A" to its
// Symbology. Dashes and underscores are ignored.
func ParseSymbology(name string) (Symbology, error) {
	key := normalizeSymbologyName(name)
	for sym, n := range symbologyNames {
		if normalizeSymbologyName(n) == key {
			return sym, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBarcodeType, name)
}

func normalizeSymbologyName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "")
	return strings.ReplaceAll(name, "_", "")
}
