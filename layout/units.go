package layout

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// This file holds the unit-aware values used by templates: lengths, font
// sizes and line heights. Everything is normalised to millimetres before it
// reaches the paragraph engine.

// Unit represents the unit a template author wrote a length in.
type Unit int

const (
	UnitNone Unit = iota // bare numbers, factors
	UnitMM
	UnitCM
	UnitIN
	UnitPT
	UnitPercent
)

// Conversion constants between pt and mm.
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm
)

var unitSuffixes = []struct {
	suffix string
	unit   Unit
}{
	{"mm", UnitMM},
	{"cm", UnitCM},
	{"in", UnitIN},
	{"pt", UnitPT},
	{"%", UnitPercent},
}

func (u Unit) String() string {
	for _, s := range unitSuffixes {
		if s.unit == u {
			return s.suffix
		}
	}
	return ""
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// MM resolves the length in millimetres. Percentages resolve against
// reference; bare numbers are taken as millimetres.
func (l Length) MM(reference float64) float64 {
	switch l.Unit {
	case UnitCM:
		return l.Value * 10
	case UnitIN:
		return l.Value * 25.4
	case UnitPT:
		return l.Value * PtToMm
	case UnitPercent:
		return reference * l.Value / 100
	default:
		return l.Value
	}
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + l.Unit.String()
}

// ParseLength parses "12pt", "20mm", "2.5cm", "1in", "80%" or a bare number.
func ParseLength(value string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, errors.New("empty length")
	}
	unit := UnitNone
	num := v
	for _, s := range unitSuffixes {
		if strings.HasSuffix(v, s.suffix) {
			unit = s.unit
			num = strings.TrimSpace(strings.TrimSuffix(v, s.suffix))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, errors.Wrapf(err, "invalid length %q", value)
	}
	if f < 0 {
		return Length{}, errors.Errorf("negative length %q", value)
	}
	return Length{Value: f, Unit: unit}, nil
}

// LineHeightSpec is either a factor of the font size ("1.5x") or an absolute
// length ("7mm").
type LineHeightSpec struct {
	Factor float64 `json:"factor,omitempty"`
	Len    *Length `json:"len,omitempty"`
}

// ParseLineHeight accepts "1.4x", a bare factor "1.4" or an absolute length.
func ParseLineHeight(value string) (LineHeightSpec, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if strings.HasSuffix(v, "x") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64)
		if err != nil || f <= 0 {
			return LineHeightSpec{}, errors.Errorf("invalid line-height %q", value)
		}
		return LineHeightSpec{Factor: f}, nil
	}
	l, err := ParseLength(v)
	if err != nil {
		return LineHeightSpec{}, err
	}
	if l.Unit == UnitNone {
		return LineHeightSpec{Factor: l.Value}, nil
	}
	if l.Unit == UnitPercent {
		return LineHeightSpec{Factor: l.Value / 100}, nil
	}
	return LineHeightSpec{Len: &l}, nil
}

// Resolve computes the absolute line height in mm for a font size in mm.
func (s LineHeightSpec) Resolve(fontSizeMM float64) float64 {
	if s.Len != nil {
		return s.Len.MM(0)
	}
	if s.Factor > 0 {
		return fontSizeMM * s.Factor
	}
	return fontSizeMM * 1.4
}
