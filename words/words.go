// Package words renders numbers and dates as English text for certificate
// fields. Every function is deterministic and keeps no state.
package words

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// InvalidDate is returned by the date formatters when the input cannot be
// parsed. Callers print it as-is instead of failing the whole certificate.
const InvalidDate = "Invalid Date"

var ones = [...]string{
	"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tens = [...]string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

var scales = []struct {
	value uint64
	name  string
}{
	{1_000_000_000_000_000_000, "Quintillion"},
	{1_000_000_000_000_000, "Quadrillion"},
	{1_000_000_000_000, "Trillion"},
	{1_000_000_000, "Billion"},
	{1_000_000, "Million"},
	{1_000, "Thousand"},
}

// Cardinal spells n in title-cased English, e.g. 2010 → "Two Thousand Ten".
func Cardinal(n uint64) string {
	if n == 0 {
		return ones[0]
	}
	var parts []string
	for _, s := range scales {
		if n >= s.value {
			parts = append(parts, belowThousand(n/s.value), s.name)
			n %= s.value
		}
	}
	if n > 0 {
		parts = append(parts, belowThousand(n))
	}
	return strings.Join(parts, " ")
}

func belowThousand(n uint64) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, ones[n/100], "Hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, ones[n])
	case n%10 == 0:
		parts = append(parts, tens[n/10])
	default:
		parts = append(parts, tens[n/10]+"-"+ones[n%10])
	}
	return strings.Join(parts, " ")
}

var irregularOrdinals = map[string]string{
	"One":    "First",
	"Two":    "Second",
	"Three":  "Third",
	"Five":   "Fifth",
	"Eight":  "Eighth",
	"Nine":   "Ninth",
	"Twelve": "Twelfth",
}

// Ordinal spells the ordinal form, e.g. 21 → "Twenty-First".
func Ordinal(n uint64) string {
	card := Cardinal(n)
	// 只变换最后一个词（连字符后的部分同理）
	cut := strings.LastIndexAny(card, " -") + 1
	head, last := card[:cut], card[cut:]
	if irr, ok := irregularOrdinals[last]; ok {
		return head + irr
	}
	if strings.HasSuffix(last, "y") {
		return head + strings.TrimSuffix(last, "y") + "ieth"
	}
	return head + last + "th"
}

// OrdinalSuffix returns the numeric ordinal, e.g. 22 → "22nd".
func OrdinalSuffix(n uint64) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.FormatUint(n, 10) + suffix
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate accepts ISO, day-first and RFC3339 dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised date %q", s)
}

// FormatDate renders s as dd/mm/yyyy, or InvalidDate.
func FormatDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return InvalidDate
	}
	return t.Format("02/01/2006")
}

// DateWords spells t, e.g. "Fifteenth August Two Thousand Ten".
func DateWords(t time.Time) string {
	return Ordinal(uint64(t.Day())) + " " + t.Month().String() + " " + Cardinal(uint64(t.Year()))
}

// DateInWords parses s and spells it, or returns InvalidDate.
func DateInWords(s string) string {
	t, err := ParseDate(s)
	if err != nil || t.Year() < 0 {
		return InvalidDate
	}
	return DateWords(t)
}
