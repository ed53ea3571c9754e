package certificate

import (
	"embed"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ByLCY/certforge/dsl"
)

// ErrUnknownKind is returned for certificate kinds without a built-in template.
var ErrUnknownKind = errors.New("certificate: unknown kind")

// Kind names a certificate flow.
type Kind string

const (
	Bonafide Kind = "bonafide"
	Transfer Kind = "transfer"
	Leaving  Kind = "leaving"
)

//go:embed templates/*.cert
var templateFS embed.FS

var aliases = map[string]Kind{
	"bonafide": Bonafide,
	"bc":       Bonafide,
	"transfer": Transfer,
	"tc":       Transfer,
	"leaving":  Leaving,
	"lc":       Leaving,
}

// Kinds lists the built-in certificate kinds.
func Kinds() []Kind { return []Kind{Bonafide, Transfer, Leaving} }

// ParseKind accepts a kind name or its usual abbreviation (bc, tc, lc).
func ParseKind(s string) (Kind, error) {
	k, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
	return k, nil
}

// Abbrev is the register prefix used in serial numbers.
func (k Kind) Abbrev() string {
	switch k {
	case Bonafide:
		return "BC"
	case Transfer:
		return "TC"
	case Leaving:
		return "LC"
	}
	return strings.ToUpper(string(k))
}

// Source returns the raw DSL of the built-in template.
func Source(k Kind) ([]byte, error) {
	data, err := templateFS.ReadFile("templates/" + string(k) + ".cert")
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", string(k))
	}
	return data, nil
}

type parsed struct {
	once sync.Once
	tpl  *dsl.Template
	err  error
}

var builtins = map[Kind]*parsed{
	Bonafide: {},
	Transfer: {},
	Leaving:  {},
}

// Template returns the parsed built-in template for k. Templates are parsed
// once and shared; callers must not modify the returned AST.
func Template(k Kind) (*dsl.Template, error) {
	p, ok := builtins[k]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", string(k))
	}
	p.once.Do(func() {
		var src []byte
		if src, p.err = Source(k); p.err != nil {
			return
		}
		p.tpl, p.err = dsl.ParseString(string(k)+".cert", string(src))
		p.err = errors.Wrapf(p.err, "parse built-in %s template", k)
	})
	return p.tpl, p.err
}
