package dsl

import "strings"

// Page returns the first page section, or nil when the template has none.
func (t *Template) Page() *PageSection {
	if t == nil {
		return nil
	}
	for _, section := range t.Sections {
		if section.Page != nil {
			return section.Page
		}
	}
	return nil
}

// MetaFields returns every assignment of every meta section in source order.
func (t *Template) MetaFields() []*Assignment {
	var out []*Assignment
	for _, section := range t.Sections {
		if section.Meta == nil || section.Meta.Block == nil {
			continue
		}
		for _, stmt := range section.Meta.Block.Statements {
			if stmt.Assignment != nil {
				out = append(out, stmt.Assignment)
			}
		}
	}
	return out
}

// Resources returns the resource commands named name (for example "font").
func (t *Template) Resources(name string) []*Command {
	var out []*Command
	for _, section := range t.Sections {
		if section.Resources == nil || section.Resources.Block == nil {
			continue
		}
		for _, stmt := range section.Resources.Block.Statements {
			if stmt.Command != nil && strings.EqualFold(stmt.Command.Name, name) {
				out = append(out, stmt.Command)
			}
		}
	}
	return out
}

// Attrs splits the arguments into key/value pairs. With an odd count the
// first argument is positional (spacer 6mm, font Body).
func (c *Command) Attrs() (*Arg, map[string]string) {
	attrs := map[string]string{}
	var positional *Arg
	args := c.Args
	if len(args)%2 == 1 {
		positional, args = args[0], args[1:]
	}
	for i := 0; i+1 < len(args); i += 2 {
		attrs[strings.ToLower(args[i].Value)] = args[i+1].Value
	}
	return positional, attrs
}

// Fields returns the block's assignments keyed by lower-cased name.
func (b *Block) Fields() map[string]*Value {
	out := map[string]*Value{}
	if b == nil {
		return out
	}
	for _, stmt := range b.Statements {
		if stmt.Assignment != nil {
			out[strings.ToLower(stmt.Assignment.Key)] = stmt.Assignment.Value
		}
	}
	return out
}

// Text concatenates the block's string literals. A nil block yields "".
func (b *Block) Text() string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	for _, stmt := range b.Statements {
		if stmt.Text != nil {
			sb.WriteString(string(stmt.Text.Value))
		}
	}
	return sb.String()
}
