// Package locale holds the immutable table of locales a deployment accepts.
// A Table is built once at startup and handed to the components that need
// it; there is no package-level registry.
package locale

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

type Table struct {
	tags  map[string]language.Tag
	order []language.Tag
}

// NewTable parses the supported BCP-47 tags. With no tags the table accepts
// any well-formed tag.
func NewTable(supported ...string) (*Table, error) {
	t := &Table{tags: make(map[string]language.Tag, len(supported))}
	for _, s := range supported {
		tag, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing locale %q: %w", s, err)
		}
		key := tag.String()
		if _, dup := t.tags[key]; dup {
			continue
		}
		t.tags[key] = tag
		t.order = append(t.order, tag)
	}
	sort.Slice(t.order, func(i, j int) bool {
		return t.order[i].String() < t.order[j].String()
	})
	return t, nil
}

// Open reports whether the table accepts any well-formed tag.
func (t *Table) Open() bool {
	return len(t.tags) == 0
}

// Supported returns the configured tags in lexical order.
func (t *Table) Supported() []language.Tag {
	out := make([]language.Tag, len(t.order))
	copy(out, t.order)
	return out
}

// Resolve parses s and checks it against the table. An empty string
// resolves to language.Und, which matches every locale.
func (t *Table) Resolve(s string) (language.Tag, error) {
	if s == "" {
		return language.Und, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, apperrors.Invalidf("malformed locale %q", s)
	}
	if t.Open() {
		return tag, nil
	}
	if _, ok := t.tags[tag.String()]; ok {
		return tag, nil
	}
	base, _ := tag.Base()
	for _, known := range t.order {
		if kb, _ := known.Base(); kb == base && regionless(tag) {
			return tag, nil
		}
	}
	return language.Und, apperrors.Invalidf("unsupported locale %q", s)
}

// Compatible reports whether a unit stored under stored can answer a query
// for want. Und on either side matches anything; a tag without a region
// matches every region of its language.
func Compatible(want, stored language.Tag) bool {
	if want == language.Und || stored == language.Und {
		return true
	}
	wb, _ := want.Base()
	sb, _ := stored.Base()
	if wb != sb {
		return false
	}
	if regionless(want) || regionless(stored) {
		return true
	}
	wr, _ := want.Region()
	sr, _ := stored.Region()
	return wr == sr
}

// Parse is a lenient parse used for stored data: malformed tags become Und.
func Parse(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}

func regionless(tag language.Tag) bool {
	_, conf := tag.Region()
	return conf != language.Exact
}

// Format renders tag for storage. Und becomes the empty string.
func Format(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	return tag.String()
}
