package fragment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var entities = []struct {
	name string
	char string
}{
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&amp;", "&"},
}

// Parse reads inline markup: <name ...> opens a code, </name> closes the
// most recent open code with the same name, <name .../> is a placeholder.
// Parse never fails; anything that is not well-formed markup stays text.
func Parse(s string) *Fragment {
	f := &Fragment{}
	var (
		text   strings.Builder
		nextID = 1
		open   []Code
	)
	flush := func() {
		if text.Len() > 0 {
			f.AppendText(text.String())
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch s[i] {
		case '<':
			end := strings.IndexByte(s[i+1:], '>')
			if end < 0 {
				text.WriteByte('<')
				i++
				continue
			}
			raw := s[i : i+end+2]
			code, ok := parseTag(raw)
			if !ok {
				text.WriteByte('<')
				i++
				continue
			}
			switch code.Kind {
			case Opening:
				code.ID = nextID
				nextID++
				open = append(open, code)
			case Closing:
				code.ID = 0
				for k := len(open) - 1; k >= 0; k-- {
					if open[k].Tag == code.Tag {
						code.ID = open[k].ID
						open = append(open[:k], open[k+1:]...)
						break
					}
				}
				if code.ID == 0 {
					code.ID = nextID
					nextID++
				}
			case Placeholder:
				code.ID = nextID
				nextID++
			}
			flush()
			f.AppendCode(code)
			i += len(raw)
		case '&':
			matched := false
			for _, e := range entities {
				if strings.HasPrefix(s[i:], e.name) {
					text.WriteString(e.char)
					i += len(e.name)
					matched = true
					break
				}
			}
			if !matched {
				text.WriteByte('&')
				i++
			}
		default:
			text.WriteByte(s[i])
			i++
		}
	}
	flush()
	return f
}

func parseTag(raw string) (Code, bool) {
	inner := raw[1 : len(raw)-1]
	code := Code{Kind: Opening, Data: raw}
	switch {
	case strings.HasPrefix(inner, "/"):
		code.Kind = Closing
		inner = inner[1:]
	case strings.HasSuffix(inner, "/"):
		code.Kind = Placeholder
		inner = inner[:len(inner)-1]
	}
	name := inner
	if idx := strings.IndexFunc(inner, unicode.IsSpace); idx >= 0 {
		name = inner[:idx]
	}
	if code.Kind == Closing && strings.TrimSpace(inner) != name {
		return Code{}, false
	}
	if !validName(name) {
		return Code{}, false
	}
	code.Tag = name
	return code, true
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLetter(first) && first != '_' {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '-', '_', ':', '.':
			continue
		}
		return false
	}
	return true
}
