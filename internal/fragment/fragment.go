// Package fragment models segment content as an ordered mix of plain-text
// runs and opaque inline codes. The original markup of each code is kept
// verbatim in Code.Data so it can be written back out after a lookup.
package fragment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type CodeKind uint8

const (
	Opening CodeKind = iota + 1
	Closing
	Placeholder
)

func (k CodeKind) String() string {
	switch k {
	case Opening:
		return "open"
	case Closing:
		return "close"
	case Placeholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

func (k CodeKind) MarshalText() ([]byte, error) {
	if k < Opening || k > Placeholder {
		return nil, fmt.Errorf("unknown code kind %d", k)
	}
	return []byte(k.String()), nil
}

func (k *CodeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "open":
		*k = Opening
	case "close":
		*k = Closing
	case "placeholder":
		*k = Placeholder
	default:
		return fmt.Errorf("unknown code kind %q", b)
	}
	return nil
}

// Code is one inline markup element. ID pairs an Opening code with its
// Closing counterpart; placeholders have their own ID.
type Code struct {
	Kind CodeKind `json:"kind"`
	Tag  string   `json:"tag"`
	ID   int      `json:"id"`
	Data string   `json:"data,omitempty"`
}

// Markup returns the original markup when known, else a generic rendering.
func (c Code) Markup() string {
	if c.Data != "" {
		return c.Data
	}
	switch c.Kind {
	case Opening:
		return "<" + c.Tag + ">"
	case Closing:
		return "</" + c.Tag + ">"
	default:
		return "<" + c.Tag + "/>"
	}
}

// Run holds either Text or a Code, never both.
type Run struct {
	Text string `json:"text,omitempty"`
	Code *Code  `json:"code,omitempty"`
}

func (r Run) IsCode() bool { return r.Code != nil }

// Fragment is safe to read from many goroutines once built. The nil
// *Fragment is a valid empty fragment.
type Fragment struct {
	runs []Run
}

// New builds a fragment from runs, merging adjacent text and dropping
// empty text runs.
func New(runs ...Run) *Fragment {
	f := &Fragment{}
	for _, r := range runs {
		if r.Code != nil {
			c := *r.Code
			f.AppendCode(c)
			continue
		}
		f.AppendText(r.Text)
	}
	return f
}

// FromText builds a code-free fragment.
func FromText(s string) *Fragment {
	f := &Fragment{}
	f.AppendText(s)
	return f
}

func (f *Fragment) AppendText(s string) *Fragment {
	if s == "" {
		return f
	}
	if n := len(f.runs); n > 0 && !f.runs[n-1].IsCode() {
		f.runs[n-1].Text += s
		return f
	}
	f.runs = append(f.runs, Run{Text: s})
	return f
}

func (f *Fragment) AppendCode(c Code) *Fragment {
	f.runs = append(f.runs, Run{Code: &c})
	return f
}

// Runs returns a copy of the run list.
func (f *Fragment) Runs() []Run {
	if f == nil {
		return nil
	}
	out := make([]Run, len(f.runs))
	for i, r := range f.runs {
		if r.Code != nil {
			c := *r.Code
			r.Code = &c
		}
		out[i] = r
	}
	return out
}

// Clone returns a deep copy that shares nothing with f. Clone of nil is an
// empty fragment.
func (f *Fragment) Clone() *Fragment {
	if f == nil {
		return &Fragment{}
	}
	return &Fragment{runs: f.Runs()}
}

// Len reports the number of runs.
func (f *Fragment) Len() int {
	if f == nil {
		return 0
	}
	return len(f.runs)
}

// IsEmpty reports whether the fragment has no text and no codes.
func (f *Fragment) IsEmpty() bool {
	return f.Len() == 0
}

func (f *Fragment) HasCodes() bool {
	return len(f.Codes()) > 0
}

func (f *Fragment) Codes() []Code {
	if f == nil {
		return nil
	}
	var codes []Code
	for _, r := range f.runs {
		if r.Code != nil {
			codes = append(codes, *r.Code)
		}
	}
	return codes
}

// PlainText returns the text with all codes removed.
func (f *Fragment) PlainText() string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	for _, r := range f.runs {
		if r.Code == nil {
			sb.WriteString(r.Text)
		}
	}
	return sb.String()
}

// String renders the fragment as inline markup. Literal angle brackets and
// ampersands in text are escaped so Parse(f.String()) reproduces f.
func (f *Fragment) String() string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	for _, r := range f.runs {
		if r.Code != nil {
			sb.WriteString(r.Code.Markup())
			continue
		}
		sb.WriteString(escaper.Replace(r.Text))
	}
	return sb.String()
}

// Equal reports whether both fragments carry the same text and the same
// codes (kind, tag and markup) in the same places. Code IDs are ignored.
func Equal(a, b *Fragment) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		ra, rb := a.runs[i], b.runs[i]
		if ra.IsCode() != rb.IsCode() {
			return false
		}
		if !ra.IsCode() {
			if ra.Text != rb.Text {
				return false
			}
			continue
		}
		ca, cb := ra.Code, rb.Code
		if ca.Kind != cb.Kind || ca.Tag != cb.Tag || ca.Markup() != cb.Markup() {
			return false
		}
	}
	return true
}

// Fingerprint hashes the content compared by Equal.
func (f *Fragment) Fingerprint() uint64 {
	d := xxhash.New()
	if f == nil {
		return d.Sum64()
	}
	for _, r := range f.runs {
		if r.Code != nil {
			_, _ = d.WriteString("\x00c")
			_, _ = d.WriteString(r.Code.Kind.String())
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(r.Code.Tag)
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(r.Code.Markup())
			continue
		}
		_, _ = d.WriteString("\x00t")
		_, _ = d.WriteString(r.Text)
	}
	return d.Sum64()
}

type wireFragment struct {
	Runs []Run `json:"runs"`
}

func (f *Fragment) MarshalJSON() ([]byte, error) {
	runs := f.Runs()
	if runs == nil {
		runs = []Run{}
	}
	return json.Marshal(wireFragment{Runs: runs})
}

// UnmarshalJSON accepts either {"runs":[...]} or a plain string, which is
// parsed as inline markup.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = *Parse(s)
		return nil
	}
	var w wireFragment
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding fragment: %w", err)
	}
	for _, r := range w.Runs {
		if r.Code != nil && r.Text != "" {
			return fmt.Errorf("decoding fragment: run carries both text and code")
		}
	}
	*f = *New(w.Runs...)
	return nil
}
