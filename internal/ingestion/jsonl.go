package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxLineBytes = 1 << 20

// ReadUnits decodes one UnitPayload per line of r and calls fn with its
// 1-based line number. Blank lines and lines starting with # are skipped.
func ReadUnits(r io.Reader, fn func(line int, u UnitPayload) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var u UnitPayload
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&u); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(line, u); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading units after line %d: %w", line, err)
	}
	return nil
}
