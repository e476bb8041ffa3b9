package ingestion

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUnits(t *testing.T) {
	input := `# exported from zoo.tmx
{"source":"Elephants cannot fly.","target":"Les éléphants ne peuvent pas voler.","source_locale":"en-US"}

{"source":"Click <b>Save</b>.","target":"Cliquez sur <b>Enregistrer</b>.","metadata":{"project":"ui"}}
`
	var lines []int
	var units []UnitPayload
	err := ReadUnits(strings.NewReader(input), func(line int, u UnitPayload) error {
		lines = append(lines, line)
		units = append(units, u)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, lines)
	assert.Equal(t, "en-US", units[0].SourceLocale)
	assert.Equal(t, "ui", units[1].Metadata["project"])
}

func TestReadUnitsReportsLine(t *testing.T) {
	err := ReadUnits(strings.NewReader("{\"source\":\"a\"}\n{\"sauce\":\"b\"}\n"), func(int, UnitPayload) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	stop := errors.New("stop")
	err = ReadUnits(strings.NewReader("{\"source\":\"a\"}\n"), func(int, UnitPayload) error { return stop })
	assert.ErrorIs(t, err, stop)
}
