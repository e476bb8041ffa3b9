package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/ranker"
)

func TestLeverage(t *testing.T) {
	s := openSession(t, newEngine(t,
		unit("Elephants cannot fly.", "Les éléphants ne peuvent pas voler."),
		unit("Elephants can fly.", "Les éléphants savent voler."),
	), WithName("main"))
	require.NoError(t, s.SetThreshold(50))

	alts, err := Leverage(s, fragment.FromText("Elephants cannot fly."))
	require.NoError(t, err)
	require.Equal(t, 2, alts.Len())

	best, ok := alts.Best()
	require.True(t, ok)
	assert.True(t, best.Verbatim())
	assert.Equal(t, ranker.MatchExact, best.MatchType)
	assert.Equal(t, "main", best.Origin)

	all := alts.All()
	assert.False(t, all[1].Verbatim())
	assert.Greater(t, all[1].CombinedScore, 50)

	all[0].CombinedScore = 1
	again, _ := alts.Best()
	assert.Equal(t, 100, again.CombinedScore)
}

func TestAltTranslationsAppendOnly(t *testing.T) {
	var alts AltTranslations
	_, ok := alts.Best()
	assert.False(t, ok)
	assert.Zero(t, alts.Len())

	alts.Add(AltTranslation{Target: fragment.FromText("un"), CombinedScore: 80})
	alts.Add(AltTranslation{Target: fragment.FromText("deux"), CombinedScore: 90})
	assert.Equal(t, 2, alts.Len())
	first, _ := alts.Best()
	assert.Equal(t, "un", first.Target.String())

	var nilList *AltTranslations
	assert.Zero(t, nilList.Len())
	assert.Nil(t, nilList.All())
}

func TestLeverageRequiresOpenConnector(t *testing.T) {
	_, err := Leverage(NewSession(newEngine(t)), fragment.FromText("x"))
	assert.Error(t, err)
}
