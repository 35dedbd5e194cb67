package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "adoni apmc", Normalize("  Adoni(APMC) "))
	assert.Equal(t, "k r pet", Normalize("K.R. Pet"))
	assert.Equal(t, "", Normalize("--"))
}

func TestSimilarity_Runes(t *testing.T) {
	// One substituted rune out of six.
	assert.InDelta(t, 5.0/6.0, Similarity("Mysuru", "Mysūru"), 0.001)
	assert.InDelta(t, 0.625, Similarity("Hubballi", "Hubli"), 0.001)
	assert.Equal(t, 0.0, Similarity("abc", ""))
}

func TestSimilarity_KnownPairs(t *testing.T) {
	assert.InDelta(t, 0.714, Similarity("Bellary", "Ballari"), 0.001)
	assert.InDelta(t, 0.667, Similarity("Alur", "Kallur"), 0.001)
	assert.Equal(t, 1.0, Similarity("ADONI", "adoni"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
}

func TestTrigrams(t *testing.T) {
	set := Trigrams("Alur")
	for _, want := range []string{"  a", " al", "alu", "lur", "ur "} {
		assert.Contains(t, set, want)
	}
	assert.Len(t, set, 5)

	assert.True(t, SharesTrigram("Alur", "Kallur"))
	assert.False(t, SharesTrigram("Adoni", "Guntur"))
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TrigramSimilarity("Kurnool", "kurnool"))
	assert.Equal(t, 0.0, TrigramSimilarity("", "kurnool"))
	s := TrigramSimilarity("Bellary", "Ballari")
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Andhra Pradesh", TitleCase("andhra PRADESH"))
	assert.Equal(t, "Paddy(Dhan)(Common)", TitleCase("paddy(dhan)(common)"))
	assert.Equal(t, "Arhar (Tur/Red Gram)(Whole)", TitleCase("arhar (tur/red gram)(whole)"))
}
