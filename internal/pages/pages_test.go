package pages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func flatten(pages []Page) []Unit {
	var out []Unit
	for _, p := range pages {
		out = append(out, p.Units...)
	}
	return out
}

func TestSplit_SingleDocumentUnderBudget(t *testing.T) {
	text := words(500)

	pages := Split(FromText(text), 2000)

	require.Len(t, pages, 1)
	assert.Equal(t, text, pages[0].Text())
	assert.Equal(t, 500, pages[0].Words)
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, Split(nil, 100))
	assert.Empty(t, Split(FromText("   \n\t"), 100))
}

func TestSplit_EqualTurnsSealOnOverflow(t *testing.T) {
	units := []Unit{
		{Speaker: "a", Text: words(800)},
		{Speaker: "b", Text: words(800)},
		{Speaker: "c", Text: words(800)},
	}

	pages := Split(units, 1500)

	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.Len(t, p.Units, 1)
		assert.Equal(t, 800, p.Words)
	}
}

func TestSplit_PacksUpToBudget(t *testing.T) {
	units := []Unit{
		{Text: words(400)},
		{Text: words(600)},
		{Text: words(500)},
		{Text: words(100)},
	}

	pages := Split(units, 1000)

	require.Len(t, pages, 2)
	assert.Equal(t, 1000, pages[0].Words)
	assert.Equal(t, 600, pages[1].Words)
}

func TestSplit_OversizedUnitKeptIntact(t *testing.T) {
	big := words(50)
	units := []Unit{{Text: words(5)}, {Text: big}, {Text: words(5)}}

	pages := Split(units, 10)

	require.Len(t, pages, 3)
	assert.True(t, pages[1].Oversized(10))
	assert.Equal(t, big, pages[1].Text())
	assert.False(t, pages[0].Oversized(10))
}

func TestSplit_PreservesUnitSequence(t *testing.T) {
	sizes := []int{3, 17, 1, 9, 9, 2, 30, 4, 4, 4, 12, 0, 6}
	var units []Unit
	for i, n := range sizes {
		units = append(units, Unit{Speaker: string(rune('a' + i)), Text: words(n)})
	}

	for _, budget := range []int{0, 1, 5, 10, 20, 100} {
		pages := Split(units, budget)
		assert.Equal(t, units, flatten(pages), "budget %d", budget)
		for _, p := range pages {
			if !p.Oversized(budget) {
				assert.LessOrEqual(t, p.Words, budget, "budget %d page %d", budget, p.Index)
			}
		}
	}
}

func TestPageText_JoinsRenderedUnits(t *testing.T) {
	p := Page{Units: []Unit{{Speaker: "1", Text: "hello there"}, {Speaker: "2", Text: "hi"}}}
	assert.Equal(t, "1: hello there\n\n2: hi", p.Text())
}

func TestFromParagraphs(t *testing.T) {
	units := FromParagraphs("first para\r\n\r\nsecond\n\n\n\n  third  ")
	require.Len(t, units, 3)
	assert.Equal(t, "first para", units[0].Text)
	assert.Equal(t, "third", units[2].Text)
}

func TestFromTranscript(t *testing.T) {
	tr := models.CallTranscript{Transcript: []models.Monologue{
		{SpeakerID: "42", Sentences: []models.Sentence{{Text: "We need"}, {Text: "better exports."}}},
		{Sentences: []models.Sentence{{Text: "Noted."}}},
		{SpeakerID: "7"},
	}}

	units := FromTranscript(tr)

	require.Len(t, units, 2)
	assert.Equal(t, Unit{Speaker: "42", Text: "We need better exports."}, units[0])
	assert.Equal(t, "Unknown: Noted.", units[1].Render())
	assert.Equal(t, 4, units[0].Words())
}
