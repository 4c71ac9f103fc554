package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `## Feedback
You show steady progression but few metrics.

## Advice
1. Quantify your impact.
2. Trim the technology list.

## Scores
1. **Career Trajectory:** 7
2. **Technical Proficiency:** 6
3. **Quantifiable Impact:** 4
4. **Professionalism, Communication, and Attention to Detail:** 8
5. **Innovative and Distinctive Factors:** 5
6. **High Signal Traits:** 3/10

### Final Cumulative Score: 33

{"career": 7, "proficiency": 6, "impact": 4, "communication": 8, "innovation": 5, "high_signal": 3}
`

func TestParseWellFormed(t *testing.T) {
	r := Parse(wellFormed)

	assert.True(t, r.OK(), r.Problems)
	assert.Equal(t, map[Dimension]int{
		Career: 7, Proficiency: 6, Impact: 4, Communication: 8, Innovation: 5, HighSignal: 3,
	}, r.Scores)
	require.NotNil(t, r.Cumulative)
	assert.Equal(t, 33.0, *r.Cumulative)
	assert.Equal(t, r.Scores, r.Summary)

	score, ok := r.Score()
	assert.True(t, ok)
	assert.Equal(t, 33.0, score)
}

func TestParseLastScoreWins(t *testing.T) {
	text := "Career Trajectory: 2\nlater revised\nCareer Trajectory: 9\n"
	r := Parse(text)
	assert.Equal(t, 9, r.Scores[Career])
}

func TestParseEmpty(t *testing.T) {
	r := Parse("")
	assert.False(t, r.OK())
	assert.Empty(t, r.Scores)
	assert.Nil(t, r.Cumulative)
	assert.Nil(t, r.Summary)
	assert.Contains(t, r.Problems, "no score for career")
	assert.Contains(t, r.Problems, "no cumulative score")
	assert.Contains(t, r.Problems, "no summary block")

	_, ok := r.Score()
	assert.False(t, ok)
}

func TestParseOutOfRange(t *testing.T) {
	r := Parse("Technical Proficiency: 42\n")
	_, found := r.Scores[Proficiency]
	assert.False(t, found)
	assert.Contains(t, r.Problems, "score for proficiency out of range: 42")
}

func TestParseInvalidSummary(t *testing.T) {
	tests := []struct {
		name, block, want string
	}{
		{"missing field", `{"career": 7}`, "summary block:"},
		{"out of range", `{"career": 11, "proficiency": 6, "impact": 4, "communication": 8, "innovation": 5, "high_signal": 3}`, "career"},
		{"not integer", `{"career": 7.5, "proficiency": 6, "impact": 4, "communication": 8, "innovation": 5, "high_signal": 3}`, "career"},
		{"broken json", `{"career": 7,,}`, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse("Score: 30\n" + tt.block)
			assert.Nil(t, r.Summary)
			found := false
			for _, p := range r.Problems {
				if strings.Contains(p, tt.want) {
					found = true
				}
			}
			assert.True(t, found, r.Problems)
		})
	}
}

func TestParseCumulativeMismatch(t *testing.T) {
	text := "Score: 50\n" + `{"career": 7, "proficiency": 6, "impact": 4, "communication": 8, "innovation": 5, "high_signal": 3}`
	r := Parse(text)
	require.NotNil(t, r.Summary)
	assert.Contains(t, r.Problems, "cumulative score 50 does not match summary total 33")
}

func TestScoreFallbacks(t *testing.T) {
	r := Parse(`{"career": 1, "proficiency": 2, "impact": 3, "communication": 4, "innovation": 5, "high_signal": 6}`)
	score, ok := r.Score()
	assert.True(t, ok)
	assert.Equal(t, 21.0, score)
}

func TestLastJSON(t *testing.T) {
	block, ok := LastJSON(`noise {"a": 1} more {"b": 2} tail`)
	assert.True(t, ok)
	assert.Equal(t, `{"b": 2}`, block)

	_, ok = LastJSON("} before {")
	assert.False(t, ok)
	_, ok = LastJSON("no braces")
	assert.False(t, ok)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{"{", "}", "{{}}", "Score:", "### Final Cumulative Score: **", "\x00\xff", "Career Trajectory: 7/10 {"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) }, in)
	}
}
