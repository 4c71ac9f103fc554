// Package report reads the score report produced by the reduce step. Model output
// is free text, so Parse never fails: whatever cannot be read is listed in Problems.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Dimension is one scored attribute of a resume.
type Dimension string

const (
	Career        Dimension = "career"
	Proficiency   Dimension = "proficiency"
	Impact        Dimension = "impact"
	Communication Dimension = "communication"
	Innovation    Dimension = "innovation"
	HighSignal    Dimension = "high_signal"
)

// Dimensions in report order.
var Dimensions = []Dimension{Career, Proficiency, Impact, Communication, Innovation, HighSignal}

const (
	minScore = 1
	maxScore = 10
)

var labels = map[Dimension]string{
	Career:        `career(?:\s+trajectory)?`,
	Proficiency:   `(?:technical\s+)?proficiency`,
	Impact:        `(?:quantifiable\s+)?impact`,
	Communication: `(?:professionalism,\s+)?communication(?:,?\s+and\s+attention\s+to\s+detail)?`,
	Innovation:    `innovation|innovative\s+and\s+distinctive\s+factors`,
	HighSignal:    `high[\s_-]signal(?:\s+traits)?`,
}

var (
	scoreLines = func() map[Dimension]*regexp.Regexp {
		out := make(map[Dimension]*regexp.Regexp, len(labels))
		for d, label := range labels {
			out[d] = regexp.MustCompile(`(?im)^[#\s]*(?:\d+\.\s*)?\**\s*(?:` + label + `)\s*\**\s*:\s*\**\s*(\d{1,2})(?:\s*/\s*10)?\b`)
		}
		return out
	}()

	cumulativeLine = regexp.MustCompile(`(?im)^[#\s*]*(?:final\s+)?(?:cumulative\s+|total\s+)?score\s*\**\s*:\s*\**\s*(\d+(?:\.\d+)?)`)
)

const summarySchema = `{
  "type": "object",
  "required": ["career", "proficiency", "impact", "communication", "innovation", "high_signal"],
  "properties": {
    "career":        {"type": "integer", "minimum": 1, "maximum": 10},
    "proficiency":   {"type": "integer", "minimum": 1, "maximum": 10},
    "impact":        {"type": "integer", "minimum": 1, "maximum": 10},
    "communication": {"type": "integer", "minimum": 1, "maximum": 10},
    "innovation":    {"type": "integer", "minimum": 1, "maximum": 10},
    "high_signal":   {"type": "integer", "minimum": 1, "maximum": 10}
  }
}`

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(summarySchema))
	if err != nil {
		panic(fmt.Sprintf("report: invalid summary schema: %v", err))
	}
	return s
}()

// Report is what could be read from one reduce output.
type Report struct {
	// Scores holds the per-dimension scores found in the text.
	Scores map[Dimension]int `json:"scores"`
	// Cumulative is the stated total, if any.
	Cumulative *float64 `json:"cumulative,omitempty"`
	// Summary is the machine-readable block, set only when it validates.
	Summary  map[Dimension]int `json:"summary,omitempty"`
	Problems []string          `json:"problems,omitempty"`
}

// Parse reads text. It never fails and never panics on malformed input.
func Parse(text string) Report {
	r := Report{Scores: make(map[Dimension]int)}

	for _, d := range Dimensions {
		matches := scoreLines[d].FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			r.Problems = append(r.Problems, fmt.Sprintf("no score for %s", d))
			continue
		}
		// the final section restates the scores; the last one wins
		v, _ := strconv.Atoi(matches[len(matches)-1][1])
		if v < minScore || v > maxScore {
			r.Problems = append(r.Problems, fmt.Sprintf("score for %s out of range: %d", d, v))
			continue
		}
		r.Scores[d] = v
	}

	if m := cumulativeLine.FindAllStringSubmatch(text, -1); len(m) > 0 {
		if v, err := strconv.ParseFloat(m[len(m)-1][1], 64); err == nil {
			r.Cumulative = &v
		}
	} else {
		r.Problems = append(r.Problems, "no cumulative score")
	}

	r.parseSummary(text)

	if r.Cumulative != nil && r.Summary != nil {
		if total := sum(r.Summary); math.Abs(float64(total)-*r.Cumulative) > 0.5 {
			r.Problems = append(r.Problems, fmt.Sprintf("cumulative score %g does not match summary total %d", *r.Cumulative, total))
		}
	}
	return r
}

func (r *Report) parseSummary(text string) {
	block, ok := LastJSON(text)
	if !ok {
		r.Problems = append(r.Problems, "no summary block")
		return
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(block))
	if err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("summary block is not valid JSON: %v", err))
		return
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			msgs = append(msgs, field+": "+desc.Description())
		}
		sort.Strings(msgs)
		r.Problems = append(r.Problems, "summary block: "+strings.Join(msgs, "; "))
		return
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("summary block: %v", err))
		return
	}
	r.Summary = make(map[Dimension]int, len(Dimensions))
	for _, d := range Dimensions {
		r.Summary[d] = int(raw[string(d)])
	}
}

// LastJSON returns the text from the last '{' to the last '}' when they are in that order.
func LastJSON(text string) (string, bool) {
	open := strings.LastIndexByte(text, '{')
	closing := strings.LastIndexByte(text, '}')
	if open < 0 || open > closing {
		return "", false
	}
	return text[open : closing+1], true
}

// Score is the best available overall score: the stated cumulative score, else the
// summary total, else the total of the text scores when all six were found.
func (r Report) Score() (float64, bool) {
	switch {
	case r.Cumulative != nil:
		return *r.Cumulative, true
	case r.Summary != nil:
		return float64(sum(r.Summary)), true
	case len(r.Scores) == len(Dimensions):
		return float64(sum(r.Scores)), true
	}
	return 0, false
}

// OK reports whether nothing was missing or malformed.
func (r Report) OK() bool { return len(r.Problems) == 0 }

func sum(m map[Dimension]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
