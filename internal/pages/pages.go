// Package pages partitions extracted text into ordered, word-bounded pages.
package pages

import (
	"strings"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// unknownSpeaker labels transcript turns that carry no speaker id.
const unknownSpeaker = "Unknown"

// Unit is an atomic piece of text that is never split across pages.
type Unit struct {
	Speaker string
	Text    string
}

// Words returns the whitespace-delimited word count of the unit body.
// The speaker label does not count toward the budget.
func (u Unit) Words() int {
	return len(strings.Fields(u.Text))
}

// Render formats the unit the way it is sent to the model.
func (u Unit) Render() string {
	if u.Speaker == "" {
		return u.Text
	}
	return u.Speaker + ": " + u.Text
}

// Page is a sealed, ordered run of units.
type Page struct {
	Index int
	Units []Unit
	Words int
}

// Text joins the rendered units of the page with blank lines.
func (p Page) Text() string {
	if len(p.Units) == 1 {
		return p.Units[0].Render()
	}
	parts := make([]string, len(p.Units))
	for i, u := range p.Units {
		parts[i] = u.Render()
	}
	return strings.Join(parts, "\n\n")
}

// Oversized reports whether the page holds a single unit above the budget.
func (p Page) Oversized(maxWords int) bool {
	return len(p.Units) == 1 && p.Words > maxWords
}

// Split packs units into pages of at most maxWords words. A unit that would push
// the current page over the budget seals it and starts the next page. A unit that
// alone exceeds the budget becomes its own page and is never cut. Empty input
// yields no pages. A non-positive maxWords puts every unit on its own page.
func Split(units []Unit, maxWords int) []Page {
	var (
		out     []Page
		current []Unit
		words   int
	)

	seal := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, Page{Index: len(out), Units: current, Words: words})
		current = nil
		words = 0
	}

	for _, u := range units {
		n := u.Words()
		if len(current) > 0 && words+n > maxWords {
			seal()
		}
		current = append(current, u)
		words += n
	}
	seal()

	return out
}

// FromText treats the whole document as one unit. Blank text yields no units.
func FromText(text string) []Unit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Unit{{Text: text}}
}

// FromParagraphs uses blank-line separated paragraphs as units.
func FromParagraphs(text string) []Unit {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var units []Unit
	for _, para := range strings.Split(normalized, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		units = append(units, Unit{Text: para})
	}
	return units
}

// FromTranscript turns each speaker turn into a unit. Sentences are joined with
// single spaces. Turns without any sentence text are dropped.
func FromTranscript(t models.CallTranscript) []Unit {
	units := make([]Unit, 0, len(t.Transcript))
	for _, m := range t.Transcript {
		sentences := make([]string, 0, len(m.Sentences))
		for _, s := range m.Sentences {
			if s.Text != "" {
				sentences = append(sentences, s.Text)
			}
		}
		if len(sentences) == 0 {
			continue
		}
		speaker := m.SpeakerID
		if speaker == "" {
			speaker = unknownSpeaker
		}
		units = append(units, Unit{Speaker: speaker, Text: strings.Join(sentences, " ")})
	}
	return units
}
