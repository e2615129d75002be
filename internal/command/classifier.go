// Package command maps raw inbound text to a command label using an ordered
// rule table. Rule order is policy: several patterns can match the same text
// and the first one wins, so reordering the table changes behavior.
package command

import (
	"regexp"
	"strings"

	"github.com/flockline/flockline/internal/model"
)

type Rule struct {
	Label   model.CommandLabel
	Pattern *regexp.Regexp
}

var rules = []Rule{
	{model.LabelRegister, regexp.MustCompile(`^register\b`)},
	{model.LabelGive, regexp.MustCompile(`^give\b|\bgive\s+\d+`)},
	{model.LabelBalance, regexp.MustCompile(`balance|offerings|total`)},
	{model.LabelPrayer, regexp.MustCompile(`prayer|pray\b|intercession|ombi`)},
	{model.LabelInfo, regexp.MustCompile(`\binfo\b|information|details`)},
	{model.LabelHelp, regexp.MustCompile(`help|menu|commands|msaada`)},
}

// Classify returns the label of the first matching rule. ok is false when no
// rule matches, which is a valid outcome for free-form text. Matching is
// case-insensitive and deterministic.
func Classify(text string) (label model.CommandLabel, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, r := range rules {
		if r.Pattern.MatchString(lower) {
			return r.Label, true
		}
	}
	return "", false
}

// Rules exposes the table in evaluation order so precedence stays auditable.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
