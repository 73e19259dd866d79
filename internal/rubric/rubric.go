// Package rubric holds the static evaluation rubric, score aggregation and
// the deterministic tag suggestions derived from it.
package rubric

import (
	"fmt"
	"math"
	"strings"

	"charterline/internal/domain"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Entry struct {
	Category domain.RubricCategory
	Weight   float64
}

// Table is the fixed rubric. Weights sum to 1.
var Table = []Entry{
	{Category: domain.CategoryCommunication, Weight: 0.20},
	{Category: domain.CategoryOwnership, Weight: 0.25},
	{Category: domain.CategoryCraft, Weight: 0.25},
	{Category: domain.CategoryReliability, Weight: 0.15},
	{Category: domain.CategoryValueAlignment, Weight: 0.15},
}

func Weight(c domain.RubricCategory) (float64, bool) {
	for _, e := range Table {
		if e.Category == c {
			return e.Weight, true
		}
	}
	return 0, false
}

func ValidateScore(category domain.RubricCategory, score int) error {
	if _, ok := Weight(category); !ok {
		return domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown rubric category %q", category)}
	}
	if score < MinScore || score > MaxScore {
		return domain.ValidationError{Field: "score", Reason: fmt.Sprintf("%d outside %d..%d", score, MinScore, MaxScore)}
	}
	return nil
}

// Overall is the weighted mean of the category scores rounded to one decimal.
func Overall(scores []domain.CategoryScore) float64 {
	return math.Round(Mean(scores)*10) / 10
}

// Mean is the unrounded weighted mean. Tag thresholds compare against it so
// that rounding never lifts a score across a boundary.
func Mean(scores []domain.CategoryScore) float64 {
	var sum, weights float64
	for _, s := range scores {
		w, ok := Weight(s.Category)
		if !ok {
			continue
		}
		sum += float64(s.Score) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// Score turns questionnaire responses into one AI-suggested score per rubric
// category, in rubric order. Every category must be answered.
func Score(responses []domain.QuestionnaireResponse) ([]domain.CategoryScore, error) {
	byCategory := map[domain.RubricCategory]domain.QuestionnaireResponse{}
	for _, r := range responses {
		if _, ok := Weight(r.Category); !ok {
			return nil, domain.ValidationError{Field: "responses", Reason: fmt.Sprintf("unknown rubric category %q", r.Category)}
		}
		if r.Rating != 0 && (r.Rating < MinScore || r.Rating > MaxScore) {
			return nil, domain.ValidationError{Field: "rating", Reason: fmt.Sprintf("%d outside %d..%d", r.Rating, MinScore, MaxScore)}
		}
		byCategory[r.Category] = r
	}
	scores := make([]domain.CategoryScore, 0, len(Table))
	for _, e := range Table {
		r, ok := byCategory[e.Category]
		if !ok {
			return nil, domain.ValidationError{Field: "responses", Reason: fmt.Sprintf("missing answer for %s", e.Category)}
		}
		scores = append(scores, domain.CategoryScore{Category: e.Category, Score: suggestScore(r), AISuggested: true})
	}
	return scores, nil
}

// suggestScore uses the self rating when given, otherwise the depth of the answer.
func suggestScore(r domain.QuestionnaireResponse) int {
	if r.Rating != 0 {
		return r.Rating
	}
	words := len(strings.Fields(r.Answer))
	switch {
	case words < 5:
		return 1
	case words < 15:
		return 2
	case words < 40:
		return 3
	case words < 80:
		return 4
	default:
		return 5
	}
}

type riskRule struct {
	category domain.RiskCategory
	severity domain.Severity
	phrases  []string
}

var riskRules = []riskRule{
	{domain.RiskConflictOfInterest, domain.SeverityHigh, []string{"competitor", "conflict of interest", "non-compete"}},
	{domain.RiskIPEncumbrance, domain.SeverityHigh, []string{"employer owns", "owned by my employer", "existing ip", "patent pending"}},
	{domain.RiskAvailability, domain.SeverityMedium, []string{"part-time", "limited availability", "few hours", "other commitments"}},
	{domain.RiskCapability, domain.SeverityLow, []string{"no experience", "never used", "still learning"}},
	{domain.RiskCommunication, domain.SeverityLow, []string{"slow to respond", "hard to reach", "rarely online"}},
}

// DetectRisks flags at most one risk per category, in rule order.
func DetectRisks(responses []domain.QuestionnaireResponse) []domain.RiskFlag {
	flags := []domain.RiskFlag{}
	for _, rule := range riskRules {
		for _, r := range responses {
			answer := strings.ToLower(r.Answer)
			phrase, found := firstPhrase(answer, rule.phrases)
			if !found {
				continue
			}
			flags = append(flags, domain.RiskFlag{
				Category: rule.category,
				Severity: rule.severity,
				Note:     fmt.Sprintf("%s answer mentions %q", r.Category, phrase),
			})
			break
		}
	}
	return flags
}

func firstPhrase(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// Fit classifies the unrounded weighted mean.
func Fit(mean float64) domain.FitTag {
	switch {
	case mean >= 4:
		return domain.FitStrong
	case mean < 3:
		return domain.FitWeak
	default:
		return domain.FitConditional
	}
}

// Readiness picks the suggested next step. Order matters: a strong fit with
// no flags is ready to sign, a weak fit is declined, a high-severity flag
// pauses, anything else needs clarification.
func Readiness(fit domain.FitTag, flags []domain.RiskFlag) domain.ReadinessTag {
	switch {
	case fit == domain.FitStrong && len(flags) == 0:
		return domain.ReadySign
	case fit == domain.FitWeak:
		return domain.ReadyDecline
	case hasHighSeverity(flags):
		return domain.ReadyPause
	default:
		return domain.ReadyClarify
	}
}

func hasHighSeverity(flags []domain.RiskFlag) bool {
	for _, f := range flags {
		if f.Severity == domain.SeverityHigh {
			return true
		}
	}
	return false
}

// DeriveTags returns the initial, unconfirmed suggestions: one fit tag, one
// risk tag per distinct flagged category (or risk:none), one readiness tag.
func DeriveTags(mean float64, flags []domain.RiskFlag) []domain.TagEntry {
	fit := Fit(mean)
	tags := []domain.TagEntry{domain.NewTagEntry(fit, true)}
	seen := map[domain.RiskCategory]bool{}
	for _, f := range flags {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		tags = append(tags, domain.NewTagEntry(domain.RiskTag(f.Category), true))
	}
	if len(seen) == 0 {
		tags = append(tags, domain.NewTagEntry(domain.RiskNone, true))
	}
	return append(tags, domain.NewTagEntry(Readiness(fit, flags), true))
}
