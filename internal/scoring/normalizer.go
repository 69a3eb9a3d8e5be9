// Package scoring converts raw model output into bounded, deterministic
// scores. Provider payloads are semi-trusted: fields may be missing,
// non-numeric, or out of range, and normalization must always produce a
// result rather than fail the job.
package scoring

import (
	"math"
	"strconv"
)

// Criterion scale used by the scoring prompts.
const (
	criterionMin = 1.0
	criterionMax = 5.0
)

// weightedCriterion is one scored dimension with its share of the total.
type weightedCriterion struct {
	key    string
	weight float64
}

var cvCriteria = []weightedCriterion{
	{"technical_skills_match", 0.40},
	{"experience_level", 0.25},
	{"relevant_achievements", 0.20},
	{"cultural_collaboration_fit", 0.15},
}

var projectCriteria = []weightedCriterion{
	{"correctness", 0.30},
	{"code_quality_structure", 0.25},
	{"resilience_error_handling", 0.20},
	{"documentation_explanation", 0.15},
	{"creativity_bonus", 0.10},
}

// Summary is the normalized evaluation outcome. Partial is set whenever
// any field had to be defaulted or clamped.
type Summary struct {
	CVMatchRate     float64 // [0, 1]
	ProjectScore    float64 // [1, 5]
	CVFeedback      string
	ProjectFeedback string
	OverallSummary  string
	Partial         bool
}

// Normalize builds a Summary from the raw resume and project scoring
// payloads plus the overall summary text. It never fails: malformed input
// degrades to defaults and marks the summary partial.
func Normalize(resume, report map[string]any, overall string) Summary {
	cvRate, cvPartial := CVMatchRate(resume)
	projScore, projPartial := ProjectScore(report)

	return Summary{
		CVMatchRate:     cvRate,
		ProjectScore:    projScore,
		CVFeedback:      stringField(resume, "cv_feedback"),
		ProjectFeedback: stringField(report, "project_feedback"),
		OverallSummary:  overall,
		Partial:         cvPartial || projPartial,
	}
}

// CVMatchRate maps a resume scoring payload onto [0, 1]. A direct
// cv_match_rate field wins when present; otherwise the weighted criterion
// aggregation (criteria on a 1-5 scale, result divided by 5) is used.
// The second return value reports whether any substitution or clamp
// happened.
func CVMatchRate(payload map[string]any) (float64, bool) {
	if v, ok := payload["cv_match_rate"]; ok {
		n, numeric := asNumber(v)
		if !numeric {
			return 0, true
		}
		clamped := clamp(n, 0, 1)
		return round(clamped, 2), clamped != n
	}

	weighted, partial := aggregate(payload, cvCriteria)
	return round(weighted/criterionMax, 2), partial
}

// ProjectScore maps a project scoring payload onto [1, 5], preferring a
// direct project_score field over the weighted criterion aggregation.
func ProjectScore(payload map[string]any) (float64, bool) {
	if v, ok := payload["project_score"]; ok {
		n, numeric := asNumber(v)
		if !numeric {
			return criterionMin, true
		}
		clamped := clamp(n, criterionMin, criterionMax)
		return round(clamped, 1), clamped != n
	}

	weighted, partial := aggregate(payload, projectCriteria)
	return round(weighted, 1), partial
}

// aggregate computes the weighted criterion sum. Missing or unparseable
// criteria substitute the scale floor; out-of-range values clamp to the
// nearest bound. Either case marks the result partial.
func aggregate(payload map[string]any, criteria []weightedCriterion) (float64, bool) {
	var sum float64
	partial := false

	for _, c := range criteria {
		score := criterionMin
		v, ok := payload[c.key]
		if !ok {
			partial = true
		} else if n, numeric := asNumber(v); !numeric {
			partial = true
		} else {
			score = clamp(n, criterionMin, criterionMax)
			if score != n {
				partial = true
			}
		}
		sum += score * c.weight
	}

	return sum, partial
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// asNumber coerces the JSON representations a provider may emit for a
// numeric field. Textual grades ("high") and non-finite values ("NaN",
// "Inf") are not numbers; they take the defined-default path so the
// persisted scores stay bounded.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
