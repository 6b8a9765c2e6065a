// Package scoring aggregates normalized metrics into category sub-scores and
// a weighted overall score. Every score is in [0, 100].
//
// A category with no usable input scores DefaultScore and is listed in
// Scores.Defaulted, so a report can tell "average" from "unknown".
package scoring

import (
	"math"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

// DefaultScore is used for categories without input.
const DefaultScore = 50.0

// Category names as listed in Scores.Defaulted.
const (
	Technical   = "technical"
	Performance = "performance"
	Content     = "content"
	SERP        = "serp"
	Authority   = "authority"
)

// Overall weights. They sum to 1.
const (
	weightTechnical   = 0.25
	weightPerformance = 0.25
	weightContent     = 0.20
	weightSERP        = 0.15
	weightAuthority   = 0.15
)

// technicalPenalties is the per-issue deduction for each crawl counter.
// A single counter never deducts more than maxPenalty.
var technicalPenalties = []struct {
	key     string
	perItem float64
}{
	{normalize.TechServerErrors, 15},
	{normalize.TechMissingTitle, 8},
	{normalize.TechMissingH1, 5},
	{normalize.TechBrokenLinks, 3},
	{normalize.TechMissingMetaDesc, 2},
	{normalize.TechDuplicateTitles, 1},
}

const maxPenalty = 40.0

// ratingPoints converts a vital rating into a performance score.
var ratingPoints = map[model.Rating]float64{
	model.RatingGood:             100,
	model.RatingNeedsImprovement: 60,
	model.RatingPoor:             20,
}

// Compute derives scores from the metrics and ratings collected across a
// run's successful worker results.
func Compute(metrics map[string]float64, ratings map[string]model.Rating) model.Scores {
	var s model.Scores
	var ok bool

	if s.Technical, ok = technical(metrics); !ok {
		s.Technical = DefaultScore
		s.Defaulted = append(s.Defaulted, Technical)
	}
	if s.Performance, ok = performance(metrics, ratings); !ok {
		s.Performance = DefaultScore
		s.Defaulted = append(s.Defaulted, Performance)
	}
	if s.Content, ok = content(metrics); !ok {
		s.Content = DefaultScore
		s.Defaulted = append(s.Defaulted, Content)
	}
	if s.SERP, ok = serp(metrics); !ok {
		s.SERP = DefaultScore
		s.Defaulted = append(s.Defaulted, SERP)
	}
	if s.Authority, ok = authority(metrics); !ok {
		s.Authority = DefaultScore
		s.Defaulted = append(s.Defaulted, Authority)
	}

	s.Overall = round1(clamp(weightTechnical*s.Technical +
		weightPerformance*s.Performance +
		weightContent*s.Content +
		weightSERP*s.SERP +
		weightAuthority*s.Authority))
	return s
}

func technical(m map[string]float64) (float64, bool) {
	score := 100.0
	seen := false
	for _, p := range technicalPenalties {
		n, ok := m[p.key]
		if !ok {
			continue
		}
		seen = true
		score -= math.Min(math.Max(n, 0)*p.perItem, maxPenalty)
	}
	if !seen {
		return 0, false
	}
	return round1(clamp(score)), true
}

func performance(m map[string]float64, ratings map[string]model.Rating) (float64, bool) {
	if v, ok := m[normalize.VitalsPerformanceScore]; ok {
		return round1(clamp(v)), true
	}
	var sum float64
	var n int
	for _, key := range normalize.RatedVitals {
		r, ok := ratings[key]
		if !ok {
			v, present := m[key]
			if !present {
				continue
			}
			r = normalize.RateVital(key, v)
		}
		pts, known := ratingPoints[r]
		if !known {
			continue
		}
		sum += pts
		n++
	}
	if n == 0 {
		return 0, false
	}
	return round1(sum / float64(n)), true
}

func content(m map[string]float64) (float64, bool) {
	var parts []float64
	if v, ok := m[normalize.AIReadinessScore]; ok {
		parts = append(parts, clamp(v))
	}
	meta, okMeta := m[normalize.TechMissingMetaDesc]
	dup, okDup := m[normalize.TechDuplicateTitles]
	if okMeta || okDup {
		parts = append(parts, clamp(100-10*(math.Max(meta, 0)+math.Max(dup, 0))))
	}
	if len(parts) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range parts {
		sum += p
	}
	return round1(sum / float64(len(parts))), true
}

func serp(m map[string]float64) (float64, bool) {
	total, ok := m[normalize.SerpKeywordCount]
	if !ok || total <= 0 {
		return 0, false
	}
	top10 := math.Min(math.Max(m[normalize.SerpInTop10], 0), total)
	coverage := 100 * top10 / total

	var position float64
	if avg, ok := m[normalize.SerpAvgPosition]; ok {
		avg = math.Min(math.Max(avg, 1), normalize.MaxRankedPosition)
		position = 100 - (avg-1)*100/(normalize.MaxRankedPosition-1)
	}
	return round1(clamp(0.6*coverage + 0.4*position)), true
}

func authority(m map[string]float64) (float64, bool) {
	v, ok := m[normalize.AuthorityDomainAuthority]
	if !ok {
		return 0, false
	}
	return round1(clamp(v)), true
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
