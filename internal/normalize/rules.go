package normalize

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/kensa/internal/model"
)

// Core Web Vitals thresholds. Values at a "good" bound are good; values
// strictly above a "poor" bound are poor.
const (
	LCPGoodSeconds = 2.5
	LCPPoorSeconds = 4.0
	CLSGood        = 0.10
	CLSPoor        = 0.25
	INPGoodMillis  = 200
	INPPoorMillis  = 500
)

// Ranking boundaries. Positions in [1, MaxRankedPosition] count as ranking.
const (
	MaxRankedPosition  = 100
	Top3               = 3
	Top10              = 10
	StrikingDistanceLo = 11
	StrikingDistanceHi = 20
)

// Rate classifies v against a good/poor threshold pair.
func Rate(v, good, poor float64) model.Rating {
	switch {
	case v <= good:
		return model.RatingGood
	case v > poor:
		return model.RatingPoor
	default:
		return model.RatingNeedsImprovement
	}
}

// vitalThresholds maps each rated vital to its (good, poor) bounds.
var vitalThresholds = map[string][2]float64{
	VitalsLCP: {LCPGoodSeconds, LCPPoorSeconds},
	VitalsCLS: {CLSGood, CLSPoor},
	VitalsINP: {INPGoodMillis, INPPoorMillis},
}

// RateVital rates a vital by key. Keys that are not rated vitals return "".
func RateVital(key string, v float64) model.Rating {
	t, ok := vitalThresholds[key]
	if !ok {
		return ""
	}
	return Rate(v, t[0], t[1])
}

// RatedVitals lists the rated vitals in display order.
var RatedVitals = []string{VitalsLCP, VitalsCLS, VitalsINP}

// ---- technical ------------------------------------------------------------

type technicalExtractor struct{}

func (technicalExtractor) Kind() WorkerKind { return KindTechnical }

func (technicalExtractor) Extract(p Payload) Extraction {
	if e, ok := fallback(p); ok {
		return e
	}
	b := baseExtraction(KindTechnical, p.Numeric())
	tp, _ := p.(TechnicalPayload)

	// Issue lists stand in for counters the worker did not report.
	counts := map[string]float64{}
	for _, issue := range tp.Issues {
		if _, ok := catalog[issue.Type]; ok {
			counts[issue.Type]++
		}
	}
	for key, n := range counts {
		if _, reported := b.metrics[key]; !reported {
			b.set(key, n)
		}
	}

	e := b.build()
	e.Issues = tp.Issues
	return e
}

func (technicalExtractor) Summarize(e Extraction) string {
	var parts []string
	for _, item := range []struct {
		key   string
		label string
	}{
		{TechServerErrors, "server errors"},
		{TechMissingTitle, "missing titles"},
		{TechMissingH1, "missing H1"},
		{TechBrokenLinks, "broken links"},
		{TechMissingMetaDesc, "missing meta descriptions"},
	} {
		if v, ok := e.Value(item.key); ok {
			parts = append(parts, fmt.Sprintf("%s %s", formatCount(v), item.label))
		}
	}
	head := "crawl complete"
	if v, ok := e.Value(TechPagesCrawled); ok {
		head = fmt.Sprintf("%s pages crawled", formatCount(v))
	}
	if len(parts) == 0 {
		return head
	}
	return head + ": " + strings.Join(parts, ", ")
}

// ---- performance ----------------------------------------------------------

type performanceExtractor struct{}

func (performanceExtractor) Kind() WorkerKind { return KindPerformance }

func (performanceExtractor) Extract(p Payload) Extraction {
	if e, ok := fallback(p); ok {
		return e
	}
	e := baseExtraction(KindPerformance, p.Numeric()).build()
	for _, key := range RatedVitals {
		if v, ok := e.Metrics[key]; ok {
			t := vitalThresholds[key]
			e.Ratings[key] = Rate(v, t[0], t[1])
		}
	}
	return e
}

func (performanceExtractor) Summarize(e Extraction) string {
	vital := func(key, label, format string) string {
		v, ok := e.Value(key)
		if !ok {
			return label + " n/a"
		}
		return fmt.Sprintf("%s "+format+" (%s)", label, v, e.Ratings[key])
	}
	s := strings.Join([]string{
		vital(VitalsLCP, "LCP", "%.1fs"),
		vital(VitalsCLS, "CLS", "%.2f"),
		vital(VitalsINP, "INP", "%.0fms"),
	}, ", ")
	if v, ok := e.Value(VitalsPerformanceScore); ok {
		s += fmt.Sprintf(", score %s", formatCount(v))
	}
	return s
}

// ---- serp -----------------------------------------------------------------

type serpExtractor struct{}

func (serpExtractor) Kind() WorkerKind { return KindSERP }

func (serpExtractor) Extract(p Payload) Extraction {
	if e, ok := fallback(p); ok {
		return e
	}
	b := baseExtraction(KindSERP, p.Numeric())
	sp, _ := p.(SerpPayload)
	if !sp.HasEntries {
		return b.build()
	}

	var ranked, top3, top10, striking, notRanking int
	var sum float64
	for _, entry := range sp.Entries {
		pos := entry.Position
		if !entry.Resolved || pos < 1 || pos > MaxRankedPosition {
			notRanking++
			continue
		}
		ranked++
		sum += pos
		if pos <= Top3 {
			top3++
		}
		if pos <= Top10 {
			top10++
		}
		if pos >= StrikingDistanceLo && pos <= StrikingDistanceHi {
			striking++
		}
	}

	// Computed values replace anything the worker reported directly.
	b.set(SerpKeywordCount, float64(len(sp.Entries)))
	b.set(SerpInTop3, float64(top3))
	b.set(SerpInTop10, float64(top10))
	b.set(SerpStrikingDistance, float64(striking))
	b.set(SerpNotRanking, float64(notRanking))
	delete(b.metrics, SerpAvgPosition)
	if ranked > 0 {
		b.set(SerpAvgPosition, sum/float64(ranked))
	}
	return b.build()
}

func (serpExtractor) Summarize(e Extraction) string {
	total, ok := e.Value(SerpKeywordCount)
	if !ok {
		return "no keyword data"
	}
	top10, _ := e.Value(SerpInTop10)
	s := fmt.Sprintf("%s/%s keywords in top 10", formatCount(top10), formatCount(total))
	if avg, ok := e.Value(SerpAvgPosition); ok {
		s += fmt.Sprintf(", avg position %.1f", avg)
	} else {
		s += ", none ranking"
	}
	return s
}

// ---- competitive ----------------------------------------------------------

type competitiveExtractor struct{}

func (competitiveExtractor) Kind() WorkerKind { return KindCompetitive }

func (competitiveExtractor) Extract(p Payload) Extraction {
	if e, ok := fallback(p); ok {
		return e
	}
	return baseExtraction(KindCompetitive, p.Numeric()).build()
}

func (competitiveExtractor) Summarize(e Extraction) string {
	var parts []string
	if v, ok := e.Value(AuthorityDomainAuthority); ok {
		parts = append(parts, "domain authority "+formatCount(v))
	}
	if v, ok := e.Value(CompetitiveCompetitorCount); ok {
		parts = append(parts, formatCount(v)+" competitors")
	}
	if v, ok := e.Value(CompetitiveKeywordGap); ok {
		parts = append(parts, formatCount(v)+" keyword gaps")
	}
	if len(parts) == 0 {
		return "no competitive data"
	}
	return strings.Join(parts, ", ")
}

// ---- ai readiness ---------------------------------------------------------

type aiReadinessExtractor struct{}

func (aiReadinessExtractor) Kind() WorkerKind { return KindAIReadiness }

func (aiReadinessExtractor) Extract(p Payload) Extraction {
	if e, ok := fallback(p); ok {
		return e
	}
	b := baseExtraction(KindAIReadiness, p.Numeric())
	if v, ok := b.metrics[AILLMsTxtPresent]; ok {
		if v != 0 {
			b.set(AILLMsTxtPresent, 1)
		}
	}
	return b.build()
}

func (aiReadinessExtractor) Summarize(e Extraction) string {
	var parts []string
	if v, ok := e.Value(AIReadinessScore); ok {
		parts = append(parts, fmt.Sprintf("AI readiness %s/100", formatCount(v)))
	}
	if v, ok := e.Value(AILLMsTxtPresent); ok {
		if v == 0 {
			parts = append(parts, "llms.txt missing")
		} else {
			parts = append(parts, "llms.txt present")
		}
	}
	if len(parts) == 0 {
		return "no readiness data"
	}
	return strings.Join(parts, ", ")
}

// ---- generic --------------------------------------------------------------

type genericExtractor struct{}

func (genericExtractor) Kind() WorkerKind { return KindGeneric }

// Extract reads the kpis sub-object of any payload. For unstructured payloads
// the top-level numeric fields are read as well.
func (genericExtractor) Extract(p Payload) Extraction {
	f := p.Numeric()
	b := newBuilder(KindGeneric)
	b.addAll(f.KPIs)
	_, unstructured := p.(UnstructuredPayload)
	if unstructured {
		b.addAll(f.Scalars)
	}
	e := b.build()
	e.Unstructured = unstructured
	return e
}

func (genericExtractor) Summarize(e Extraction) string {
	s := fmt.Sprintf("%d metrics extracted", len(e.Metrics))
	if e.Unstructured {
		s += " (unstructured response)"
	}
	return s
}

func formatCount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
