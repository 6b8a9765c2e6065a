package normalize_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestKindForKey(t *testing.T) {
	assert.Equal(t, normalize.KindTechnical, normalize.KindForKey("technical"))
	assert.Equal(t, normalize.KindAIReadiness, normalize.KindForKey("ai_readiness"))
	assert.Equal(t, normalize.KindGeneric, normalize.KindForKey("backlink_audit"))
}

func TestDefaultAgent(t *testing.T) {
	assert.Equal(t, normalize.AgentSearch, normalize.DefaultAgent(normalize.KindSERP, "serp"))
	assert.Equal(t, normalize.AgentSearch, normalize.DefaultAgent(normalize.KindCompetitive, "competitive"))
	assert.Equal(t, normalize.AgentAIVisibility, normalize.DefaultAgent(normalize.KindAIReadiness, "ai_readiness"))
	assert.Equal(t, "custom", normalize.DefaultAgent(normalize.KindGeneric, "custom"))
}

func TestOrderKeys(t *testing.T) {
	got := normalize.OrderKeys([]string{"zeta", "ai_readiness", "serp", "alpha", "technical", "competitive", "performance"})
	assert.Equal(t, []string{"technical", "performance", "serp", "competitive", "ai_readiness", "alpha", "zeta"}, got)
}

func TestCatalog_OneUnitOneAgentPerKey(t *testing.T) {
	for _, key := range normalize.CatalogKeys() {
		def, ok := normalize.Lookup(key)
		require.True(t, ok, key)
		assert.NotEmpty(t, def.Unit, key)
		assert.NotEmpty(t, def.Agent, key)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		kind  normalize.WorkerKind
		name  string
		key   string
		scale float64
		ok    bool
	}{
		{normalize.KindPerformance, "lcp_ms", normalize.VitalsLCP, 0.001, true},
		{normalize.KindSERP, "avg_position", normalize.SerpAvgPosition, 1, true},
		{normalize.KindSERP, "avgPosition", normalize.SerpAvgPosition, 1, true},
		{normalize.KindTechnical, "missingH1", normalize.TechMissingH1, 1, true},
		{normalize.KindTechnical, normalize.TechMissingH1, normalize.TechMissingH1, 1, true},
		{normalize.KindPerformance, "score", normalize.VitalsPerformanceScore, 1, true},
		{normalize.KindAIReadiness, "score", normalize.AIReadinessScore, 1, true},
		{normalize.KindTechnical, "score", "score", 1, false},
		{normalize.KindGeneric, "mystery_metric", "mystery_metric", 1, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.name, func(t *testing.T) {
			key, scale, ok := normalize.Translate(tt.kind, tt.name)
			assert.Equal(t, tt.key, key)
			assert.InDelta(t, tt.scale, scale, 1e-12)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

// ---- technical ------------------------------------------------------------

func TestTechnical_LegacyNames(t *testing.T) {
	ext := normalize.Extract(normalize.KindTechnical, raw(t, map[string]any{
		"missingTitle": 0,
		"missingH1":    1,
	}))
	assert.Equal(t, 0.0, ext.Metrics[normalize.TechMissingTitle])
	assert.Equal(t, 1.0, ext.Metrics[normalize.TechMissingH1])
	assert.Empty(t, ext.Unmapped)
}

func TestTechnical_IssuesFillMissingCounters(t *testing.T) {
	ext := normalize.Extract(normalize.KindTechnical, raw(t, map[string]any{
		"pagesCrawled": 12,
		"brokenLinks":  5,
		"issues": []map[string]any{
			{"type": "missing_h1", "url": "https://example.com/about"},
			{"type": "missingH1", "url": "https://example.com/team"},
			{"type": "broken_links", "url": "https://example.com/old"},
		},
	}))
	assert.Equal(t, 12.0, ext.Metrics[normalize.TechPagesCrawled])
	assert.Equal(t, 2.0, ext.Metrics[normalize.TechMissingH1], "counted from issues")
	assert.Equal(t, 5.0, ext.Metrics[normalize.TechBrokenLinks], "reported counter wins over issue count")
	require.Len(t, ext.Issues, 3)
	assert.Equal(t, normalize.TechMissingH1, ext.Issues[0].Type)
	assert.Equal(t, "https://example.com/about", ext.Issues[0].URL)
}

func TestTechnical_UnknownKeysPassThrough(t *testing.T) {
	ext := normalize.Extract(normalize.KindTechnical, raw(t, map[string]any{
		"missingH1":    1,
		"orphan_pages": 4,
		"crawl_depth":  "3",
		"non_numeric":  "n/a",
		"kpis":         map[string]any{"redirect_chains": 2, "brokenLinks": 9},
	}))
	assert.Equal(t, 4.0, ext.Metrics["orphan_pages"])
	assert.Equal(t, 3.0, ext.Metrics["crawl_depth"], "numeric strings are parsed")
	assert.Equal(t, 2.0, ext.Metrics["redirect_chains"])
	assert.Equal(t, 9.0, ext.Metrics[normalize.TechBrokenLinks], "kpis feed the generic fallback")
	assert.NotContains(t, ext.Metrics, "non_numeric")
	assert.Equal(t, []string{"crawl_depth", "orphan_pages", "redirect_chains"}, ext.Unmapped)
}

func TestTechnical_Summary(t *testing.T) {
	ext := normalize.Extract(normalize.KindTechnical, raw(t, map[string]any{
		"pagesCrawled": 40, "missingTitle": 0, "missingH1": 1,
	}))
	assert.Equal(t, "40 pages crawled: 0 missing titles, 1 missing H1",
		normalize.For(normalize.KindTechnical).Summarize(ext))
}

// ---- performance ----------------------------------------------------------

func TestPerformance_Ratings(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		key  string
		want model.Rating
	}{
		{"lcp good at bound", map[string]any{"lcp": 2.5}, normalize.VitalsLCP, model.RatingGood},
		{"lcp needs improvement", map[string]any{"lcp": 3.1}, normalize.VitalsLCP, model.RatingNeedsImprovement},
		{"lcp at poor bound", map[string]any{"lcp": 4.0}, normalize.VitalsLCP, model.RatingNeedsImprovement},
		{"lcp poor", map[string]any{"lcp": 4.01}, normalize.VitalsLCP, model.RatingPoor},
		{"lcp_ms converted", map[string]any{"lcp_ms": 4500}, normalize.VitalsLCP, model.RatingPoor},
		{"cls good", map[string]any{"cls": 0.1}, normalize.VitalsCLS, model.RatingGood},
		{"cls poor", map[string]any{"cls": 0.3}, normalize.VitalsCLS, model.RatingPoor},
		{"inp good", map[string]any{"inp": 200}, normalize.VitalsINP, model.RatingGood},
		{"inp needs improvement", map[string]any{"inp_ms": 350}, normalize.VitalsINP, model.RatingNeedsImprovement},
		{"inp poor", map[string]any{"inp": 501}, normalize.VitalsINP, model.RatingPoor},
		{"nested vitals", map[string]any{"vitals": map[string]any{"lcp": 1.2}}, normalize.VitalsLCP, model.RatingGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := normalize.Extract(normalize.KindPerformance, raw(t, tt.data))
			assert.Equal(t, tt.want, ext.Ratings[tt.key])
		})
	}
}

func TestPerformance_LCPMillisecondsToSeconds(t *testing.T) {
	ext := normalize.Extract(normalize.KindPerformance, raw(t, map[string]any{"lcp_ms": 3100, "score": 71}))
	assert.InDelta(t, 3.1, ext.Metrics[normalize.VitalsLCP], 1e-9)
	assert.Equal(t, 71.0, ext.Metrics[normalize.VitalsPerformanceScore])
}

func TestPerformance_Summary(t *testing.T) {
	ext := normalize.Extract(normalize.KindPerformance, raw(t, map[string]any{"lcp": 3.1}))
	assert.Equal(t, "LCP 3.1s (needs_improvement), CLS n/a, INP n/a",
		normalize.For(normalize.KindPerformance).Summarize(ext))
}

func TestPerformance_NonFiniteValuesDropped(t *testing.T) {
	ext := normalize.Extract(normalize.KindPerformance, json.RawMessage(`{"lcp":"Infinity","cls":"NaN","inp":"-Inf","ttfb":" 300 "}`))
	assert.False(t, ext.Has(normalize.VitalsLCP))
	assert.False(t, ext.Has(normalize.VitalsCLS))
	assert.False(t, ext.Has(normalize.VitalsINP))
	assert.Empty(t, ext.Ratings)
	assert.Equal(t, 300.0, ext.Metrics["ttfb"])

	_, err := json.Marshal(ext.Metrics)
	require.NoError(t, err)
}

// ---- serp -----------------------------------------------------------------

func TestSERP_PositionBuckets(t *testing.T) {
	ext := normalize.Extract(normalize.KindSERP, raw(t, map[string]any{
		"keywords": []any{
			map[string]any{"keyword": "a", "position": 2},
			map[string]any{"keyword": "b", "rank": "7"},
			map[string]any{"keyword": "c", "position": 15},
			map[string]any{"keyword": "d", "position": 100},
			map[string]any{"keyword": "e", "position": 101},
			map[string]any{"keyword": "f", "position": nil},
			map[string]any{"keyword": "g", "position": 0},
			12,
			"not a number",
		},
	}))
	m := ext.Metrics
	assert.Equal(t, 9.0, m[normalize.SerpKeywordCount])
	assert.Equal(t, 1.0, m[normalize.SerpInTop3])
	assert.Equal(t, 2.0, m[normalize.SerpInTop10])
	assert.Equal(t, 2.0, m[normalize.SerpStrikingDistance], "15 and 12")
	assert.Equal(t, 4.0, m[normalize.SerpNotRanking], "101, null, 0 and unresolvable")
	// Ranked: 2, 7, 15, 100, 12.
	assert.InDelta(t, (2.0+7+15+100+12)/5, m[normalize.SerpAvgPosition], 1e-9)
}

func TestSERP_NoRankedEntriesOmitsAverage(t *testing.T) {
	ext := normalize.Extract(normalize.KindSERP, raw(t, map[string]any{
		"rankings":    []any{map[string]any{"position": 150}, map[string]any{}},
		"avgPosition": 42,
	}))
	assert.Equal(t, 2.0, ext.Metrics[normalize.SerpKeywordCount])
	assert.Equal(t, 2.0, ext.Metrics[normalize.SerpNotRanking])
	assert.False(t, ext.Has(normalize.SerpAvgPosition), "reported average is discarded when nothing ranks")
	assert.Equal(t, "0/2 keywords in top 10, none ranking", normalize.For(normalize.KindSERP).Summarize(ext))
}

func TestSERP_ScalarOnlyPayload(t *testing.T) {
	ext := normalize.Extract(normalize.KindSERP, raw(t, map[string]any{
		"keywordCount": 10, "inTop10": 4, "avg_position": 8.5,
	}))
	assert.Equal(t, 10.0, ext.Metrics[normalize.SerpKeywordCount])
	assert.Equal(t, 4.0, ext.Metrics[normalize.SerpInTop10])
	assert.Equal(t, 8.5, ext.Metrics[normalize.SerpAvgPosition])
}

// ---- competitive and ai ---------------------------------------------------

func TestCompetitive_ListsAreCounted(t *testing.T) {
	ext := normalize.Extract(normalize.KindCompetitive, raw(t, map[string]any{
		"domainAuthority": 27,
		"competitors":     []any{"a.com", map[string]any{"domain": "b.com"}},
		"keywordGap":      []any{"x", "y", "z"},
		"contentGap":      0,
	}))
	assert.Equal(t, 27.0, ext.Metrics[normalize.AuthorityDomainAuthority])
	assert.Equal(t, 2.0, ext.Metrics[normalize.CompetitiveCompetitorCount])
	assert.Equal(t, 3.0, ext.Metrics[normalize.CompetitiveKeywordGap])
	assert.Equal(t, 0.0, ext.Metrics[normalize.CompetitiveContentGap])

	p, ok := normalize.Decode(normalize.KindCompetitive, raw(t, map[string]any{
		"competitors": []any{"a.com", map[string]any{"domain": "b.com"}},
	})).(normalize.CompetitivePayload)
	require.True(t, ok)
	assert.Equal(t, []string{"a.com", "b.com"}, p.Competitors)
}

func TestAIReadiness_BooleansAndScore(t *testing.T) {
	ext := normalize.Extract(normalize.KindAIReadiness, raw(t, map[string]any{
		"score":     64,
		"llmsTxt":   false,
		"citations": []any{"u1", "u2"},
	}))
	assert.Equal(t, 64.0, ext.Metrics[normalize.AIReadinessScore])
	assert.Equal(t, 0.0, ext.Metrics[normalize.AILLMsTxtPresent])
	assert.Equal(t, 2.0, ext.Metrics[normalize.AICitationCount])
	assert.Equal(t, "AI readiness 64/100, llms.txt missing", normalize.For(normalize.KindAIReadiness).Summarize(ext))
}

// ---- generic and unstructured ---------------------------------------------

func TestGeneric_ReadsKPIsAndTopLevel(t *testing.T) {
	ext := normalize.Extract(normalize.KindGeneric, raw(t, map[string]any{
		"kpis":     map[string]any{"pages": 3, "healthy": true, "lag": "1.5"},
		"duration": 120,
		"name":     "worker-x",
	}))
	assert.Equal(t, 3.0, ext.Metrics[normalize.TechPagesCrawled], "legacy names are translated")
	assert.Equal(t, 1.0, ext.Metrics["healthy"])
	assert.Equal(t, 1.5, ext.Metrics["lag"])
	assert.Equal(t, 120.0, ext.Metrics["duration"])
	assert.True(t, ext.Unstructured)
	assert.Equal(t, []string{"duration", "healthy", "lag"}, ext.Unmapped)
}

func TestDecode_NeverFails(t *testing.T) {
	for _, body := range []string{"", "null", "[1,2,3]", "<html>oops</html>", "{broken", `"text"`} {
		for _, kind := range []normalize.WorkerKind{normalize.KindTechnical, normalize.KindSERP, normalize.KindGeneric} {
			p := normalize.Decode(kind, json.RawMessage(body))
			_, ok := p.(normalize.UnstructuredPayload)
			assert.True(t, ok, "kind=%s body=%q", kind, body)
			ext := normalize.For(kind).Extract(p)
			assert.NotNil(t, ext.Metrics)
			assert.True(t, ext.Unstructured)
		}
	}
}

func TestExtractUnstructured(t *testing.T) {
	ext := normalize.ExtractUnstructured([]byte(`{"missingH1": 2, "kpis": {"brokenLinks": 1}}`))
	assert.Equal(t, 2.0, ext.Metrics[normalize.TechMissingH1])
	assert.Equal(t, 1.0, ext.Metrics[normalize.TechBrokenLinks])
	assert.True(t, ext.Unstructured)
}

func TestMetrics_AnnotatesCatalog(t *testing.T) {
	ext := normalize.Extract(normalize.KindPerformance, raw(t, map[string]any{"lcp": 2.0, "ttfb": 300}))
	metrics := normalize.Metrics(ext, normalize.AgentPerformance)
	require.Len(t, metrics, 2)
	assert.Equal(t, model.Metric{Key: "ttfb", Value: 300, Agent: normalize.AgentPerformance}, metrics[0])
	assert.Equal(t, model.Metric{Key: normalize.VitalsLCP, Value: 2.0, Unit: normalize.UnitSeconds, Agent: normalize.AgentPerformance}, metrics[1])
}
