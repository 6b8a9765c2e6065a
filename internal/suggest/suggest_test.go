package suggest_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/integrity"
	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
	"github.com/ashita-ai/kensa/internal/suggest"
)

func testSite() model.Site {
	return model.Site{ID: uuid.New(), Domain: "example.com"}
}

func result(key string, metrics map[string]float64) model.WorkerCallResult {
	return model.WorkerCallResult{
		ID:        uuid.New(),
		WorkerKey: key,
		Status:    model.CallSuccess,
		Metrics:   metrics,
	}
}

func titles(s []model.Suggestion) []string {
	out := make([]string, len(s))
	for i, x := range s {
		out[i] = x.Title
	}
	return out
}

func TestGenerate_ScenarioA_MissingH1(t *testing.T) {
	site := testSite()
	runID := uuid.New()
	tech := result("technical", map[string]float64{
		normalize.TechPagesCrawled: 12,
		normalize.TechMissingH1:    3,
	})

	out := suggest.New(nil).Generate(runID, site, []model.WorkerCallResult{tech})

	require.Len(t, out.Suggestions, 1)
	s := out.Suggestions[0]
	assert.Equal(t, "Missing H1 Tag", s.Title)
	assert.Equal(t, model.SeverityMedium, s.Severity)
	assert.Equal(t, model.CategoryTechnical, s.Category)
	assert.Equal(t, "https://example.com/", s.TargetURL)
	assert.Equal(t, runID, s.RunID)
	assert.Equal(t, site.ID, s.SiteID)
	assert.Equal(t, []string{"technical"}, s.SourceWorkers)
	assert.Equal(t, "3 pages have no H1 heading.", s.Description)
	assert.Equal(t, integrity.Fingerprint("example.com", "Missing H1 Tag", "https://example.com/", "missing_h1"), s.Fingerprint)

	require.Len(t, out.Tickets, 1, "technical findings always become tickets")
	assert.Equal(t, s.ID, out.Tickets[0].SuggestionID)
	assert.Equal(t, model.PriorityMedium, out.Tickets[0].Priority)
	assert.Equal(t, model.OwnerDev, out.Tickets[0].Owner)
	assert.Equal(t, s.Fingerprint, out.Tickets[0].Fingerprint)
}

func TestGenerate_SkipsUnsuccessfulResults(t *testing.T) {
	failed := result("technical", map[string]float64{normalize.TechServerErrors: 4})
	failed.Status = model.CallFailed
	timedOut := result("performance", map[string]float64{normalize.VitalsLCP: 9})
	timedOut.Status = model.CallTimeout

	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{failed, timedOut})
	assert.Empty(t, out.Suggestions)
	assert.Empty(t, out.Tickets)
	assert.Empty(t, out.Insights)
}

func TestGenerate_AbsentMetricsNeverFire(t *testing.T) {
	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{
		result("serp", map[string]float64{normalize.SerpKeywordCount: 5}),
		result("ai_readiness", map[string]float64{}),
	})
	assert.Empty(t, out.Suggestions)
}

func TestGenerate_RulesFollowWorkerKind(t *testing.T) {
	metrics := map[string]float64{normalize.TechMissingH1: 2, normalize.VitalsLCP: 6}

	t.Run("technical rules only for technical workers", func(t *testing.T) {
		out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{result("technical", metrics)})
		assert.Equal(t, []string{"Missing H1 Tag"}, titles(out.Suggestions))
	})

	t.Run("unknown key is generic", func(t *testing.T) {
		out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{result("site_audit", metrics)})
		assert.Empty(t, out.Suggestions)
	})

	t.Run("configured kind wins over the key", func(t *testing.T) {
		g := suggest.New(map[string]normalize.WorkerKind{"site_audit": normalize.KindPerformance})
		out := g.Generate(uuid.New(), testSite(), []model.WorkerCallResult{result("site_audit", metrics)})
		assert.Equal(t, []string{"Improve Largest Contentful Paint"}, titles(out.Suggestions))
	})
}

func TestGenerate_TargetURLFromPageIssue(t *testing.T) {
	tech := result("technical", map[string]float64{normalize.TechMissingTitle: 1})
	tech.Issues = []model.PageIssue{
		{Type: normalize.TechMissingH1, URL: "https://example.com/other"},
		{Type: normalize.TechMissingTitle, URL: "https://example.com/pricing"},
	}
	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{tech})
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, "https://example.com/pricing", out.Suggestions[0].TargetURL)
}

func TestGenerate_MergesDuplicateFindingsAcrossWorkers(t *testing.T) {
	tech := result("technical", map[string]float64{normalize.TechMissingStructuredData: 4})
	ai := result("ai_readiness", map[string]float64{normalize.AIStructuredDataCoverage: 20})

	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{tech, ai})

	require.Len(t, out.Suggestions, 1)
	s := out.Suggestions[0]
	assert.Equal(t, "Add Structured Data", s.Title)
	assert.Equal(t, []string{"technical", "ai_readiness"}, s.SourceWorkers)
	assert.Contains(t, s.Evidence, "technical")
	assert.Contains(t, s.Evidence, "ai_readiness")
	assert.Equal(t, map[string]any{normalize.AIStructuredDataCoverage: 20.0}, s.Evidence["ai_readiness"])
}

func TestGenerate_SameWorkerTwiceListedOnce(t *testing.T) {
	a := result("technical", map[string]float64{normalize.TechBrokenLinks: 2})
	b := result("technical", map[string]float64{normalize.TechBrokenLinks: 5})

	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{a, b})

	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, []string{"technical"}, out.Suggestions[0].SourceWorkers)
	ev := out.Suggestions[0].Evidence["technical"].(map[string]any)
	assert.Equal(t, 5.0, ev[normalize.TechBrokenLinks], "later evidence overwrites per key")
}

func TestGenerate_FingerprintsUnique(t *testing.T) {
	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{
		result("technical", map[string]float64{
			normalize.TechServerErrors:          1,
			normalize.TechMissingTitle:          1,
			normalize.TechMissingH1:             1,
			normalize.TechMissingStructuredData: 1,
		}),
		result("ai_readiness", map[string]float64{
			normalize.AIReadinessScore:         10,
			normalize.AIStructuredDataCoverage: 0,
			normalize.AILLMsTxtPresent:         0,
		}),
	})

	seen := map[string]bool{}
	for _, s := range out.Suggestions {
		assert.False(t, seen[s.Fingerprint], "duplicate fingerprint for %q", s.Title)
		seen[s.Fingerprint] = true
	}
	assert.Len(t, out.Suggestions, 6)
}

func TestGenerate_SortedBySeverityStable(t *testing.T) {
	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{
		result("technical", map[string]float64{
			normalize.TechDuplicateTitles: 2,
			normalize.TechMissingH1:       1,
			normalize.TechMissingTitle:    1,
		}),
		result("performance", map[string]float64{
			normalize.VitalsLCP:              5.2,
			normalize.VitalsCLS:              0.4,
			normalize.VitalsPerformanceScore: 31,
		}),
	})

	assert.Equal(t, []string{
		"Improve Largest Contentful Paint",
		"Missing Title Tags",
		"Reduce Layout Shift",
		"Low Performance Score",
		"Missing H1 Tag",
		"Duplicate Title Tags",
	}, titles(out.Suggestions))

	for i := 1; i < len(out.Suggestions); i++ {
		assert.GreaterOrEqual(t, out.Suggestions[i-1].Severity.Rank(), out.Suggestions[i].Severity.Rank())
	}
}

func TestGenerate_PerformanceRatingsFromWorker(t *testing.T) {
	perf := result("performance", map[string]float64{normalize.VitalsINP: 150})
	perf.Ratings = map[string]model.Rating{normalize.VitalsINP: model.RatingPoor}

	out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{perf})
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, "Improve Interaction Responsiveness", out.Suggestions[0].Title)
	assert.Equal(t, "INP is 150ms; it should be at most 200ms.", out.Suggestions[0].Description)
	assert.Empty(t, out.Insights, "a poor rating is not a good vital")
}

func TestGenerate_SerpRules(t *testing.T) {
	t.Run("no keyword in top 10", func(t *testing.T) {
		out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{
			result("serp", map[string]float64{
				normalize.SerpKeywordCount:     4,
				normalize.SerpInTop10:          0,
				normalize.SerpStrikingDistance: 2,
			}),
		})
		assert.Equal(t, []string{"No Keywords Ranking in Top 10", "Quick-Win Keywords in Positions 11-20"}, titles(out.Suggestions))
		require.Len(t, out.Tickets, 1, "only the high severity serp finding becomes a ticket")
		assert.Equal(t, model.OwnerSEO, out.Tickets[0].Owner)
		assert.Equal(t, model.PriorityHigh, out.Tickets[0].Priority)
	})

	t.Run("no keywords tracked", func(t *testing.T) {
		out := suggest.New(nil).Generate(uuid.New(), testSite(), []model.WorkerCallResult{
			result("serp", map[string]float64{normalize.SerpKeywordCount: 0, normalize.SerpInTop10: 0}),
		})
		assert.Empty(t, out.Suggestions)
	})
}

func TestGenerate_Insights(t *testing.T) {
	runID := uuid.New()
	out := suggest.New(nil).Generate(runID, testSite(), []model.WorkerCallResult{
		result("technical", map[string]float64{
			normalize.TechPagesCrawled: 40,
			normalize.TechMissingTitle: 0,
			normalize.TechMissingH1:    0,
		}),
		result("performance", map[string]float64{normalize.VitalsLCP: 1.8, normalize.VitalsCLS: 0.3}),
		result("serp", map[string]float64{normalize.SerpInTop3: 1}),
		result("competitive", map[string]float64{normalize.AuthorityDomainAuthority: 62}),
		result("ai_readiness", map[string]float64{normalize.AIReadinessScore: 80}),
	})

	var msgs []string
	for _, in := range out.Insights {
		assert.Equal(t, runID, in.RunID)
		msgs = append(msgs, in.Message)
	}
	assert.Equal(t, []string{
		"All 40 crawled pages have a title and an H1 heading.",
		"LCP is good (1.8s).",
		"1 keyword ranks in the top 3.",
		"Domain authority is healthy (62).",
		"Site is well prepared for AI search (80/100).",
	}, msgs)
	assert.Equal(t, "performance", out.Insights[1].WorkerKey)
	assert.Equal(t, normalize.VitalsLCP, out.Insights[1].Metric)
}

func TestTicketRouting(t *testing.T) {
	tests := []struct {
		category model.Category
		severity model.Severity
		eligible bool
		owner    model.Owner
		priority model.Priority
	}{
		{model.CategoryTechnical, model.SeverityLow, true, model.OwnerDev, model.PriorityLow},
		{model.CategoryPerformance, model.SeverityMedium, true, model.OwnerDev, model.PriorityMedium},
		{model.CategoryContent, model.SeverityMedium, false, model.OwnerContent, model.PriorityMedium},
		{model.CategoryCompetitive, model.SeverityHigh, true, model.OwnerContent, model.PriorityHigh},
		{model.CategoryAuthority, model.SeverityMedium, false, model.OwnerSEO, model.PriorityMedium},
		{model.CategoryAIVisibility, model.SeverityCritical, true, model.OwnerSEO, model.PriorityUrgent},
		{model.CategorySERP, model.SeverityLow, false, model.OwnerSEO, model.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+string(tt.severity), func(t *testing.T) {
			s := model.Suggestion{Category: tt.category, Severity: tt.severity}
			assert.Equal(t, tt.eligible, suggest.TicketEligible(s))
			assert.Equal(t, tt.owner, suggest.OwnerFor(tt.category))
			assert.Equal(t, tt.priority, suggest.PriorityFor(tt.severity))
		})
	}
}

func TestTickets_PreservesOrder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := []model.Suggestion{
		{ID: uuid.New(), Title: "a", Severity: model.SeverityCritical, Category: model.CategoryPerformance},
		{ID: uuid.New(), Title: "b", Severity: model.SeverityLow, Category: model.CategoryContent},
		{ID: uuid.New(), Title: "c", Severity: model.SeverityMedium, Category: model.CategoryTechnical},
	}
	tickets := suggest.Tickets(s, now)
	require.Len(t, tickets, 2)
	assert.Equal(t, "a", tickets[0].Title)
	assert.Equal(t, "c", tickets[1].Title)
	assert.Equal(t, now, tickets[0].CreatedAt)
}
