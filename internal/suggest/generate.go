// Package suggest turns normalized worker results into ranked, deduplicated
// suggestions, the tickets derived from them, and positive insights.
package suggest

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/integrity"
	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

// Output is everything one generation pass produces.
type Output struct {
	Suggestions []model.Suggestion
	Tickets     []model.Ticket
	Insights    []model.Insight
}

// Generator evaluates the rule set over a run's worker results.
type Generator struct {
	now   func() time.Time
	kinds map[string]normalize.WorkerKind
}

// New creates a Generator. kinds maps worker keys to their configured kind;
// keys missing from it resolve through normalize.KindForKey.
func New(kinds map[string]normalize.WorkerKind) *Generator {
	return &Generator{now: time.Now, kinds: kinds}
}

func (g *Generator) kindOf(workerKey string) normalize.WorkerKind {
	if k, ok := g.kinds[workerKey]; ok {
		return k
	}
	return normalize.KindForKey(workerKey)
}

// Generate evaluates every successful result against the rules of its
// worker kind, in the given order. Results
// must already be in processing order; that order breaks severity ties.
func (g *Generator) Generate(runID uuid.UUID, site model.Site, results []model.WorkerCallResult) Output {
	now := g.now().UTC()
	var (
		suggestions []model.Suggestion
		byPrint     = map[string]int{}
		insights    []model.Insight
	)

	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		v := view{metrics: r.Metrics, ratings: r.Ratings}
		kind := g.kindOf(r.WorkerKey)
		for _, rl := range rules {
			if rl.kind != kind || !rl.fires(v) {
				continue
			}
			target := targetURL(site, r.Issues, rl.pageIssue)
			fp := integrity.Fingerprint(site.Domain, rl.title, target, rl.findingType)
			ev := evidenceFor(v, rl.evidence)

			if idx, dup := byPrint[fp]; dup {
				merge(&suggestions[idx], r.WorkerKey, rl.severity, ev)
				continue
			}
			byPrint[fp] = len(suggestions)
			suggestions = append(suggestions, model.Suggestion{
				ID:            uuid.New(),
				RunID:         runID,
				SiteID:        site.ID,
				Type:          rl.findingType,
				Severity:      rl.severity,
				Category:      rl.category,
				Title:         rl.title,
				Description:   rl.describe(v),
				TargetURL:     target,
				Evidence:      map[string]any{r.WorkerKey: ev},
				Actions:       slices.Clone(rl.actions),
				SourceWorkers: []string{r.WorkerKey},
				Fingerprint:   fp,
				CreatedAt:     now,
			})
		}
		insights = append(insights, insightsFor(runID, r, now)...)
	}

	Rank(suggestions)
	return Output{
		Suggestions: suggestions,
		Tickets:     Tickets(suggestions, now),
		Insights:    insights,
	}
}

// Rank sorts suggestions by severity, most urgent first. The sort is stable
// so equal severities keep generation order.
func Rank(s []model.Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Severity.Rank() > s[j].Severity.Rank()
	})
}

// merge folds a duplicate finding into an existing suggestion: the worker is
// added to the sources once, the higher severity wins, and evidence is kept
// per worker.
func merge(s *model.Suggestion, workerKey string, severity model.Severity, ev map[string]any) {
	if !slices.Contains(s.SourceWorkers, workerKey) {
		s.SourceWorkers = append(s.SourceWorkers, workerKey)
	}
	if severity.Rank() > s.Severity.Rank() {
		s.Severity = severity
	}
	if existing, ok := s.Evidence[workerKey].(map[string]any); ok {
		for k, v := range ev {
			existing[k] = v
		}
		return
	}
	s.Evidence[workerKey] = ev
}

func targetURL(site model.Site, issues []model.PageIssue, issueType string) string {
	if issueType != "" {
		for _, is := range issues {
			if is.Type == issueType && is.URL != "" {
				return is.URL
			}
		}
	}
	return site.RootURL()
}

func evidenceFor(v view, keys []string) map[string]any {
	ev := make(map[string]any, len(keys))
	for _, k := range keys {
		if x, ok := v.value(k); ok {
			ev[k] = x
		}
		if r, ok := v.ratings[k]; ok {
			ev[k+".rating"] = string(r)
		}
	}
	return ev
}

// TicketEligible reports whether a suggestion becomes a ticket.
func TicketEligible(s model.Suggestion) bool {
	return s.Severity.AtLeast(model.SeverityHigh) ||
		s.Category == model.CategoryPerformance ||
		s.Category == model.CategoryTechnical
}

// OwnerFor maps a suggestion category to the owning team.
func OwnerFor(c model.Category) model.Owner {
	switch c {
	case model.CategoryPerformance, model.CategoryTechnical:
		return model.OwnerDev
	case model.CategoryContent, model.CategoryCompetitive:
		return model.OwnerContent
	default:
		return model.OwnerSEO
	}
}

// PriorityFor maps suggestion severity to ticket priority.
func PriorityFor(s model.Severity) model.Priority {
	switch s {
	case model.SeverityCritical:
		return model.PriorityUrgent
	case model.SeverityHigh:
		return model.PriorityHigh
	case model.SeverityMedium:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Tickets derives tickets from ranked suggestions, preserving their order.
func Tickets(suggestions []model.Suggestion, now time.Time) []model.Ticket {
	var out []model.Ticket
	for _, s := range suggestions {
		if !TicketEligible(s) {
			continue
		}
		out = append(out, model.Ticket{
			ID:           uuid.New(),
			RunID:        s.RunID,
			SuggestionID: s.ID,
			Title:        s.Title,
			Priority:     PriorityFor(s.Severity),
			Owner:        OwnerFor(s.Category),
			Fingerprint:  s.Fingerprint,
			CreatedAt:    now,
		})
	}
	return out
}

// insightsFor reports what a worker found to be in good shape.
func insightsFor(runID uuid.UUID, r model.WorkerCallResult, now time.Time) []model.Insight {
	v := view{metrics: r.Metrics, ratings: r.Ratings}
	var out []model.Insight
	add := func(metric, msg string) {
		out = append(out, model.Insight{
			ID:        uuid.New(),
			RunID:     runID,
			WorkerKey: r.WorkerKey,
			Metric:    metric,
			Message:   msg,
			CreatedAt: now,
		})
	}

	if pages, ok := v.value(normalize.TechPagesCrawled); ok && pages > 0 {
		title, okT := v.value(normalize.TechMissingTitle)
		h1, okH := v.value(normalize.TechMissingH1)
		if okT && okH && title == 0 && h1 == 0 {
			add(normalize.TechPagesCrawled, fmt.Sprintf("All %d crawled pages have a title and an H1 heading.", int(pages)))
		}
	}
	vitals := []struct {
		key, label  string
		good, poor  float64
		valueFormat string
	}{
		{normalize.VitalsLCP, "LCP", normalize.LCPGoodSeconds, normalize.LCPPoorSeconds, "%.1fs"},
		{normalize.VitalsCLS, "CLS", normalize.CLSGood, normalize.CLSPoor, "%.2f"},
		{normalize.VitalsINP, "INP", normalize.INPGoodMillis, normalize.INPPoorMillis, "%.0fms"},
	}
	for _, vt := range vitals {
		if rating, ok := v.rating(vt.key, vt.good, vt.poor); ok && rating == model.RatingGood {
			x, _ := v.value(vt.key)
			add(vt.key, fmt.Sprintf("%s is good ("+vt.valueFormat+").", vt.label, x))
		}
	}
	if v.atLeast(normalize.SerpInTop3, 1) {
		n := count(v, normalize.SerpInTop3)
		add(normalize.SerpInTop3, plural(n, "keyword ranks", "keywords rank")+" in the top 3.")
	}
	if v.atLeast(normalize.AuthorityDomainAuthority, 50) {
		add(normalize.AuthorityDomainAuthority, fmt.Sprintf("Domain authority is healthy (%d).", count(v, normalize.AuthorityDomainAuthority)))
	}
	if v.atLeast(normalize.AIReadinessScore, 75) {
		add(normalize.AIReadinessScore, fmt.Sprintf("Site is well prepared for AI search (%d/100).", count(v, normalize.AIReadinessScore)))
	}
	return out
}
