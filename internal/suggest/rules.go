package suggest

import (
	"fmt"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/normalize"
)

// view is the read-only projection of one successful worker result that
// rules evaluate against.
type view struct {
	metrics map[string]float64
	ratings map[string]model.Rating
}

func (v view) value(key string) (float64, bool) {
	x, ok := v.metrics[key]
	return x, ok
}

// atLeast fires when key is present and >= min.
func (v view) atLeast(key string, min float64) bool {
	x, ok := v.value(key)
	return ok && x >= min
}

// below fires when key is present and < max.
func (v view) below(key string, max float64) bool {
	x, ok := v.value(key)
	return ok && x < max
}

// rating returns the rating for a vital, deriving it from the value when the
// worker result carries none.
func (v view) rating(key string, good, poor float64) (model.Rating, bool) {
	if r, ok := v.ratings[key]; ok {
		return r, true
	}
	x, ok := v.value(key)
	if !ok {
		return "", false
	}
	return normalize.Rate(x, good, poor), true
}

func (v view) poor(key string, good, poor float64) bool {
	r, ok := v.rating(key, good, poor)
	return ok && r == model.RatingPoor
}

// rule is one threshold check that yields a suggestion.
type rule struct {
	// kind is the worker kind whose results the rule reads.
	kind        normalize.WorkerKind
	// findingType is part of the fingerprint; rules that describe the same
	// problem from different workers share it so their findings merge.
	findingType string
	title       string
	severity    model.Severity
	category    model.Category
	// pageIssue is the issue type whose first affected page becomes the
	// target URL.
	pageIssue string
	// evidence lists the metric keys copied into the suggestion's evidence.
	evidence []string
	fires    func(v view) bool
	describe func(v view) string
	actions  []string
}

func count(v view, key string) int {
	x, _ := v.value(key)
	return int(x)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// rules is evaluated in order; each result only meets the rules of its kind.
var rules = []rule{
	{
		kind:        normalize.KindTechnical,
		findingType: "server_errors",
		title:       "Server Errors Detected",
		severity:    model.SeverityCritical,
		category:    model.CategoryTechnical,
		pageIssue:   normalize.TechServerErrors,
		evidence:    []string{normalize.TechServerErrors, normalize.TechPagesCrawled},
		fires:       func(v view) bool { return v.atLeast(normalize.TechServerErrors, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechServerErrors), "page returns", "pages return") + " a 5xx status to crawlers."
		},
		actions: []string{"Check server logs for the failing URLs", "Fix or redirect pages returning 5xx responses"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "missing_title",
		title:       "Missing Title Tags",
		severity:    model.SeverityHigh,
		category:    model.CategoryTechnical,
		pageIssue:   normalize.TechMissingTitle,
		evidence:    []string{normalize.TechMissingTitle, normalize.TechPagesCrawled},
		fires:       func(v view) bool { return v.atLeast(normalize.TechMissingTitle, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechMissingTitle), "page has", "pages have") + " no <title> element."
		},
		actions: []string{"Add a unique, descriptive <title> to each page", "Keep titles under 60 characters"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "broken_links",
		title:       "Broken Links Found",
		severity:    model.SeverityHigh,
		category:    model.CategoryTechnical,
		pageIssue:   normalize.TechBrokenLinks,
		evidence:    []string{normalize.TechBrokenLinks},
		fires:       func(v view) bool { return v.atLeast(normalize.TechBrokenLinks, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechBrokenLinks), "link points", "links point") + " to missing pages."
		},
		actions: []string{"Update or remove links to missing pages", "Add redirects for moved content"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "missing_h1",
		title:       "Missing H1 Tag",
		severity:    model.SeverityMedium,
		category:    model.CategoryTechnical,
		pageIssue:   normalize.TechMissingH1,
		evidence:    []string{normalize.TechMissingH1, normalize.TechPagesCrawled},
		fires:       func(v view) bool { return v.atLeast(normalize.TechMissingH1, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechMissingH1), "page has", "pages have") + " no H1 heading."
		},
		actions: []string{"Add one H1 heading that states the page topic"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "missing_meta_description",
		title:       "Missing Meta Descriptions",
		severity:    model.SeverityMedium,
		category:    model.CategoryContent,
		pageIssue:   normalize.TechMissingMetaDesc,
		evidence:    []string{normalize.TechMissingMetaDesc},
		fires:       func(v view) bool { return v.atLeast(normalize.TechMissingMetaDesc, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechMissingMetaDesc), "page has", "pages have") + " no meta description."
		},
		actions: []string{"Write a meta description of 120-160 characters for each page"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "duplicate_titles",
		title:       "Duplicate Title Tags",
		severity:    model.SeverityLow,
		category:    model.CategoryContent,
		pageIssue:   normalize.TechDuplicateTitles,
		evidence:    []string{normalize.TechDuplicateTitles},
		fires:       func(v view) bool { return v.atLeast(normalize.TechDuplicateTitles, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechDuplicateTitles), "page shares", "pages share") + " a title with another page."
		},
		actions: []string{"Make each title unique to its page"},
	},
	{
		kind:        normalize.KindTechnical,
		findingType: "structured_data",
		title:       "Add Structured Data",
		severity:    model.SeverityMedium,
		category:    model.CategoryTechnical,
		pageIssue:   normalize.TechMissingStructuredData,
		evidence:    []string{normalize.TechMissingStructuredData},
		fires:       func(v view) bool { return v.atLeast(normalize.TechMissingStructuredData, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.TechMissingStructuredData), "page lacks", "pages lack") + " schema.org markup."
		},
		actions: []string{"Add JSON-LD markup for the primary entity on each page", "Validate markup with a rich results test"},
	},
	{
		kind:        normalize.KindPerformance,
		findingType: "lcp_poor",
		title:       "Improve Largest Contentful Paint",
		severity:    model.SeverityCritical,
		category:    model.CategoryPerformance,
		evidence:    []string{normalize.VitalsLCP},
		fires: func(v view) bool {
			return v.poor(normalize.VitalsLCP, normalize.LCPGoodSeconds, normalize.LCPPoorSeconds)
		},
		describe: func(v view) string {
			x, _ := v.value(normalize.VitalsLCP)
			return fmt.Sprintf("LCP is %.1fs; it should be at most %.1fs.", x, normalize.LCPGoodSeconds)
		},
		actions: []string{"Optimize and preload the hero image", "Reduce server response time", "Remove render-blocking resources"},
	},
	{
		kind:        normalize.KindPerformance,
		findingType: "cls_poor",
		title:       "Reduce Layout Shift",
		severity:    model.SeverityHigh,
		category:    model.CategoryPerformance,
		evidence:    []string{normalize.VitalsCLS},
		fires:       func(v view) bool { return v.poor(normalize.VitalsCLS, normalize.CLSGood, normalize.CLSPoor) },
		describe: func(v view) string {
			x, _ := v.value(normalize.VitalsCLS)
			return fmt.Sprintf("CLS is %.2f; it should be at most %.2f.", x, normalize.CLSGood)
		},
		actions: []string{"Reserve space for images and embeds", "Avoid inserting content above existing content"},
	},
	{
		kind:        normalize.KindPerformance,
		findingType: "inp_poor",
		title:       "Improve Interaction Responsiveness",
		severity:    model.SeverityHigh,
		category:    model.CategoryPerformance,
		evidence:    []string{normalize.VitalsINP},
		fires: func(v view) bool {
			return v.poor(normalize.VitalsINP, normalize.INPGoodMillis, normalize.INPPoorMillis)
		},
		describe: func(v view) string {
			x, _ := v.value(normalize.VitalsINP)
			return fmt.Sprintf("INP is %.0fms; it should be at most %dms.", x, normalize.INPGoodMillis)
		},
		actions: []string{"Break up long JavaScript tasks", "Defer non-critical third-party scripts"},
	},
	{
		kind:        normalize.KindPerformance,
		findingType: "low_performance_score",
		title:       "Low Performance Score",
		severity:    model.SeverityHigh,
		category:    model.CategoryPerformance,
		evidence:    []string{normalize.VitalsPerformanceScore},
		fires:       func(v view) bool { return v.below(normalize.VitalsPerformanceScore, 50) },
		describe: func(v view) string {
			return fmt.Sprintf("Performance score is %d/100.", count(v, normalize.VitalsPerformanceScore))
		},
		actions: []string{"Address the largest opportunities in the performance audit"},
	},
	{
		kind:        normalize.KindSERP,
		findingType: "quick_win_keywords",
		title:       "Quick-Win Keywords in Positions 11-20",
		severity:    model.SeverityMedium,
		category:    model.CategorySERP,
		evidence:    []string{normalize.SerpStrikingDistance, normalize.SerpKeywordCount},
		fires:       func(v view) bool { return v.atLeast(normalize.SerpStrikingDistance, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.SerpStrikingDistance), "keyword ranks", "keywords rank") + " just outside the first page."
		},
		actions: []string{"Strengthen on-page content for these keywords", "Add internal links to the ranking pages"},
	},
	{
		kind:        normalize.KindSERP,
		findingType: "no_top10",
		title:       "No Keywords Ranking in Top 10",
		severity:    model.SeverityHigh,
		category:    model.CategorySERP,
		evidence:    []string{normalize.SerpKeywordCount, normalize.SerpInTop10, normalize.SerpNotRanking},
		fires: func(v view) bool {
			top10, ok := v.value(normalize.SerpInTop10)
			return ok && top10 == 0 && v.atLeast(normalize.SerpKeywordCount, 1)
		},
		describe: func(v view) string {
			return fmt.Sprintf("None of the %d tracked keywords rank on the first page.", count(v, normalize.SerpKeywordCount))
		},
		actions: []string{"Review keyword targeting against page content", "Build topical depth around priority keywords"},
	},
	{
		kind:        normalize.KindCompetitive,
		findingType: "low_domain_authority",
		title:       "Build Domain Authority",
		severity:    model.SeverityMedium,
		category:    model.CategoryAuthority,
		evidence:    []string{normalize.AuthorityDomainAuthority, normalize.AuthorityReferringDomains},
		fires:       func(v view) bool { return v.below(normalize.AuthorityDomainAuthority, 30) },
		describe: func(v view) string {
			return fmt.Sprintf("Domain authority is %d; competitors above 30 will outrank similar content.", count(v, normalize.AuthorityDomainAuthority))
		},
		actions: []string{"Earn links from relevant industry sites", "Publish linkable research or tools"},
	},
	{
		kind:        normalize.KindCompetitive,
		findingType: "keyword_gap",
		title:       "Close Competitor Keyword Gaps",
		severity:    model.SeverityMedium,
		category:    model.CategoryCompetitive,
		evidence:    []string{normalize.CompetitiveKeywordGap, normalize.CompetitiveCompetitorCount},
		fires:       func(v view) bool { return v.atLeast(normalize.CompetitiveKeywordGap, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.CompetitiveKeywordGap), "keyword ranks", "keywords rank") + " for competitors but not for this site."
		},
		actions: []string{"Prioritize gap keywords by volume and intent", "Create or expand pages targeting them"},
	},
	{
		kind:        normalize.KindCompetitive,
		findingType: "content_gap",
		title:       "Cover Competitor Content Topics",
		severity:    model.SeverityLow,
		category:    model.CategoryContent,
		evidence:    []string{normalize.CompetitiveContentGap},
		fires:       func(v view) bool { return v.atLeast(normalize.CompetitiveContentGap, 1) },
		describe: func(v view) string {
			return plural(count(v, normalize.CompetitiveContentGap), "topic is", "topics are") + " covered by competitors only."
		},
		actions: []string{"Plan content for uncovered topics"},
	},
	{
		kind:        normalize.KindAIReadiness,
		findingType: "ai_readiness",
		title:       "Improve AI Search Readiness",
		severity:    model.SeverityHigh,
		category:    model.CategoryAIVisibility,
		evidence:    []string{normalize.AIReadinessScore, normalize.AICitationCount},
		fires:       func(v view) bool { return v.below(normalize.AIReadinessScore, 50) },
		describe: func(v view) string {
			return fmt.Sprintf("AI readiness score is %d/100.", count(v, normalize.AIReadinessScore))
		},
		actions: []string{"Answer key questions directly in page copy", "Expose content without client-side rendering"},
	},
	{
		kind:        normalize.KindAIReadiness,
		findingType: "structured_data",
		title:       "Add Structured Data",
		severity:    model.SeverityMedium,
		category:    model.CategoryTechnical,
		evidence:    []string{normalize.AIStructuredDataCoverage},
		fires:       func(v view) bool { return v.below(normalize.AIStructuredDataCoverage, 50) },
		describe: func(v view) string {
			return fmt.Sprintf("Only %d%% of pages carry structured data.", count(v, normalize.AIStructuredDataCoverage))
		},
		actions: []string{"Add JSON-LD markup for the primary entity on each page", "Validate markup with a rich results test"},
	},
	{
		kind:        normalize.KindAIReadiness,
		findingType: "llms_txt",
		title:       "Publish an llms.txt File",
		severity:    model.SeverityLow,
		category:    model.CategoryAIVisibility,
		evidence:    []string{normalize.AILLMsTxtPresent},
		fires: func(v view) bool {
			x, ok := v.value(normalize.AILLMsTxtPresent)
			return ok && x == 0
		},
		describe: func(view) string { return "No /llms.txt file was found." },
		actions:  []string{"Publish /llms.txt listing the site's key pages"},
	},
}
