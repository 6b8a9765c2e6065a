package normalize

import (
	"sort"

	"github.com/ashita-ai/kensa/internal/model"
)

// Canonical metric keys.
const (
	TechPagesCrawled          = "tech.pages_crawled"
	TechMissingTitle          = "tech.missing_title"
	TechMissingH1             = "tech.missing_h1"
	TechMissingMetaDesc       = "tech.missing_meta_description"
	TechBrokenLinks           = "tech.broken_links"
	TechServerErrors          = "tech.server_errors"
	TechDuplicateTitles       = "tech.duplicate_titles"
	TechMissingStructuredData = "tech.missing_structured_data"

	VitalsLCP              = "vitals.lcp"
	VitalsCLS              = "vitals.cls"
	VitalsINP              = "vitals.inp"
	VitalsPerformanceScore = "vitals.performance_score"

	SerpKeywordCount     = "serp.keyword_count"
	SerpInTop3           = "serp.in_top3"
	SerpInTop10          = "serp.in_top10"
	SerpStrikingDistance = "serp.striking_distance"
	SerpNotRanking       = "serp.not_ranking"
	SerpAvgPosition      = "serp.avg_position"

	AuthorityDomainAuthority  = "authority.domain_authority"
	AuthorityBacklinks        = "authority.backlinks"
	AuthorityReferringDomains = "authority.referring_domains"

	CompetitiveCompetitorCount = "competitive.competitor_count"
	CompetitiveKeywordGap      = "competitive.keyword_gap"
	CompetitiveContentGap      = "competitive.content_gap"

	AIReadinessScore         = "ai.readiness_score"
	AIStructuredDataCoverage = "ai.structured_data_coverage"
	AILLMsTxtPresent         = "ai.llms_txt_present"
	AICitationCount          = "ai.citation_count"
)

// Units.
const (
	UnitCount    = "count"
	UnitSeconds  = "s"
	UnitMillis   = "ms"
	UnitScore    = "score"
	UnitPoints   = "points"
	UnitPosition = "position"
	UnitPercent  = "percent"
	UnitBool     = "bool"
)

// Definition is the catalog entry for one canonical key.
type Definition struct {
	Unit  string
	Agent string
}

var catalog = map[string]Definition{
	TechPagesCrawled:          {UnitCount, AgentTechnical},
	TechMissingTitle:          {UnitCount, AgentTechnical},
	TechMissingH1:             {UnitCount, AgentTechnical},
	TechMissingMetaDesc:       {UnitCount, AgentTechnical},
	TechBrokenLinks:           {UnitCount, AgentTechnical},
	TechServerErrors:          {UnitCount, AgentTechnical},
	TechDuplicateTitles:       {UnitCount, AgentTechnical},
	TechMissingStructuredData: {UnitCount, AgentTechnical},

	VitalsLCP:              {UnitSeconds, AgentPerformance},
	VitalsCLS:              {UnitScore, AgentPerformance},
	VitalsINP:              {UnitMillis, AgentPerformance},
	VitalsPerformanceScore: {UnitPoints, AgentPerformance},

	SerpKeywordCount:     {UnitCount, AgentSearch},
	SerpInTop3:           {UnitCount, AgentSearch},
	SerpInTop10:          {UnitCount, AgentSearch},
	SerpStrikingDistance: {UnitCount, AgentSearch},
	SerpNotRanking:       {UnitCount, AgentSearch},
	SerpAvgPosition:      {UnitPosition, AgentSearch},

	AuthorityDomainAuthority:  {UnitPoints, AgentSearch},
	AuthorityBacklinks:        {UnitCount, AgentSearch},
	AuthorityReferringDomains: {UnitCount, AgentSearch},

	CompetitiveCompetitorCount: {UnitCount, AgentSearch},
	CompetitiveKeywordGap:      {UnitCount, AgentSearch},
	CompetitiveContentGap:      {UnitCount, AgentSearch},

	AIReadinessScore:         {UnitPoints, AgentAIVisibility},
	AIStructuredDataCoverage: {UnitPercent, AgentAIVisibility},
	AILLMsTxtPresent:         {UnitBool, AgentAIVisibility},
	AICitationCount:          {UnitCount, AgentAIVisibility},
}

// Lookup returns the catalog definition for a canonical key.
func Lookup(key string) (Definition, bool) {
	d, ok := catalog[key]
	return d, ok
}

// CatalogKeys returns every canonical key, sorted.
func CatalogKeys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metrics expands an extraction into catalog-annotated metrics, sorted by key.
// Pass-through keys carry no unit and are attributed to fallbackAgent.
func Metrics(ext Extraction, fallbackAgent string) []model.Metric {
	out := make([]model.Metric, 0, len(ext.Metrics))
	for k, v := range ext.Metrics {
		m := model.Metric{Key: k, Value: v, Agent: fallbackAgent}
		if d, ok := catalog[k]; ok {
			m.Unit = d.Unit
			m.Agent = d.Agent
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
