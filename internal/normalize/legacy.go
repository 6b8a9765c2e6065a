package normalize

// mapping is one legacy-name translation. Scale converts the legacy unit to
// the canonical one (zero means 1).
type mapping struct {
	Key   string
	Scale float64
}

// legacyNames maps ad-hoc worker field names to canonical keys. Canonical
// keys also resolve to themselves through the catalog.
var legacyNames = map[string]mapping{
	// technical
	"pagesCrawled":             {Key: TechPagesCrawled},
	"pages_crawled":            {Key: TechPagesCrawled},
	"pageCount":                {Key: TechPagesCrawled},
	"pages":                    {Key: TechPagesCrawled},
	"missingTitle":             {Key: TechMissingTitle},
	"missingTitles":            {Key: TechMissingTitle},
	"missing_title":            {Key: TechMissingTitle},
	"missing_titles":           {Key: TechMissingTitle},
	"missingH1":                {Key: TechMissingH1},
	"missing_h1":               {Key: TechMissingH1},
	"missingMetaDescription":   {Key: TechMissingMetaDesc},
	"missing_meta_description": {Key: TechMissingMetaDesc},
	"missingMeta":              {Key: TechMissingMetaDesc},
	"brokenLinks":              {Key: TechBrokenLinks},
	"broken_links":             {Key: TechBrokenLinks},
	"serverErrors":             {Key: TechServerErrors},
	"server_errors":            {Key: TechServerErrors},
	"errors5xx":                {Key: TechServerErrors},
	"duplicateTitles":          {Key: TechDuplicateTitles},
	"duplicate_titles":         {Key: TechDuplicateTitles},
	"missingStructuredData":    {Key: TechMissingStructuredData},
	"missing_structured_data":  {Key: TechMissingStructuredData},
	"missing_schema":           {Key: TechMissingStructuredData},

	// performance
	"lcp":                       {Key: VitalsLCP},
	"lcp_s":                     {Key: VitalsLCP},
	"lcp_ms":                    {Key: VitalsLCP, Scale: 0.001},
	"lcpMs":                     {Key: VitalsLCP, Scale: 0.001},
	"largest_contentful_paint":  {Key: VitalsLCP},
	"cls":                       {Key: VitalsCLS},
	"cumulative_layout_shift":   {Key: VitalsCLS},
	"inp":                       {Key: VitalsINP},
	"inp_ms":                    {Key: VitalsINP},
	"inpMs":                     {Key: VitalsINP},
	"interaction_to_next_paint": {Key: VitalsINP},
	"performanceScore":          {Key: VitalsPerformanceScore},
	"performance_score":         {Key: VitalsPerformanceScore},

	// serp
	"keywordCount":      {Key: SerpKeywordCount},
	"keyword_count":     {Key: SerpKeywordCount},
	"totalKeywords":     {Key: SerpKeywordCount},
	"inTop3":            {Key: SerpInTop3},
	"in_top3":           {Key: SerpInTop3},
	"inTop10":           {Key: SerpInTop10},
	"in_top10":          {Key: SerpInTop10},
	"strikingDistance":  {Key: SerpStrikingDistance},
	"striking_distance": {Key: SerpStrikingDistance},
	"notRanking":        {Key: SerpNotRanking},
	"not_ranking":       {Key: SerpNotRanking},
	"avgPosition":       {Key: SerpAvgPosition},
	"avg_position":      {Key: SerpAvgPosition},
	"averagePosition":   {Key: SerpAvgPosition},

	// authority and competitive
	"domainAuthority":   {Key: AuthorityDomainAuthority},
	"domain_authority":  {Key: AuthorityDomainAuthority},
	"domainRating":      {Key: AuthorityDomainAuthority},
	"domain_rating":     {Key: AuthorityDomainAuthority},
	"backlinks":         {Key: AuthorityBacklinks},
	"totalBacklinks":    {Key: AuthorityBacklinks},
	"referringDomains":  {Key: AuthorityReferringDomains},
	"referring_domains": {Key: AuthorityReferringDomains},
	"competitorCount":   {Key: CompetitiveCompetitorCount},
	"competitor_count":  {Key: CompetitiveCompetitorCount},
	"competitors":       {Key: CompetitiveCompetitorCount},
	"keywordGap":        {Key: CompetitiveKeywordGap},
	"keyword_gap":       {Key: CompetitiveKeywordGap},
	"keywordGaps":       {Key: CompetitiveKeywordGap},
	"contentGap":        {Key: CompetitiveContentGap},
	"content_gap":       {Key: CompetitiveContentGap},
	"contentGaps":       {Key: CompetitiveContentGap},

	// ai readiness
	"readinessScore":           {Key: AIReadinessScore},
	"readiness_score":          {Key: AIReadinessScore},
	"aiReadinessScore":         {Key: AIReadinessScore},
	"structuredDataCoverage":   {Key: AIStructuredDataCoverage},
	"structured_data_coverage": {Key: AIStructuredDataCoverage},
	"schemaCoverage":           {Key: AIStructuredDataCoverage},
	"llmsTxt":                  {Key: AILLMsTxtPresent},
	"llms_txt":                 {Key: AILLMsTxtPresent},
	"llmsTxtPresent":           {Key: AILLMsTxtPresent},
	"hasLlmsTxt":               {Key: AILLMsTxtPresent},
	"citationCount":            {Key: AICitationCount},
	"citation_count":           {Key: AICitationCount},
	"citations":                {Key: AICitationCount},
}

// kindNames holds names whose meaning depends on the worker kind.
var kindNames = map[WorkerKind]map[string]mapping{
	KindPerformance: {
		"score": {Key: VitalsPerformanceScore},
	},
	KindAIReadiness: {
		"score": {Key: AIReadinessScore},
	},
	KindCompetitive: {
		"authority": {Key: AuthorityDomainAuthority},
	},
	KindSERP: {
		"total": {Key: SerpKeywordCount},
	},
}

// Translate maps a worker field name to its canonical key and the factor that
// converts the value into the canonical unit. ok is false for names that are
// neither canonical nor known legacy names.
func Translate(kind WorkerKind, name string) (key string, scale float64, ok bool) {
	if _, canonical := catalog[name]; canonical {
		return name, 1, true
	}
	if m, found := kindNames[kind][name]; found {
		return m.Key, scaleOf(m), true
	}
	if m, found := legacyNames[name]; found {
		return m.Key, scaleOf(m), true
	}
	return name, 1, false
}

func scaleOf(m mapping) float64 {
	if m.Scale == 0 {
		return 1
	}
	return m.Scale
}
