package normalize

import (
	"encoding/json"
	"sort"

	"github.com/ashita-ai/kensa/internal/model"
)

// Extraction is the normalized view of one worker payload.
type Extraction struct {
	Metrics      map[string]float64
	Ratings      map[string]model.Rating
	Unmapped     []string
	Issues       []model.PageIssue
	Unstructured bool
}

// Has reports whether the extraction carries a value for key.
func (e Extraction) Has(key string) bool {
	_, ok := e.Metrics[key]
	return ok
}

// Value returns the value for key and whether it was present.
func (e Extraction) Value(key string) (float64, bool) {
	v, ok := e.Metrics[key]
	return v, ok
}

// MetricExtractor turns one decoded payload into canonical metrics.
type MetricExtractor interface {
	Kind() WorkerKind
	Extract(p Payload) Extraction
	Summarize(e Extraction) string
}

var extractors = map[WorkerKind]MetricExtractor{
	KindTechnical:   technicalExtractor{},
	KindPerformance: performanceExtractor{},
	KindSERP:        serpExtractor{},
	KindCompetitive: competitiveExtractor{},
	KindAIReadiness: aiReadinessExtractor{},
	KindGeneric:     genericExtractor{},
}

// For returns the extractor for kind. Unknown kinds get the generic extractor.
func For(kind WorkerKind) MetricExtractor {
	if e, ok := extractors[kind]; ok {
		return e
	}
	return genericExtractor{}
}

// Extract decodes data for kind and extracts its metrics.
func Extract(kind WorkerKind, data json.RawMessage) Extraction {
	return For(kind).Extract(Decode(kind, data))
}

// ExtractUnstructured runs the generic extractor over a raw body that did not
// match the worker envelope.
func ExtractUnstructured(raw []byte) Extraction {
	return genericExtractor{}.Extract(Unstructured(raw))
}

// builder accumulates translated metrics for one extraction.
type builder struct {
	kind     WorkerKind
	metrics  map[string]float64
	unmapped map[string]struct{}
}

func newBuilder(kind WorkerKind) *builder {
	return &builder{kind: kind, metrics: map[string]float64{}, unmapped: map[string]struct{}{}}
}

// addAll translates every field in m. Later calls overwrite earlier values
// for the same canonical key.
func (b *builder) addAll(m map[string]float64) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		key, scale, ok := Translate(b.kind, name)
		if !ok {
			b.unmapped[name] = struct{}{}
		}
		b.metrics[key] = m[name] * scale
	}
}

func (b *builder) set(key string, v float64) {
	b.metrics[key] = v
}

func (b *builder) build() Extraction {
	e := Extraction{Metrics: b.metrics, Ratings: map[string]model.Rating{}}
	for name := range b.unmapped {
		e.Unmapped = append(e.Unmapped, name)
	}
	sort.Strings(e.Unmapped)
	return e
}

// baseExtraction runs the generic fallback over kpis and then the top-level
// scalars, so bespoke top-level fields win over kpis on collision.
func baseExtraction(kind WorkerKind, f Fields) *builder {
	b := newBuilder(kind)
	b.addAll(f.KPIs)
	b.addAll(f.Scalars)
	return b
}

// fallback handles payloads that did not decode into the expected variant.
func fallback(p Payload) (Extraction, bool) {
	if u, ok := p.(UnstructuredPayload); ok {
		return genericExtractor{}.Extract(u), true
	}
	return Extraction{}, false
}
