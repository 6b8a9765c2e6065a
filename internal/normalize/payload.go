package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ashita-ai/kensa/internal/model"
)

// Payload is a decoded worker payload. The set of variants is closed.
type Payload interface {
	// Numeric returns the numeric scalars common to every variant.
	Numeric() Fields
	payload()
}

// Fields holds the numeric view of a payload object: top-level scalar fields
// and the optional "kpis" sub-object. Numbers, numeric strings and booleans
// (as 0/1) are kept; everything else is dropped.
type Fields struct {
	Scalars map[string]float64
	KPIs    map[string]float64
}

// TechnicalPayload is a crawl result: counters plus per-page issues.
type TechnicalPayload struct {
	Fields
	Issues []model.PageIssue
}

// PerformancePayload is a Core Web Vitals audit. Values nested under
// "vitals" or "metrics" are lifted into Scalars.
type PerformancePayload struct {
	Fields
}

// SerpEntry is one tracked keyword and its resolved ranking position.
type SerpEntry struct {
	Keyword  string
	Position float64
	Resolved bool
}

// SerpPayload is a keyword ranking snapshot.
type SerpPayload struct {
	Fields
	Entries    []SerpEntry
	HasEntries bool
}

// CompetitivePayload is a competitive intelligence result. List-valued
// fields (competitors, keyword gaps, content gaps) are counted into Scalars.
type CompetitivePayload struct {
	Fields
	Competitors []string
}

// AIReadinessPayload is an AI-search readiness audit.
type AIReadinessPayload struct {
	Fields
}

// UnstructuredPayload is the fallback for any response that does not decode
// into a kind-specific variant, including non-JSON bodies.
type UnstructuredPayload struct {
	Fields
	Raw json.RawMessage
}

func (p TechnicalPayload) Numeric() Fields    { return p.Fields.copy() }
func (p PerformancePayload) Numeric() Fields  { return p.Fields.copy() }
func (p SerpPayload) Numeric() Fields         { return p.Fields.copy() }
func (p CompetitivePayload) Numeric() Fields  { return p.Fields.copy() }
func (p AIReadinessPayload) Numeric() Fields  { return p.Fields.copy() }
func (p UnstructuredPayload) Numeric() Fields { return p.Fields.copy() }

func (TechnicalPayload) payload()    {}
func (PerformancePayload) payload()  {}
func (SerpPayload) payload()         {}
func (CompetitivePayload) payload()  {}
func (AIReadinessPayload) payload()  {}
func (UnstructuredPayload) payload() {}

func (f Fields) copy() Fields {
	return Fields{Scalars: cloneFloats(f.Scalars), KPIs: cloneFloats(f.KPIs)}
}

func cloneFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Decode parses a worker's data object into the variant for kind. Any input
// that is not a JSON object, and any input for KindGeneric, decodes as
// UnstructuredPayload. Decode never fails.
func Decode(kind WorkerKind, data json.RawMessage) Payload {
	obj, ok := decodeObject(data)
	if !ok {
		return Unstructured(data)
	}
	fields := fieldsOf(obj)
	switch kind {
	case KindTechnical:
		return TechnicalPayload{Fields: fields, Issues: decodeIssues(obj)}
	case KindPerformance:
		for _, nested := range []string{"vitals", "metrics"} {
			if sub, ok := obj[nested].(map[string]any); ok {
				for k, v := range scalarsOf(sub) {
					if _, exists := fields.Scalars[k]; !exists {
						fields.Scalars[k] = v
					}
				}
			}
		}
		return PerformancePayload{Fields: fields}
	case KindSERP:
		entries, has := decodeSerpEntries(obj)
		return SerpPayload{Fields: fields, Entries: entries, HasEntries: has}
	case KindCompetitive:
		return decodeCompetitive(obj, fields)
	case KindAIReadiness:
		if list, ok := obj["citations"].([]any); ok {
			fields.Scalars["citations"] = float64(len(list))
		}
		return AIReadinessPayload{Fields: fields}
	default:
		return UnstructuredPayload{Fields: fields, Raw: data}
	}
}

// Unstructured wraps any raw body as an UnstructuredPayload. If the body is a
// JSON object its numeric fields are still visible to the generic extractor.
func Unstructured(raw []byte) UnstructuredPayload {
	p := UnstructuredPayload{
		Fields: Fields{Scalars: map[string]float64{}, KPIs: map[string]float64{}},
		Raw:    json.RawMessage(bytes.Clone(raw)),
	}
	if obj, ok := decodeObject(raw); ok {
		p.Fields = fieldsOf(obj)
	}
	return p
}

func decodeObject(data []byte) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func fieldsOf(obj map[string]any) Fields {
	f := Fields{Scalars: scalarsOf(obj), KPIs: map[string]float64{}}
	if kpis, ok := obj["kpis"].(map[string]any); ok {
		f.KPIs = scalarsOf(kpis)
	}
	return f
}

func scalarsOf(obj map[string]any) map[string]float64 {
	out := make(map[string]float64, len(obj))
	for k, v := range obj {
		if n, ok := toNumber(v); ok {
			out[k] = n
		}
	}
	return out
}

// toNumber coerces a decoded JSON scalar to a finite float64. NaN and
// infinities, which ParseFloat accepts as strings, are dropped.
func toNumber(v any) (float64, bool) {
	n, ok := rawNumber(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func rawNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := x.Float64()
		return n, err == nil
	}
	return 0, false
}

func decodeIssues(obj map[string]any) []model.PageIssue {
	list, ok := obj["issues"].([]any)
	if !ok {
		return nil
	}
	var out []model.PageIssue
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		url, _ := m["url"].(string)
		if typ == "" {
			continue
		}
		if key, _, ok := Translate(KindTechnical, typ); ok {
			typ = key
		}
		out = append(out, model.PageIssue{Type: typ, URL: url})
	}
	return out
}

// serpListFields are the names under which workers report keyword lists.
var serpListFields = []string{"keywords", "rankings", "results", "positions"}

func decodeSerpEntries(obj map[string]any) ([]SerpEntry, bool) {
	for _, name := range serpListFields {
		list, ok := obj[name].([]any)
		if !ok {
			continue
		}
		entries := make([]SerpEntry, 0, len(list))
		for _, item := range list {
			e := SerpEntry{}
			if m, ok := item.(map[string]any); ok {
				e.Keyword, _ = m["keyword"].(string)
			}
			e.Position, e.Resolved = resolvePosition(item, 0)
			entries = append(entries, e)
		}
		return entries, true
	}
	return nil, false
}

// resolvePosition reads a ranking position from a number, a numeric string,
// or an object carrying "position" or "rank".
func resolvePosition(v any, depth int) (float64, bool) {
	if depth > 2 {
		return 0, false
	}
	switch x := v.(type) {
	case float64, string, json.Number:
		return toNumber(x)
	case map[string]any:
		for _, field := range []string{"position", "rank"} {
			if inner, ok := x[field]; ok && inner != nil {
				return resolvePosition(inner, depth+1)
			}
		}
	}
	return 0, false
}

func decodeCompetitive(obj map[string]any, fields Fields) CompetitivePayload {
	p := CompetitivePayload{Fields: fields}
	if list, ok := obj["competitors"].([]any); ok {
		fields.Scalars["competitors"] = float64(len(list))
		for _, item := range list {
			switch c := item.(type) {
			case string:
				p.Competitors = append(p.Competitors, c)
			case map[string]any:
				if d, ok := c["domain"].(string); ok {
					p.Competitors = append(p.Competitors, d)
				}
			}
		}
	}
	for _, name := range []string{"keywordGap", "keyword_gap", "keywordGaps", "contentGap", "content_gap", "contentGaps"} {
		if list, ok := obj[name].([]any); ok {
			fields.Scalars[name] = float64(len(list))
		}
	}
	return p
}
