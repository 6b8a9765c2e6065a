// Package normalize maps free-form worker payloads onto the canonical metric
// catalog.
//
// Each worker kind has a dedicated MetricExtractor. Payloads are first decoded
// into a kind-specific Payload variant; anything that does not fit decodes as
// UnstructuredPayload, so extraction never fails outright. Field names are
// translated through a static legacy table. Names the table does not know are
// passed through unchanged and reported in Extraction.Unmapped.
package normalize

import "sort"

// WorkerKind identifies which extraction rule applies to a worker's payload.
type WorkerKind string

const (
	KindTechnical   WorkerKind = "technical"
	KindPerformance WorkerKind = "performance"
	KindSERP        WorkerKind = "serp"
	KindCompetitive WorkerKind = "competitive"
	KindAIReadiness WorkerKind = "ai_readiness"
	KindGeneric     WorkerKind = "generic"
)

// Agent names. An agent owns one or more worker kinds for health tracking.
const (
	AgentTechnical    = "technical"
	AgentPerformance  = "performance"
	AgentSearch       = "search"
	AgentAIVisibility = "ai_visibility"
)

// knownKinds lists the built-in kinds in fixed processing order.
var knownKinds = []WorkerKind{KindTechnical, KindPerformance, KindSERP, KindCompetitive, KindAIReadiness}

// KindForKey resolves a worker key to its kind. Unknown keys are generic.
func KindForKey(key string) WorkerKind {
	for _, k := range knownKinds {
		if string(k) == key {
			return k
		}
	}
	return KindGeneric
}

// ParseKind validates an explicit kind name from configuration.
func ParseKind(s string) (WorkerKind, bool) {
	if s == string(KindGeneric) {
		return KindGeneric, true
	}
	for _, k := range knownKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// DefaultAgent returns the agent that owns workers of the given kind.
// Generic workers are their own agent, named after the worker key.
func DefaultAgent(kind WorkerKind, workerKey string) string {
	switch kind {
	case KindTechnical:
		return AgentTechnical
	case KindPerformance:
		return AgentPerformance
	case KindSERP, KindCompetitive:
		return AgentSearch
	case KindAIReadiness:
		return AgentAIVisibility
	default:
		return workerKey
	}
}

// OrderKeys sorts worker keys into the fixed processing order: built-in
// kinds first in their canonical order, then everything else alphabetically.
func OrderKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	rank := func(k string) int {
		for i, kind := range knownKinds {
			if string(kind) == k {
				return i
			}
		}
		return len(knownKinds)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
