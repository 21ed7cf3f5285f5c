package domain

// Reason is the policy reason code attached to a relevance verdict.
type Reason string

const (
	// ReasonSufficient marks a sub-query answerable from the internal store.
	ReasonSufficient Reason = "sufficient"
	// ReasonLowScore marks a top fused score below the gate threshold.
	ReasonLowScore Reason = "low_score"
	// ReasonTooFew marks a result set smaller than the gate minimum.
	ReasonTooFew Reason = "too_few_results"
	// ReasonNoResults marks an empty internal result set.
	ReasonNoResults Reason = "no_results"
	// ReasonDegraded marks escalation forced by an unreachable internal store.
	ReasonDegraded Reason = "store_degraded"
	// ReasonTemporal marks escalation forced by a time-sensitive sub-query.
	ReasonTemporal Reason = "temporal"
)

// Verdict is the relevance gate's per-sub-query decision. Consumed only by
// the pipeline controller; not persisted.
type Verdict struct {
	SubQuery   SubQuery
	Sufficient bool
	Confidence float64
	Reason     Reason
}
