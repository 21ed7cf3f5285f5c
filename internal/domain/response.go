package domain

// Response is the pipeline's answer to one request.
type Response struct {
	Answer              string
	SubQueries          []SubQuery
	Verdicts            []Verdict
	InternalResultCount int
	ExternalResultCount int
	CacheHit            bool
	// Degraded is set when the internal store was unreachable and the
	// request ran external-only.
	Degraded bool
	// NoEvidence is set when both internal and external retrieval yielded
	// nothing and the answer came from model knowledge alone.
	NoEvidence bool
}
