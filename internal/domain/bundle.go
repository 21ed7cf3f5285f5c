package domain

// Passage is one cited excerpt accepted into the context bundle.
type Passage struct {
	DocID   string
	Source  Source
	Excerpt string
	// Label is the attribution rendered next to the passage, e.g. "[1]".
	Label string
}

// SourceRef is the citation record parallel to an accepted passage.
type SourceRef struct {
	Title  string
	Link   string
	Source Source
	Label  string
}

// ContextBundle is the bounded, attributed evidence context handed to
// generation. Immutable once built; Sources[i] cites Passages[i].
type ContextBundle struct {
	Passages  []Passage
	Sources   []SourceRef
	CharsUsed int
	Budget    int
}

// Empty reports whether no evidence was accepted into the bundle.
func (b ContextBundle) Empty() bool {
	return len(b.Passages) == 0
}
