package domain

// CharSpan is a half-open [Start, End) range in characters of the
// normalized document text.
type CharSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s CharSpan) Len() int {
	return s.End - s.Start
}

type Segment struct {
	ID            string   `json:"id"`
	SourceID      string   `json:"source_id"`
	SequenceIndex int      `json:"sequence_index"`
	Text          string   `json:"text"`
	Span          CharSpan `json:"char_span"`
}

type Vector []float32

type IndexEntry struct {
	Vector  Vector
	Segment Segment
}

type ScoredSegment struct {
	Segment Segment `json:"segment"`
	Score   float64 `json:"score"`
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []ScoredSegment

func (r RetrievalResult) Segments() []Segment {
	out := make([]Segment, 0, len(r))
	for _, item := range r {
		out = append(out, item.Segment)
	}
	return out
}

// Less reports whether a ranks before b: higher score first, then lower
// sequence index, then lexicographic source id. The segment id makes the
// order total.
func Less(a, b ScoredSegment) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Segment.SequenceIndex != b.Segment.SequenceIndex {
		return a.Segment.SequenceIndex < b.Segment.SequenceIndex
	}
	if a.Segment.SourceID != b.Segment.SourceID {
		return a.Segment.SourceID < b.Segment.SourceID
	}
	return a.Segment.ID < b.Segment.ID
}

// Prompt is the two-part instruction handed to a generation provider.
type Prompt struct {
	System string
	User   string
}

type Answer struct {
	Query           string    `json:"query"`
	ContextSegments []Segment `json:"context_segments"`
	Text            string    `json:"text"`
}
