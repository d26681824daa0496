package chunking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// segmentNamespace scopes deterministic segment ids.
var segmentNamespace = uuid.MustParse("6f1c2a52-5d0e-4b7c-9d7e-3f4c1b2a9e10")

type Splitter struct{}

func NewSplitter() *Splitter {
	return &Splitter{}
}

// Validate checks 0 <= overlap < chunkSize.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 || overlap >= chunkSize {
		return domain.WrapError(domain.ErrInvalidConfig, "chunking", fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap))
	}
	return nil
}

// Split walks the normalized text in windows of chunkSize characters,
// advancing by chunkSize-overlap. The last window may be shorter.
func (s *Splitter) Split(doc domain.Document, text string, chunkSize, overlap int) ([]domain.Segment, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	out := make([]domain.Segment, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		seq := len(out)
		out = append(out, domain.Segment{
			ID:            SegmentID(doc.SourceID, seq),
			SourceID:      doc.SourceID,
			SequenceIndex: seq,
			Text:          string(runes[start:end]),
			Span:          domain.CharSpan{Start: start, End: end},
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

// Normalize unifies line endings and replaces invalid UTF-8 so that
// character spans are stable across platforms.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// SegmentID derives the id of the seq-th segment of a source.
func SegmentID(sourceID string, seq int) string {
	return uuid.NewSHA1(segmentNamespace, []byte(sourceID+"\x00"+strconv.Itoa(seq))).String()
}
