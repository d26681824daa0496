package chunking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func testDoc() domain.Document {
	return domain.Document{SourceID: "notes.txt", ContentType: domain.ContentTypeText}
}

func reconstruct(segments []domain.Segment, overlap int) string {
	var b strings.Builder
	for i, seg := range segments {
		runes := []rune(seg.Text)
		if i > 0 {
			runes = runes[overlap:]
		}
		b.WriteString(string(runes))
	}
	return b.String()
}

func TestSplitProducesExpectedSpans(t *testing.T) {
	text := strings.Repeat("abcdefghij", 240)
	segments, err := NewSplitter().Split(testDoc(), text, 1000, 200)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	want := []domain.CharSpan{{Start: 0, End: 1000}, {Start: 800, End: 1800}, {Start: 1600, End: 2400}}
	if len(segments) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segments))
	}
	for i, seg := range segments {
		if seg.SequenceIndex != i {
			t.Fatalf("segment %d has sequence index %d", i, seg.SequenceIndex)
		}
		if seg.Span != want[i] {
			t.Fatalf("segment %d span = %+v, want %+v", i, seg.Span, want[i])
		}
		if seg.SourceID != "notes.txt" {
			t.Fatalf("unexpected source id %q", seg.SourceID)
		}
	}
}

func TestSplitReconstructsOriginalText(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("x", 1000),
		strings.Repeat("y", 1001),
		strings.Repeat("привет мир ", 137),
	}
	configs := [][2]int{{10, 0}, {10, 3}, {7, 6}, {1000, 200}, {1, 0}}

	for _, text := range texts {
		for _, cfg := range configs {
			segments, err := NewSplitter().Split(testDoc(), text, cfg[0], cfg[1])
			if err != nil {
				t.Fatalf("Split(%d,%d) error = %v", cfg[0], cfg[1], err)
			}
			if got := reconstruct(segments, cfg[1]); got != text {
				t.Fatalf("Split(%d,%d) lost text: got %d runes, want %d", cfg[0], cfg[1], len([]rune(got)), len([]rune(text)))
			}
			for i := 0; i+1 < len(segments); i++ {
				if segments[i].Span.End-cfg[1] != segments[i+1].Span.Start {
					t.Fatalf("Split(%d,%d) spans %d/%d not overlapping by %d", cfg[0], cfg[1], i, i+1, cfg[1])
				}
			}
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox. ", 300)
	first, err := NewSplitter().Split(testDoc(), text, 128, 32)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	second, err := NewSplitter().Split(testDoc(), text, 128, 32)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical segments across calls")
	}
}

func TestSplitRejectsInvalidConfig(t *testing.T) {
	cases := [][2]int{{0, 0}, {10, 10}, {10, 11}, {10, -1}}
	for _, c := range cases {
		_, err := NewSplitter().Split(testDoc(), "text", c[0], c[1])
		if !domain.IsKind(err, domain.ErrInvalidConfig) {
			t.Fatalf("Split(%d,%d) expected ErrInvalidConfig, got %v", c[0], c[1], err)
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	segments, err := NewSplitter().Split(testDoc(), "", 10, 2)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(segments))
	}
}

func TestSplitNormalizesLineEndings(t *testing.T) {
	segments, err := NewSplitter().Split(testDoc(), "a\r\nb\rc", 100, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "a\nb\nc" {
		t.Fatalf("unexpected normalized segments: %+v", segments)
	}
}

func TestSegmentIDStablePerSourceAndSequence(t *testing.T) {
	if SegmentID("a.txt", 0) != SegmentID("a.txt", 0) {
		t.Fatalf("expected stable id")
	}
	if SegmentID("a.txt", 0) == SegmentID("a.txt", 1) || SegmentID("a.txt", 0) == SegmentID("b.txt", 0) {
		t.Fatalf("expected distinct ids")
	}
}
