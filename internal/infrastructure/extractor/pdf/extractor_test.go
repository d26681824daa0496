package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// buildPDF writes a minimal single-font PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled once the kids are known
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	var kids []string
	for _, text := range pages {
		pageNum := len(objects) + 1
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageNum+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func pdfDoc(content []byte) domain.Document {
	return domain.Document{SourceID: "report.pdf", ContentType: domain.ContentTypePDF, Content: content}
}

func TestExtractRejectsNonPDF(t *testing.T) {
	doc := domain.Document{SourceID: "fake.pdf", ContentType: domain.ContentTypePDF, Content: []byte("plain text, not a pdf")}
	_, err := NewExtractor(0).Extract(context.Background(), doc)
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExtractReturnsTextOfEveryPage(t *testing.T) {
	content := buildPDF("Quarterly revenue grew", "Churn stayed flat")

	text, err := NewExtractor(5).Extract(context.Background(), pdfDoc(content))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for _, want := range []string{"Quarterly revenue grew", "Churn stayed flat"} {
		if !strings.Contains(text, want) {
			t.Fatalf("extracted text %q does not contain %q", text, want)
		}
	}
}

func TestExtractEnforcesPageLimit(t *testing.T) {
	content := buildPDF("one", "two", "three")

	_, err := NewExtractor(2).Extract(context.Background(), pdfDoc(content))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for a 3 page pdf with limit 2, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "3 pages") {
		t.Fatalf("error should name the page count, got %v", err)
	}

	if _, err := NewExtractor(3).Extract(context.Background(), pdfDoc(content)); err != nil {
		t.Fatalf("a pdf at the limit must be accepted, got %v", err)
	}
}

func TestExtractRejectsPDFWithoutText(t *testing.T) {
	_, err := NewExtractor(0).Extract(context.Background(), pdfDoc(buildPDF("")))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for a text-less pdf, got %v", err)
	}
}
