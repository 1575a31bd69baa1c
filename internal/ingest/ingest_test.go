package ingest

import (
	"strings"
	"testing"

	"github.com/folioenrich/folioenrich/internal/model"
)

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inline runs", "a  b\t\tc", "a b c"},
		{"blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"space around newline", "a \n b", "a\nb"},
		{"trim", "  a  ", "a"},
		{"nfkc ligature", "ﬁling fee", "filing fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSentenceIndexBasic(t *testing.T) {
	text := "The motion was denied. The court then adjourned."
	spans := SentenceIndex(text)
	if len(spans) != 2 {
		t.Fatalf("sentences = %d, want 2: %+v", len(spans), spans)
	}
	if got := text[spans[0].Start:spans[0].End]; got != "The motion was denied." {
		t.Errorf("first sentence = %q", got)
	}
	if got := text[spans[1].Start:spans[1].End]; got != "The court then adjourned." {
		t.Errorf("second sentence = %q", got)
	}
}

func TestSentenceIndexLegalAbbreviations(t *testing.T) {
	text := "See Smith v. Jones, 123 F.3d 456 (9th Cir. 1999). The holding controls."
	spans := SentenceIndex(text)
	if len(spans) != 2 {
		t.Fatalf("sentences = %d, want 2: %+v", len(spans), spans)
	}
	if !strings.Contains(text[spans[0].Start:spans[0].End], "Cir. 1999") {
		t.Errorf("citation split mid-sentence: %q", text[spans[0].Start:spans[0].End])
	}
}

func TestSentenceIndexInitials(t *testing.T) {
	text := "John Q. Public appeared. He testified."
	spans := SentenceIndex(text)
	if len(spans) != 2 {
		t.Fatalf("sentences = %d, want 2: %+v", len(spans), spans)
	}
}

func TestSentenceIndexTrailingFragment(t *testing.T) {
	text := "A full sentence. A trailing fragment without terminator"
	spans := SentenceIndex(text)
	if len(spans) != 2 {
		t.Fatalf("sentences = %d, want 2: %+v", len(spans), spans)
	}
	if got := text[spans[1].Start:spans[1].End]; got != "A trailing fragment without terminator" {
		t.Errorf("fragment = %q", got)
	}
}

func TestIngestMarkdown(t *testing.T) {
	src := "# Heading\n\nSome *emphasis* and a [link](http://example.com) plus `code`."
	got, err := Ingest([]byte(src), model.FormatMarkdown)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	for _, banned := range []string{"#", "*", "](", "`"} {
		if strings.Contains(got, banned) {
			t.Errorf("markdown syntax %q survived: %q", banned, got)
		}
	}
	for _, kept := range []string{"Heading", "emphasis", "link", "code"} {
		if !strings.Contains(got, kept) {
			t.Errorf("content %q lost: %q", kept, got)
		}
	}
}

func TestIngestHTML(t *testing.T) {
	src := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>
<body><p>The contract was breached.</p><p>Damages followed.</p></body></html>`
	got, err := Ingest([]byte(src), model.FormatHTML)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if strings.Contains(got, "color:red") || strings.Contains(got, "var x") {
		t.Errorf("script/style content leaked: %q", got)
	}
	if !strings.Contains(got, "The contract was breached.") {
		t.Errorf("visible text lost: %q", got)
	}
}

func TestIngestUnsupportedFormat(t *testing.T) {
	if _, err := Ingest([]byte("x"), model.DocumentFormat("pdf")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNormalizeEmptyDocument(t *testing.T) {
	cfg := model.DefaultConfig()
	if _, err := Normalize([]byte("   \n\n  "), model.FormatPlainText, cfg); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestChunkSingleWhenSmall(t *testing.T) {
	doc := &model.Document{Text: "Short text."}
	chunks := Chunk(doc, 3000, 200)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != len(doc.Text) {
		t.Errorf("chunk span = [%d,%d)", chunks[0].Start, chunks[0].End)
	}
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("This sentence pads the document with some words. ")
	}
	text := NormalizeText(b.String())
	doc := &model.Document{Text: text, Sentences: SentenceIndex(text)}

	chunks := Chunk(doc, 1000, 100)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	if chunks[0].Start != 0 {
		t.Errorf("first chunk starts at %d", chunks[0].Start)
	}
	if last := chunks[len(chunks)-1]; last.End != len(text) {
		t.Errorf("last chunk ends at %d, want %d", last.End, len(text))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.Start >= prev.End {
			t.Errorf("gap between chunk %d and %d: %d >= %d", i-1, i, cur.Start, prev.End)
		}
		if cur.End-cur.Start > 1000 {
			t.Errorf("chunk %d exceeds max: %d", i, cur.End-cur.Start)
		}
		if cur.Text != text[cur.Start:cur.End] {
			t.Errorf("chunk %d text does not match its span", i)
		}
	}
}
