package model

// DocumentFormat identifies the source format handed to ingestion.
type DocumentFormat string

const (
	FormatPlainText DocumentFormat = "plain_text"
	FormatMarkdown  DocumentFormat = "markdown"
	FormatHTML      DocumentFormat = "html"
)

// Chunk is one window of the normalized text. Chunks are contiguous in
// document order and overlap their successor by OverlapWithNext characters.
type Chunk struct {
	Index           int    `json:"index"`
	Start           int    `json:"start"`
	End             int    `json:"end"`
	OverlapWithNext int    `json:"overlap_with_next"`
	Text            string `json:"-"`
}

// Document is the immutable normalized view of one input document shared
// read-only by all pipeline stages within a job.
type Document struct {
	Raw       []byte         `json:"-"`
	Format    DocumentFormat `json:"format"`
	Text      string         `json:"-"`
	Chunks    []Chunk        `json:"chunks"`
	Sentences []Span         `json:"sentences"`
}

// SentenceAt returns the sentence span containing offset, or the whole text
// when the sentence index has no entry for it.
func (d *Document) SentenceAt(offset int) Span {
	for _, s := range d.Sentences {
		if offset >= s.Start && offset < s.End {
			return s
		}
	}
	return Span{Start: 0, End: len(d.Text)}
}

// SentenceIndexAt returns the position of the sentence containing offset,
// or -1 when none does.
func (d *Document) SentenceIndexAt(offset int) int {
	for i, s := range d.Sentences {
		if offset >= s.Start && offset < s.End {
			return i
		}
	}
	return -1
}

// ContextWindow returns the text of the sentence containing offset plus
// before sentences on the left and after sentences on the right.
func (d *Document) ContextWindow(offset, before, after int) string {
	idx := d.SentenceIndexAt(offset)
	if idx < 0 {
		return d.Text
	}
	lo := idx - before
	if lo < 0 {
		lo = 0
	}
	hi := idx + after
	if hi >= len(d.Sentences) {
		hi = len(d.Sentences) - 1
	}
	return d.Text[d.Sentences[lo].Start:d.Sentences[hi].End]
}
