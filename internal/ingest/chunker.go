package ingest

import (
	"fmt"

	"github.com/folioenrich/folioenrich/internal/model"
)

// Normalize builds the immutable Document from raw bytes: ingestion,
// canonical text, sentence index and overlapping chunks.
func Normalize(source []byte, format model.DocumentFormat, cfg model.Config) (*model.Document, error) {
	if cfg.MaxUploadBytes > 0 && int64(len(source)) > cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: document of %d bytes exceeds limit %d", model.ErrInput, len(source), cfg.MaxUploadBytes)
	}

	raw, err := Ingest(source, format)
	if err != nil {
		return nil, err
	}

	text := NormalizeText(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: document is empty after normalization", model.ErrInput)
	}

	doc := &model.Document{
		Raw:       source,
		Format:    format,
		Text:      text,
		Sentences: SentenceIndex(text),
	}
	doc.Chunks = Chunk(doc, cfg.MaxChunkChars, cfg.ChunkOverlapChars)
	return doc, nil
}

// Chunk splits the document into windows of at most maxChars characters,
// aligned to sentence boundaries where possible, each overlapping its
// successor by roughly overlap characters.
func Chunk(doc *model.Document, maxChars, overlap int) []model.Chunk {
	text := doc.Text
	if maxChars <= 0 {
		maxChars = 3000
	}
	if overlap < 0 {
		overlap = 0
	}

	if len(text) <= maxChars {
		return []model.Chunk{{Index: 0, Start: 0, End: len(text), Text: text}}
	}

	var chunks []model.Chunk
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			// Pull the cut back to the last sentence boundary in range.
			cut := start
			for _, s := range doc.Sentences {
				if s.End <= end && s.End > cut {
					cut = s.End
				}
				if s.Start >= end {
					break
				}
			}
			if cut > start {
				end = cut
			}
		}

		chunks = append(chunks, model.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		chunks[len(chunks)-1].OverlapWithNext = end - next
		start = next
	}
	return chunks
}
