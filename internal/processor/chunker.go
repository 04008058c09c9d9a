package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"harvest/internal/config"
)

// ChunkConfig defines chunking parameters.
type ChunkConfig struct {
	// TargetSize is the ideal chunk size for sentence packing.
	TargetSize int
	// MaxSize is the hard ceiling; larger paragraphs split at sentences.
	MaxSize int
	// MinSize merges trailing fragments into their neighbor.
	MinSize int
	// Overlap is the character overlap carried between adjacent chunks.
	Overlap int
}

// DefaultChunkConfig returns sensible defaults for sermon-length text.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetSize: 750,
		MaxSize:    1000,
		MinSize:    200,
		Overlap:    100,
	}
}

func chunkConfigFrom(cfg config.Processing) ChunkConfig {
	chunkCfg := DefaultChunkConfig()
	if cfg.ChunkTargetSize > 0 {
		chunkCfg.TargetSize = cfg.ChunkTargetSize
	}
	if cfg.ChunkMaxSize > 0 {
		chunkCfg.MaxSize = cfg.ChunkMaxSize
	}
	if cfg.ChunkMinSize > 0 {
		chunkCfg.MinSize = cfg.ChunkMinSize
	}
	if cfg.ChunkOverlap >= 0 {
		chunkCfg.Overlap = cfg.ChunkOverlap
	}
	return chunkCfg
}

// Chunk splits normalized text into bounded spans, preferring paragraph
// boundaries and falling back to sentence boundaries for oversized
// paragraphs. Text at or under the maximum size stays whole.
func Chunk(text string, cfg ChunkConfig) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= cfg.MaxSize {
		return []string{text}
	}

	chunks := chunkByParagraphs(text, cfg)
	chunks = mergeSmallTail(chunks, cfg)
	return applyOverlap(chunks, cfg.Overlap)
}

func chunkByParagraphs(content string, cfg ChunkConfig) []string {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > cfg.MaxSize && current.Len() > 0 {
			flush()
		}

		if len(para) > cfg.MaxSize {
			flush()
			chunks = append(chunks, chunkBySentences(para, cfg)...)
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

func chunkBySentences(text string, cfg ChunkConfig) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if current.Len()+len(sentence) > cfg.TargetSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Likely an abbreviation like "Dr." when preceded by an
				// uppercase letter.
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func mergeSmallTail(chunks []string, cfg ChunkConfig) []string {
	if len(chunks) < 2 {
		return chunks
	}
	last := chunks[len(chunks)-1]
	if len(last) >= cfg.MinSize {
		return chunks
	}
	merged := chunks[len(chunks)-2] + "\n\n" + last
	return append(chunks[:len(chunks)-2], merged)
}

func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]string, len(chunks))
	copy(result, chunks)

	for i := 1; i < len(result); i++ {
		prev := chunks[i-1]
		if len(prev) <= overlap {
			continue
		}
		start := len(prev) - overlap
		// Byte slicing can land mid-rune in space-free scripts; back up to
		// the rune boundary so the carried text stays valid UTF-8.
		for start > 0 && !utf8.RuneStart(prev[start]) {
			start--
		}
		overlapText := prev[start:]
		if spaceIdx := strings.LastIndex(overlapText, " "); spaceIdx > 0 {
			overlapText = overlapText[spaceIdx+1:]
		}
		result[i] = overlapText + " " + result[i]
	}
	return result
}
