package segmenter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

// Segmenter splits raw novel text into overlapping content-aware chunks with
// semantic-type labels. Chunk boundaries are aligned to sentence breaks and
// never cross chapter boundaries. Segmentation is fully deterministic.
type Segmenter struct {
	config *model.PipelineConfig
}

// New creates a new Segmenter with the given pipeline configuration
func New(config *model.PipelineConfig) *Segmenter {
	return &Segmenter{config: config}
}

var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]+["'”’]?|[^.!?\n]+\n|[^.!?\n]+$`)

// SplitSentences splits text into trimmed sentences, treating paragraph
// breaks as sentence boundaries
func SplitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			sentences = append(sentences, m)
		}
	}
	return sentences
}

// Segment splits the novel into classified chunks with contiguous ordinal
// positions starting at 0. Texts below the minimum length threshold are
// returned as a single Exposition chunk (simplified mode).
func (s *Segmenter) Segment(novel *model.Novel) ([]*model.Chunk, error) {
	if err := novel.Validate(); err != nil {
		return nil, helper.NewError("validate novel", err)
	}

	if len(strings.TrimSpace(novel.Text)) < s.config.MinTextLength {
		return s.segmentSimplified(novel), nil
	}

	var chunks []*model.Chunk
	index := 0
	for chapterIdx, boundary := range novel.Chapters {
		chapterChunks, err := s.segmentChapter(novel.ChapterText(chapterIdx), boundary, chapterIdx)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("segment chapter %q", boundary.Key), err)
		}
		for _, chunk := range chapterChunks {
			chunk.NovelID = novel.ID
			chunk.Index = index
			index++
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 {
		return nil, helper.NewError("segment novel", fmt.Errorf("%w: no chunks produced", model.ErrInvalidInput))
	}

	return chunks, nil
}

// segmentSimplified returns the whole text as one Exposition chunk,
// bypassing classification
func (s *Segmenter) segmentSimplified(novel *model.Novel) []*model.Chunk {
	return []*model.Chunk{{
		NovelID:      novel.ID,
		Index:        0,
		ChapterIndex: 0,
		ChapterKey:   novel.Chapters[0].Key,
		Content:      strings.TrimSpace(novel.Text),
		Type:         model.SemanticExposition,
		Metadata:     model.Metadata{"mode": "simplified"},
	}}
}

// segmentChapter splits one chapter into overlapping chunks aligned to
// sentence boundaries, with the chunk size adapted to the chapter's texture
func (s *Segmenter) segmentChapter(text string, boundary model.ChapterBoundary, chapterIdx int) ([]*model.Chunk, error) {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("%w: chapter contains no sentences", model.ErrInvalidInput)
	}

	targetSize := s.adaptiveChunkSize(text, sentences)

	var chunks []*model.Chunk
	start := 0
	for start < len(sentences) {
		end := start
		size := 0
		for end < len(sentences) && (size == 0 || size+len(sentences[end])+1 <= targetSize) {
			size += len(sentences[end]) + 1
			end++
		}

		content := strings.Join(sentences[start:end], " ")
		chunks = append(chunks, &model.Chunk{
			ChapterIndex: chapterIdx,
			ChapterKey:   boundary.Key,
			Content:      content,
			Type:         Classify(content),
			Metadata:     model.Metadata{},
		})

		if end >= len(sentences) {
			break
		}

		// Step back over whole sentences to build the configured overlap
		overlap := 0
		next := end
		for next > start+1 && overlap < s.config.ChunkOverlap {
			next--
			overlap += len(sentences[next]) + 1
		}
		start = next
	}

	return chunks, nil
}

// adaptiveChunkSize widens the target chunk size for dialogue-heavy text and
// narrows it for syntactically complex text before segmentation runs
func (s *Segmenter) adaptiveChunkSize(text string, sentences []string) int {
	size := s.config.ChunkSize

	if dialogueRatio(text) > 0.35 {
		size = size * 5 / 4
	}

	total := 0
	for _, sent := range sentences {
		total += len(sent)
	}
	avgSentenceLen := float64(total) / float64(len(sentences))
	if avgSentenceLen > 140 || commaDensity(text) > 0.025 {
		size = size * 3 / 4
	}

	return size
}
