package revision

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/storyline/model"
)

// MergeInput describes an incremental rebuild: chapters listed in Changed
// come with freshly processed chunks and chapter records, all others are
// carried over from the previous version by value. The previous version is
// never mutated.
type MergeInput struct {
	Prev          *model.Version
	Novel         *model.Novel // current chapter order
	Changed       map[string]bool
	FreshChunks   map[string][]*model.Chunk   // keyed by chapter key
	FreshChapters map[string]*model.Chapter   // keyed by chapter key
}

// Merge assembles the full ordered chunk and chapter sequence for a new
// version from carried-over and freshly processed chapters, reassigning
// contiguous chunk ordinals. Plot structure is not merged here; the caller
// recomputes it over the merged chunk sequence.
func Merge(in MergeInput) ([]*model.Chunk, []*model.Chapter, error) {
	if in.Prev == nil || in.Novel == nil {
		return nil, nil, fmt.Errorf("%w: previous version and novel are required for a merge", model.ErrInvalidInput)
	}

	var chunks []*model.Chunk
	var chapters []*model.Chapter
	now := time.Now()

	for chapterIndex, boundary := range in.Novel.Chapters {
		var sourceChunks []*model.Chunk
		var sourceChapter *model.Chapter

		if in.Changed[boundary.Key] {
			sourceChunks = in.FreshChunks[boundary.Key]
			sourceChapter = in.FreshChapters[boundary.Key]
			if sourceChapter == nil {
				return nil, nil, fmt.Errorf("%w: changed chapter %q has no fresh data", model.ErrInvalidInput, boundary.Key)
			}
		} else {
			sourceChunks = in.Prev.ChapterChunks(boundary.Key)
			sourceChapter = in.Prev.Chapter(boundary.Key)
			if sourceChapter == nil {
				return nil, nil, fmt.Errorf("%w: chapter %q marked unchanged but absent from the previous version", model.ErrInvalidInput, boundary.Key)
			}
		}

		start := len(chunks)
		for _, source := range sourceChunks {
			chunk := copyChunk(source)
			chunk.Index = len(chunks)
			chunk.ChapterIndex = chapterIndex
			chunk.ChapterKey = boundary.Key
			chunk.NovelID = in.Novel.ID
			chunk.CreatedAt = now
			chunks = append(chunks, chunk)
		}

		chapter := copyChapter(sourceChapter)
		chapter.Index = chapterIndex
		chapter.Key = boundary.Key
		chapter.Title = boundary.Title
		chapter.NovelID = in.Novel.ID
		chapter.StartChunk = start
		chapter.EndChunk = len(chunks) - 1
		chapter.CreatedAt = now
		chapters = append(chapters, chapter)
	}

	return chunks, chapters, nil
}

// copyChunk clones a chunk by value with a fresh row id so the previous
// version's records stay untouched
func copyChunk(source *model.Chunk) *model.Chunk {
	chunk := *source
	chunk.ID = uuid.New()
	chunk.VersionID = ""
	chunk.Entities = append([]string{}, source.Entities...)
	chunk.Embedding = append([]float32{}, source.Embedding...)
	if source.Metadata != nil {
		metadata := model.Metadata{}
		for key, value := range source.Metadata {
			metadata[key] = value
		}
		chunk.Metadata = metadata
	}
	return &chunk
}

func copyChapter(source *model.Chapter) *model.Chapter {
	chapter := *source
	chapter.ID = uuid.New()
	chapter.VersionID = ""
	chapter.Embedding = append([]float32{}, source.Embedding...)
	return &chapter
}
