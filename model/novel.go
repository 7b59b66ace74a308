package model

import (
	"fmt"
	"os"
	"strings"
)

// Novel is the input to the processing pipeline: the full text plus the
// ordered chapter boundaries supplied by the caller.
type Novel struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Chapters []ChapterBoundary `json:"chapters"`
}

// ChapterBoundary marks one chapter inside the novel text. Key is the stable
// chapter identifier used to match chapters across revisions; Start and End
// are byte offsets into the novel text (End exclusive).
type ChapterBoundary struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Validate checks the novel for malformed input: empty id or text, missing or
// non-contiguous chapter boundaries, duplicate chapter keys.
func (n *Novel) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: novel id is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(n.Text) == "" {
		return fmt.Errorf("%w: novel text is empty", ErrInvalidInput)
	}
	if len(n.Chapters) == 0 {
		return fmt.Errorf("%w: no chapter boundaries", ErrInvalidInput)
	}

	seen := make(map[string]bool, len(n.Chapters))
	prevEnd := 0
	for i, ch := range n.Chapters {
		if ch.Key == "" {
			return fmt.Errorf("%w: chapter %d has no key", ErrInvalidInput, i)
		}
		if seen[ch.Key] {
			return fmt.Errorf("%w: duplicate chapter key %q", ErrInvalidInput, ch.Key)
		}
		seen[ch.Key] = true
		if ch.Start < prevEnd || ch.End <= ch.Start || ch.End > len(n.Text) {
			return fmt.Errorf("%w: chapter %q has invalid boundaries [%d, %d)", ErrInvalidInput, ch.Key, ch.Start, ch.End)
		}
		prevEnd = ch.End
	}

	return nil
}

// ChapterText returns the text of the chapter at the given index
func (n *Novel) ChapterText(index int) string {
	if index < 0 || index >= len(n.Chapters) {
		return ""
	}
	b := n.Chapters[index]
	return n.Text[b.Start:b.End]
}

// ChapterInput is one chapter handed to NewNovelFromChapters
type ChapterInput struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// NewNovelFromChapters concatenates chapter texts into a Novel with
// contiguous chapter boundaries. A separating newline is inserted between
// chapters that do not already end in one.
func NewNovelFromChapters(id string, chapters []ChapterInput) *Novel {
	var text strings.Builder
	boundaries := make([]ChapterBoundary, 0, len(chapters))
	for _, ch := range chapters {
		start := text.Len()
		text.WriteString(ch.Text)
		if !strings.HasSuffix(ch.Text, "\n") {
			text.WriteString("\n")
		}
		boundaries = append(boundaries, ChapterBoundary{
			Key:   ch.Key,
			Title: ch.Title,
			Start: start,
			End:   text.Len(),
		})
	}

	return &Novel{ID: id, Text: text.String(), Chapters: boundaries}
}

// NewNovelFromFile reads a file and creates a single-chapter Novel from its
// content, using the novel id as the chapter key
func NewNovelFromFile(id string, filePath string) (*Novel, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return &Novel{
		ID:   id,
		Text: string(content),
		Chapters: []ChapterBoundary{
			{Key: id, Title: id, Start: 0, End: len(content)},
		},
	}, nil
}
