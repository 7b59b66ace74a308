package embedding

import "strings"

// Kind selects the embedding strategy for an input
type Kind string

const (
	KindChunk   Kind = "chunk"
	KindChapter Kind = "chapter"
	KindPlot    Kind = "plot"
)

// Input carries everything a strategy may use to compose the model input
type Input struct {
	Text       string
	Title      string
	Summary    string
	Before     string // tail of the preceding chunk
	After      string // head of the following chunk
	Themes     []string
	Characters []string
}

// Strategy composes the text handed to the embedding model for one kind of
// input. All strategies yield vectors of the same dimensionality because they
// share the model; they differ only in how they build the input.
type Strategy interface {
	Kind() Kind
	Compose(in Input) string
}

// ContextWindowStrategy embeds a chunk together with a window of its
// neighbors, so the vector reflects local narrative context
type ContextWindowStrategy struct {
	// Window is the number of neighbor characters included on each side
	Window int
}

func (s ContextWindowStrategy) Kind() Kind { return KindChunk }

func (s ContextWindowStrategy) Compose(in Input) string {
	var sb strings.Builder
	if in.Before != "" {
		sb.WriteString(tail(in.Before, s.Window))
		sb.WriteString(" ")
	}
	sb.WriteString(in.Text)
	if in.After != "" {
		sb.WriteString(" ")
		sb.WriteString(head(in.After, s.Window))
	}
	return sb.String()
}

// StructureStrategy embeds a whole chapter, prefixed with its title and
// extractive summary so structural position is reflected in the vector
type StructureStrategy struct{}

func (StructureStrategy) Kind() Kind { return KindChapter }

func (StructureStrategy) Compose(in Input) string {
	var sb strings.Builder
	if in.Title != "" {
		sb.WriteString(in.Title)
		sb.WriteString(". ")
	}
	if in.Summary != "" {
		sb.WriteString(in.Summary)
		sb.WriteString(" ")
	}
	sb.WriteString(in.Text)
	return sb.String()
}

// ThemeStrategy embeds plot-point text augmented with the themes and
// characters active at that position
type ThemeStrategy struct{}

func (ThemeStrategy) Kind() Kind { return KindPlot }

func (ThemeStrategy) Compose(in Input) string {
	var sb strings.Builder
	sb.WriteString(in.Text)
	if len(in.Themes) > 0 {
		sb.WriteString(" Themes: ")
		sb.WriteString(strings.Join(in.Themes, ", "))
		sb.WriteString(".")
	}
	if len(in.Characters) > 0 {
		sb.WriteString(" Characters: ")
		sb.WriteString(strings.Join(in.Characters, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	// Align to a word boundary
	if idx := strings.IndexAny(cut, " \n"); idx >= 0 {
		cut = cut[idx+1:]
	}
	return cut
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if idx := strings.LastIndexAny(cut, " \n"); idx >= 0 {
		cut = cut[:idx]
	}
	return cut
}
