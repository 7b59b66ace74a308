package extract

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

// Tension is a weighted combination of four sub-scores, each normalized to
// [0,1] before combination. The weights are configuration, defaulting to
// 0.4 sentiment / 0.2 dialogue / 0.2 pacing / 0.2 conflict. The raw series
// is smoothed afterwards to remove single-chunk noise spikes.

var positiveWords = []string{
	"love", "joy", "happy", "laugh", "smile", "hope", "warm", "safe",
	"calm", "peace", "gentle", "bright", "delight", "relief", "kind",
	"beautiful", "wonderful", "glad", "comfort", "triumph",
}

var negativeWords = []string{
	"fear", "afraid", "terror", "dread", "hate", "anger", "rage", "fury",
	"pain", "hurt", "blood", "death", "dead", "dying", "scream", "cry",
	"dark", "cold", "alone", "loss", "grief", "despair", "panic", "horror",
	"threat", "danger", "wound", "broken", "betrayed", "desperate",
}

var conflictMarkers = []string{
	"but", "however", "refused", "denied", "argued", "fought", "fight",
	"against", "never", "wouldn't", "couldn't", "shouted", "demanded",
	"accused", "threatened", "warned", "confronted", "struggle", "clash",
	"defied", "betrayal", "enemy", "attack", "defend", "quarrel",
}

// LexiconSentimentFunc creates the default deterministic sentiment scorer.
// Returns valence in [-1, 1] from emotional word counts.
func LexiconSentimentFunc() SentimentFunc {
	pos := wordSet(positiveWords)
	neg := wordSet(negativeWords)
	return func(text string) (float64, error) {
		tokens := tokenizeLower(text)
		if len(tokens) == 0 {
			return 0, nil
		}
		var p, n int
		for _, token := range tokens {
			if pos[token] {
				p++
			}
			if neg[token] {
				n++
			}
		}
		if p+n == 0 {
			return 0, nil
		}
		return float64(p-n) / float64(p+n), nil
	}
}

// ModelSentimentFunc creates a sentiment scorer backed by a text
// classification model, mapping POSITIVE/NEGATIVE labels to valence
func ModelSentimentFunc() (SentimentFunc, error) {
	modelName := "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "sentiment-pipeline",
	}
	sentimentPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentiment pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentiment pipeline: %w", err)
	}

	return func(text string) (float64, error) {
		result, err := sentimentPipeline.RunPipeline([]string{text})
		if err != nil {
			return 0, fmt.Errorf("failed to run sentiment classification: %w", err)
		}
		if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
			return 0, nil
		}
		top := result.ClassificationOutputs[0][0]
		valence := float64(top.Score)
		if strings.EqualFold(top.Label, "NEGATIVE") {
			valence = -valence
		}
		return valence, nil
	}, nil
}

// chunkTension computes the raw (unsmoothed) tension score for one chunk
func (e *Extractor) chunkTension(chunk *model.Chunk) (float64, error) {
	valence, err := e.sentiment(chunk.Content)
	if err != nil {
		return 0, err
	}

	// Tension rises with emotional intensity regardless of sign, with
	// negative valence weighing heavier than positive
	sentimentIntensity := clamp01(intensity(valence))
	dialogueIntensity := clamp01(dialogueIntensity(chunk.Content))
	pacing := clamp01(pacingFactor(chunk.Content))
	conflict := clamp01(conflictFactor(chunk.Content))

	tension := e.config.SentimentWeight*sentimentIntensity +
		e.config.DialogueWeight*dialogueIntensity +
		e.config.PacingWeight*pacing +
		e.config.ConflictWeight*conflict

	return clamp01(tension), nil
}

func intensity(valence float64) float64 {
	if valence < 0 {
		return -valence
	}
	return valence * 0.5
}

// dialogueIntensity is the quoted-speech share boosted by exclamations and
// interruptions inside quotes
func dialogueIntensity(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	inQuote := false
	quoted, exclaims := 0, 0
	for _, r := range text {
		switch r {
		case '"', '“', '”':
			inQuote = !inQuote
		case '!', '—':
			if inQuote {
				exclaims++
			}
			if inQuote {
				quoted++
			}
		default:
			if inQuote {
				quoted++
			}
		}
	}
	share := float64(quoted) / float64(len(text))
	return share + float64(exclaims)*0.05
}

// pacingFactor is high for short, fast sentences and low for long ones
func pacingFactor(text string) float64 {
	sentences := splitSentencesSimple(text)
	if len(sentences) == 0 {
		return 0
	}
	avg := float64(len(text)) / float64(len(sentences))
	return (160.0 - avg) / 140.0
}

func conflictFactor(text string) float64 {
	tokens := tokenizeLower(text)
	if len(tokens) == 0 {
		return 0
	}
	markers := wordSet(conflictMarkers)
	hits := 0
	for _, token := range tokens {
		if markers[token] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens)) * 15.0
}

// SmoothTension applies a centered moving average of the given window to the
// raw series, then caps successive deltas at maxDelta so no single-chunk
// discontinuity survives. Result values are clamped to [0,1].
func SmoothTension(raw []float64, window int, maxDelta float64) []float64 {
	if len(raw) == 0 {
		return nil
	}

	smoothed := make([]float64, len(raw))
	half := window / 2
	for i := range raw {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= len(raw) {
			hi = len(raw) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += raw[j]
		}
		smoothed[i] = clamp01(sum / float64(hi-lo+1))
	}

	if maxDelta > 0 {
		for i := 1; i < len(smoothed); i++ {
			delta := smoothed[i] - smoothed[i-1]
			if delta > maxDelta {
				smoothed[i] = smoothed[i-1] + maxDelta
			} else if delta < -maxDelta {
				smoothed[i] = smoothed[i-1] - maxDelta
			}
		}
	}

	return smoothed
}

// CapTensionDeltas re-applies the successive-delta cap over an assembled
// chunk sequence. Chapters smoothed in isolation can leave a discontinuity at
// the seam to a carried neighbor; within each part the series already honors
// the cap, so re-capping only adjusts the seams and leaves an already
// compliant series untouched.
func CapTensionDeltas(chunks []*model.Chunk, maxDelta float64) {
	if maxDelta <= 0 {
		return
	}
	for i := 1; i < len(chunks); i++ {
		delta := chunks[i].Tension - chunks[i-1].Tension
		if delta > maxDelta {
			chunks[i].Tension = chunks[i-1].Tension + maxDelta
		} else if delta < -maxDelta {
			chunks[i].Tension = chunks[i-1].Tension - maxDelta
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func tokenizeLower(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
}
