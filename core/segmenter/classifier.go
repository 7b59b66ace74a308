package segmenter

import (
	"strings"
	"unicode"

	"github.com/siherrmann/storyline/model"
)

// Classification is rule-based and deterministic: per-chunk features are
// combined into a score per semantic type and the highest score wins, with
// ties broken by the fixed priority Dialogue > Action > Internal >
// Transition > Exposition.

var temporalMarkers = []string{
	"later", "the next day", "the next morning", "the following",
	"meanwhile", "afterwards", "afterward", "that night", "that evening",
	"years later", "months later", "weeks later", "hours later",
	"the day after", "soon after", "by morning", "at dawn", "at dusk",
}

var actionVerbs = []string{
	"ran", "grabbed", "jumped", "threw", "struck", "slammed", "rushed",
	"lunged", "ducked", "sprinted", "crashed", "burst", "charged", "fled",
	"leapt", "swung", "kicked", "shoved", "dragged", "snatched", "fired",
	"dodged", "chased", "stumbled", "staggered", "seized",
}

var thoughtVerbs = []string{
	"thought", "wondered", "felt", "realized", "knew", "remembered",
	"imagined", "hoped", "feared", "believed", "understood", "wished",
	"regretted", "doubted", "suspected", "considered",
}

// Classify assigns one of the five semantic types to a chunk of text
func Classify(text string) model.SemanticType {
	scores := map[model.SemanticType]float64{
		model.SemanticDialogue:   dialogueScore(text),
		model.SemanticAction:     actionScore(text),
		model.SemanticInternal:   internalScore(text),
		model.SemanticTransition: transitionScore(text),
		model.SemanticExposition: expositionScore(text),
	}

	// SemanticTypes is ordered by tie-break priority, so a strict greater-than
	// comparison resolves ties deterministically
	best := model.SemanticTypes[0]
	for _, t := range model.SemanticTypes[1:] {
		if scores[t] > scores[best] {
			best = t
		}
	}
	return best
}

// dialogueRatio is the share of characters inside quotation marks
func dialogueRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	inQuote := false
	quoted := 0
	for _, r := range text {
		switch r {
		case '"', '“', '”':
			inQuote = !inQuote
		default:
			if inQuote {
				quoted++
			}
		}
	}
	return float64(quoted) / float64(len(text))
}

func commaDensity(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	return float64(strings.Count(text, ",")+strings.Count(text, ";")) / float64(len(text))
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// tokenize lowercases and splits text into words, stripping punctuation
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func lexiconDensity(text string, lexicon []string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	terms := make(map[string]bool, len(lexicon))
	for _, term := range lexicon {
		terms[term] = true
	}
	hits := 0
	for _, token := range tokens {
		if terms[token] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func dialogueScore(text string) float64 {
	score := dialogueRatio(text) * 2.0
	// Speech attribution strengthens the signal
	for _, tag := range []string{" said", " asked", " replied", " whispered", " shouted", " muttered"} {
		if strings.Contains(strings.ToLower(text), tag) {
			score += 0.1
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func actionScore(text string) float64 {
	score := lexiconDensity(text, actionVerbs) * 12.0

	// Short punchy sentences and exclamations are an action signal
	sentences := SplitSentences(text)
	if len(sentences) > 0 {
		avg := float64(len(text)) / float64(len(sentences))
		if avg < 60 {
			score += 0.2
		}
	}
	score += float64(strings.Count(text, "!")) * 0.05

	if score > 1 {
		score = 1
	}
	return score
}

func internalScore(text string) float64 {
	score := lexiconDensity(text, thoughtVerbs) * 10.0

	// First-person density suggests interiority
	firstPerson := []string{"i", "my", "me", "myself", "mine"}
	score += lexiconDensity(text, firstPerson) * 3.0

	// Interior monologue carries little quoted speech
	if dialogueRatio(text) > 0.2 {
		score *= 0.5
	}

	if score > 1 {
		score = 1
	}
	return score
}

func transitionScore(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, marker := range temporalMarkers {
		if strings.Contains(lower, marker) {
			score += 0.3
		}
	}
	// Transitions tend to be brief
	if wordCount(text) < 60 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func expositionScore(text string) float64 {
	// Exposition is the descriptive baseline: stative verbs, longer
	// sentences, named entities being introduced
	score := 0.25

	stative := []string{"was", "were", "had", "is", "are", "seemed", "stood", "lay"}
	score += lexiconDensity(text, stative) * 2.0

	sentences := SplitSentences(text)
	if len(sentences) > 0 {
		avg := float64(len(text)) / float64(len(sentences))
		if avg > 100 {
			score += 0.15
		}
	}

	score += capitalizedDensity(text) * 0.5

	if score > 1 {
		score = 1
	}
	return score
}

// capitalizedDensity is the share of mid-sentence capitalized words, a cheap
// proxy for named-entity density
func capitalizedDensity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	count := 0
	prevEndsSentence := true
	for _, w := range words {
		r := []rune(w)
		if !prevEndsSentence && unicode.IsUpper(r[0]) && unicode.IsLetter(r[0]) {
			count++
		}
		prevEndsSentence = strings.ContainsAny(w, ".!?")
	}
	return float64(count) / float64(len(words))
}
