package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/storyline/helper"
)

// Words that start sentences or titles without naming anyone
var entityStopwords = map[string]bool{
	"The": true, "A": true, "An": true, "I": true, "It": true, "He": true,
	"She": true, "They": true, "We": true, "You": true, "His": true,
	"Her": true, "Their": true, "My": true, "But": true, "And": true,
	"Then": true, "When": true, "There": true, "This": true, "That": true,
	"What": true, "Why": true, "How": true, "Now": true, "So": true,
	"If": true, "In": true, "On": true, "At": true, "By": true, "For": true,
	"As": true, "Not": true, "No": true, "Yes": true, "Chapter": true,
	"Mr": true, "Mrs": true, "Ms": true, "Miss": true, "Dr": true,
}

var honorifics = map[string]bool{
	"Mr": true, "Mrs": true, "Ms": true, "Miss": true, "Dr": true,
	"Sir": true, "Lady": true, "Lord": true, "King": true, "Queen": true,
	"Prince": true, "Princess": true, "Captain": true, "Professor": true,
}

// RuleEntityFunc creates the default deterministic entity extractor. It
// collects capitalized word sequences that appear mid-sentence, which in
// prose fiction are almost always proper names.
func RuleEntityFunc() EntityFunc {
	return func(text string) ([]string, error) {
		var entities []string
		seen := make(map[string]bool)

		words := strings.Fields(text)
		sentenceStart := true
		for i := 0; i < len(words); i++ {
			word := strings.Trim(words[i], `"'.,;:!?()“”‘’-—`)
			if word == "" {
				sentenceStart = endsSentence(words[i])
				continue
			}

			if isCapitalized(word) && !sentenceStart && !entityStopwords[word] {
				name := word
				// Extend over following capitalized words and honorific-led
				// names ("Lady Catherine de Bourgh" minus the particles)
				for i+1 < len(words) && !endsSentence(words[i]) {
					next := strings.Trim(words[i+1], `"'.,;:!?()“”‘’-—`)
					if next == "" || !isCapitalized(next) || entityStopwords[next] && !honorifics[next] {
						break
					}
					name += " " + next
					i++
				}
				if !seen[name] {
					seen[name] = true
					entities = append(entities, name)
				}
			}

			sentenceStart = endsSentence(words[i])
		}

		return entities, nil
	}
}

func isCapitalized(word string) bool {
	r := []rune(word)
	return len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsLower(r[1])
}

// endsSentence reports whether the word closes a sentence. Words ending in a
// closing quote do not count: speech attribution usually follows the quote
// (`"You came!" Darcy said.`), so the name after it is mid-sentence.
func endsSentence(word string) bool {
	if strings.HasSuffix(word, `"`) || strings.HasSuffix(word, "”") || strings.HasSuffix(word, "’") {
		return false
	}
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// ModelEntityFunc creates an entity extractor backed by a NER model.
// Uses the KnightsAnalytics optimized distilbert-NER model and keeps only
// person entities, matching what the arc tracker consumes.
func ModelEntityFunc() (EntityFunc, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(text string) ([]string, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var entities []string
		seen := make(map[string]bool)
		for _, entity := range result.Entities[0] {
			entityType := strings.TrimPrefix(strings.TrimPrefix(entity.Entity, "B-"), "I-")
			if entityType != "PER" {
				continue
			}
			name := strings.TrimSpace(entity.Word)
			if name != "" && !seen[name] {
				seen[name] = true
				entities = append(entities, name)
			}
		}
		return entities, nil
	}, nil
}

// pronounClass groups pronouns by the antecedents they can refer to
type pronounClass int

const (
	pronounNone pronounClass = iota
	pronounMasculine
	pronounFeminine
	pronounPlural
)

func classifyPronoun(word string) pronounClass {
	switch strings.ToLower(word) {
	case "he", "him", "his", "himself":
		return pronounMasculine
	case "she", "her", "hers", "herself":
		return pronounFeminine
	case "they", "them", "their", "themselves":
		return pronounPlural
	default:
		return pronounNone
	}
}

// entityGender guesses gender from honorifics. Unknown is compatible with
// both masculine and feminine pronouns.
type entityGender int

const (
	genderUnknown entityGender = iota
	genderMasculine
	genderFeminine
)

func guessGender(name string) entityGender {
	return honorificGender(strings.Trim(strings.Fields(name)[0], "."))
}

func honorificGender(word string) entityGender {
	switch word {
	case "Mr", "Sir", "Lord", "King", "Prince":
		return genderMasculine
	case "Mrs", "Ms", "Miss", "Lady", "Queen", "Princess":
		return genderFeminine
	default:
		return genderUnknown
	}
}

func compatible(class pronounClass, gender entityGender) bool {
	switch class {
	case pronounMasculine:
		return gender == genderMasculine || gender == genderUnknown
	case pronounFeminine:
		return gender == genderFeminine || gender == genderUnknown
	case pronounPlural:
		return true
	default:
		return false
	}
}

// antecedent is a named entity occurrence tracked during pronoun resolution
type antecedent struct {
	name     string
	gender   entityGender
	sentence int
}

// ResolvePronouns links pronoun mentions in text to the nearest preceding
// compatible named entity within the lookback window (in sentences). The
// context string is prepended as preceding sentences so pronouns near the
// chunk start can resolve into the neighbor chunk. Unresolved pronouns are
// dropped rather than mis-attributed. Returns the referenced entity names.
func ResolvePronouns(text string, context string, named []string, lookback int) []string {
	if lookback <= 0 {
		return nil
	}

	knownNames := make(map[string]bool, len(named))
	// Map single-word occurrences back to the full extracted name so the
	// resolver reports "Elizabeth Bennet" for a pronoun bound to "Elizabeth"
	fullName := make(map[string]string, len(named))
	for _, name := range named {
		knownNames[name] = true
		for _, part := range strings.Fields(name) {
			knownNames[part] = true
			if _, ok := fullName[part]; !ok {
				fullName[part] = name
			}
		}
	}

	contextSentences := splitSentencesSimple(context)
	sentences := append(contextSentences, splitSentencesSimple(text)...)
	firstOwn := len(contextSentences)

	var antecedents []antecedent
	var resolved []string
	seen := make(map[string]bool)

	for si, sentence := range sentences {
		words := strings.Fields(sentence)
		pending := genderUnknown
		for wi, raw := range words {
			word := strings.Trim(raw, `"'.,;:!?()“”‘’-—`)
			if word == "" {
				continue
			}

			// An honorific fixes the gender of the name that follows it
			if honorifics[word] {
				pending = honorificGender(word)
				continue
			}

			// Track named entities as potential antecedents
			if isCapitalized(word) && !entityStopwords[word] && (wi > 0 || knownNames[word]) {
				gender := guessGender(word)
				if gender == genderUnknown {
					gender = pending
				}
				antecedents = append(antecedents, antecedent{
					name:     word,
					gender:   gender,
					sentence: si,
				})
				pending = genderUnknown
				continue
			}
			pending = genderUnknown

			// Resolve pronouns only in the chunk's own sentences
			if si < firstOwn {
				continue
			}
			class := classifyPronoun(word)
			if class == pronounNone {
				continue
			}
			for j := len(antecedents) - 1; j >= 0; j-- {
				a := antecedents[j]
				if si-a.sentence > lookback {
					break
				}
				if compatible(class, a.gender) {
					name := a.name
					if full, ok := fullName[name]; ok {
						name = full
					}
					if !seen[name] {
						seen[name] = true
						resolved = append(resolved, name)
					}
					break
				}
			}
		}
	}

	return resolved
}

func splitSentencesSimple(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
