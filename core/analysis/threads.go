package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/siherrmann/storyline/model"
)

// maxThreads caps the thread list so common vocabulary cannot flood it
const maxThreads = 12

var closingMarkers = []string{
	"finally", "at last", "resolved", "settled", "reconciled", "forgave",
	"married", "buried", "returned home", "was over", "ended",
}

var themeStopwords = map[string]bool{
	"about": true, "after": true, "again": true, "against": true, "almost": true,
	"along": true, "always": true, "around": true, "because": true, "before": true,
	"between": true, "could": true, "every": true, "first": true, "found": true,
	"great": true, "having": true, "himself": true, "herself": true, "little": true,
	"might": true, "never": true, "nothing": true, "other": true, "perhaps": true,
	"really": true, "should": true, "since": true, "still": true, "their": true,
	"there": true, "these": true, "thing": true, "things": true, "those": true,
	"though": true, "through": true, "toward": true, "under": true, "until": true,
	"where": true, "which": true, "while": true, "without": true, "would": true,
	"being": true, "asked": true, "answered": true, "replied": true, "looked": true,
	"turned": true, "seemed": true, "began": true, "thought": true, "moment": true,
}

// BuildThreads clusters one version's chunks by shared entity and theme
// signatures. A thread whose last member lies before the configured cutoff
// share of the novel without a closing marker is unresolved.
func BuildThreads(chunks []*model.Chunk, config *model.PipelineConfig) []*model.NarrativeThread {
	if len(chunks) == 0 {
		return nil
	}

	threads := append(entityThreads(chunks), themeThreads(chunks)...)

	for _, thread := range threads {
		thread.Importance = importance(thread, len(chunks))
		thread.Resolved = isResolved(thread, chunks, config.UnresolvedCutoff)
	}

	sort.Slice(threads, func(i, j int) bool {
		if threads[i].Importance != threads[j].Importance {
			return threads[i].Importance > threads[j].Importance
		}
		return threads[i].Theme < threads[j].Theme
	})
	if len(threads) > maxThreads {
		threads = threads[:maxThreads]
	}
	return threads
}

// entityThreads builds one thread per character pair co-occurring in at
// least two chunks
func entityThreads(chunks []*model.Chunk) []*model.NarrativeThread {
	pairChunks := map[string][]int{}
	pairNames := map[string][2]string{}
	for _, chunk := range chunks {
		entities := append([]string{}, chunk.Entities...)
		sort.Strings(entities)
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				key := entities[i] + "|" + entities[j]
				pairChunks[key] = append(pairChunks[key], chunk.Index)
				pairNames[key] = [2]string{entities[i], entities[j]}
			}
		}
	}

	var threads []*model.NarrativeThread
	for key, members := range pairChunks {
		if len(members) < 2 {
			continue
		}
		names := pairNames[key]
		threads = append(threads, &model.NarrativeThread{
			Theme:    fmt.Sprintf("%v and %v", names[0], names[1]),
			Entities: []string{names[0], names[1]},
			Chunks:   dedupSorted(members),
		})
	}
	return threads
}

// themeThreads builds one thread per recurring content term. Terms present
// in nearly every chunk carry no thread signal and are skipped.
func themeThreads(chunks []*model.Chunk) []*model.NarrativeThread {
	entityWords := map[string]bool{}
	for _, chunk := range chunks {
		for _, entity := range chunk.Entities {
			for _, part := range strings.Fields(strings.ToLower(entity)) {
				entityWords[part] = true
			}
		}
	}

	termChunks := map[string][]int{}
	for _, chunk := range chunks {
		seen := map[string]bool{}
		for _, token := range strings.FieldsFunc(strings.ToLower(chunk.Content), func(r rune) bool {
			return !('a' <= r && r <= 'z')
		}) {
			if len(token) < 5 || themeStopwords[token] || entityWords[token] || seen[token] {
				continue
			}
			seen[token] = true
			termChunks[token] = append(termChunks[token], chunk.Index)
		}
	}

	var threads []*model.NarrativeThread
	for term, members := range termChunks {
		if len(members) < 3 || len(members) > len(chunks)*3/5 {
			continue
		}
		threads = append(threads, &model.NarrativeThread{
			Theme:  term,
			Chunks: dedupSorted(members),
		})
	}
	return threads
}

// importance combines the thread's coverage and its span across the novel
func importance(thread *model.NarrativeThread, totalChunks int) float64 {
	coverage := float64(len(thread.Chunks)) / float64(totalChunks)
	span := float64(thread.LastChunk()-thread.FirstChunk()) / float64(totalChunks)
	value := 0.6*coverage + 0.4*span
	if value > 1 {
		value = 1
	}
	return value
}

// isResolved checks whether the thread reaches the novel's final stretch or
// its last member chunk carries a closing marker
func isResolved(thread *model.NarrativeThread, chunks []*model.Chunk, cutoff float64) bool {
	last := thread.LastChunk()
	if last < 0 {
		return false
	}
	if float64(last) >= cutoff*float64(len(chunks)-1) {
		return true
	}
	text := strings.ToLower(chunks[last].Content)
	for _, marker := range closingMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func dedupSorted(values []int) []int {
	sort.Ints(values)
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}
