package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/storyline/core/segmenter"
	"github.com/siherrmann/storyline/model"
)

// DetectPlotPoints scans the smoothed tension curve of one version's ordered
// chunk sequence for structural markers. Flat or monotonic curves degrade to
// a single undetermined marker instead of raising an error.
func DetectPlotPoints(chunks []*model.Chunk, config *model.PipelineConfig) []*model.PlotPoint {
	if len(chunks) == 0 {
		return nil
	}

	tensions := make([]float64, len(chunks))
	for i, chunk := range chunks {
		tensions[i] = chunk.Tension
	}

	if len(chunks) < 3 || isFlat(tensions, config.ClimaxMinProm) || isMonotonic(tensions) {
		peak := argMax(tensions, 0)
		return []*model.PlotPoint{newPlotPoint(model.PlotUndetermined, peak, chunks)}
	}

	mid := len(tensions) / 2
	climax := argMax(tensions, mid)
	if tensions[climax] < tensions[argMax(tensions, 0)] {
		// The true peak lies in the first half, the curve has no
		// determinable second-half climax
		return []*model.PlotPoint{newPlotPoint(model.PlotUndetermined, argMax(tensions, 0), chunks)}
	}
	if prominence(tensions, climax) < config.ClimaxMinProm {
		return []*model.PlotPoint{newPlotPoint(model.PlotUndetermined, climax, chunks)}
	}

	points := []*model.PlotPoint{newPlotPoint(model.PlotClimax, climax, chunks)}

	if inciting, ok := firstSustainedRise(tensions, climax, config.ClimaxMinProm); ok {
		points = append(points, newPlotPoint(model.PlotIncitingIncident, inciting, chunks))

		if rising := steepestRise(tensions, inciting, climax-1); rising > inciting {
			points = append(points, newPlotPoint(model.PlotRisingAction, rising, chunks))
		}
	}

	if falling := steepestFall(tensions, climax, len(tensions)-1); falling > climax {
		points = append(points, newPlotPoint(model.PlotFallingAction, falling, chunks))
	}

	if resolution, ok := resolutionStart(tensions, climax); ok {
		points = append(points, newPlotPoint(model.PlotResolution, resolution, chunks))
	}

	sortPointsByPosition(points)
	return points
}

func newPlotPoint(pointType model.PlotPointType, position int, chunks []*model.Chunk) *model.PlotPoint {
	return &model.PlotPoint{
		ID:        uuid.New(),
		Type:      pointType,
		Position:  position,
		Summary:   firstSentence(chunks[position].Content),
		Tension:   chunks[position].Tension,
		CreatedAt: time.Now(),
	}
}

func firstSentence(text string) string {
	sentences := segmenter.SplitSentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	return sentences[0]
}

func argMax(tensions []float64, from int) int {
	best := from
	for i := from + 1; i < len(tensions); i++ {
		if tensions[i] > tensions[best] {
			best = i
		}
	}
	return best
}

func isFlat(tensions []float64, epsilon float64) bool {
	min, max := tensions[0], tensions[0]
	for _, t := range tensions {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return max-min < epsilon
}

func isMonotonic(tensions []float64) bool {
	rising, falling := true, true
	for i := 1; i < len(tensions); i++ {
		if tensions[i] < tensions[i-1] {
			rising = false
		}
		if tensions[i] > tensions[i-1] {
			falling = false
		}
	}
	return rising || falling
}

// prominence is the peak's height above the lowest point of the valley
// separating it from the curve's start
func prominence(tensions []float64, peak int) float64 {
	low := tensions[0]
	for i := 1; i < peak; i++ {
		if tensions[i] < low {
			low = tensions[i]
		}
	}
	return tensions[peak] - low
}

// firstSustainedRise finds the first position before the climax where the
// tension rises above baseline and keeps rising into the next chunk
func firstSustainedRise(tensions []float64, climax int, threshold float64) (int, bool) {
	baseline := tensions[0]
	for i := 1; i < climax; i++ {
		if tensions[i] > baseline+threshold && (i+1 >= len(tensions) || tensions[i+1] >= tensions[i]) {
			return i, true
		}
	}
	return 0, false
}

func steepestRise(tensions []float64, from, to int) int {
	best, bestDelta := from, 0.0
	for i := from + 1; i <= to; i++ {
		if delta := tensions[i] - tensions[i-1]; delta > bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best
}

func steepestFall(tensions []float64, from, to int) int {
	best, bestDelta := from, 0.0
	for i := from + 1; i <= to; i++ {
		if delta := tensions[i-1] - tensions[i]; delta > bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best
}

// resolutionStart finds the beginning of the final segment whose tension
// stays below the curve's mean after the climax
func resolutionStart(tensions []float64, climax int) (int, bool) {
	mean := 0.0
	for _, t := range tensions {
		mean += t
	}
	mean /= float64(len(tensions))

	start := -1
	for i := climax + 1; i < len(tensions); i++ {
		if tensions[i] < mean {
			if start < 0 {
				start = i
			}
		} else {
			start = -1
		}
	}
	if start < 0 {
		return 0, false
	}
	return start, true
}

func sortPointsByPosition(points []*model.PlotPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Position < points[j].Position
	})
}

// describePoint renders a short human readable label for logging
func describePoint(p *model.PlotPoint) string {
	return fmt.Sprintf("%v at chunk %v (tension %.2f)", p.Type, p.Position, p.Tension)
}
