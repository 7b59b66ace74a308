package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/storyline"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

const chapterOne = `Anna walked through the quiet village at dawn. The harvest had been good
this year and the granaries were full. She greeted the baker and the old miller on her
way to the square. Marco waved to her from the well. The morning felt calm and ordinary,
the kind of morning the village had known for years.`

const chapterTwo = `That night a fire broke out in the granary. Anna screamed and ran toward
the flames. Marco fought the blaze beside her, beating at the burning grain with wet
sacks. The fight against the fire raged for hours and the danger grew with every gust of
wind. The granary collapsed and Marco dragged Anna back from the ruin.`

const chapterTwoRevised = `That night the river rose and a flood swept into the village. Anna
screamed and waded into the cold water to free the miller's horse. Marco fought the
current beside her, dragging sandbags against the broken dike. The water climbed for
hours and the danger grew with every surge. The dike failed and Marco pulled Anna onto
the roof of the mill.`

const chapterThree = `In the morning the village gathered in the ashes. The panic had passed
and a weary peace settled over the square. Anna rested beside Marco and watched the
smoke drift away. The village would rebuild, the miller said, and the others nodded.
Anna felt calm again, and the quiet returned to the valley at last.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "storyline",
		Password: "storyline",
		DBName:   "storyline_test",
		Schema:   "public",
	}

	s, err := storyline.NewStoryline(dbConfig, nil)
	if err != nil {
		log.Fatalf("Failed to create storyline: %v", err)
	}
	defer s.Close()

	if err := s.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// First draft
	draft := model.NewNovelFromChapters("the-granary", []model.ChapterInput{
		{Key: "ch1", Title: "The Harvest", Text: chapterOne},
		{Key: "ch2", Title: "The Fire", Text: chapterTwo},
		{Key: "ch3", Title: "The Ashes", Text: chapterThree},
	})

	fmt.Println("Processing first draft...")
	first, err := s.ProcessNovel(context.Background(), draft)
	if err != nil {
		log.Fatalf("Failed to process novel: %v", err)
	}
	fmt.Printf("Stored version %s (%d chunks)\n", first.VersionID, first.Stats.ChunkCount)

	// Revised draft: the author rewrote the second chapter. Only the changed
	// chapter is reprocessed; the others are carried over from the previous
	// version.
	revised := model.NewNovelFromChapters("the-granary", []model.ChapterInput{
		{Key: "ch1", Title: "The Harvest", Text: chapterOne},
		{Key: "ch2", Title: "The Flood", Text: chapterTwoRevised},
		{Key: "ch3", Title: "The Ashes", Text: chapterThree},
	})

	fmt.Println("\nProcessing revision (only ch2 changed)...")
	second, delta, err := s.ProcessRevision(context.Background(), revised, []string{"ch2"})
	if err != nil {
		log.Fatalf("Failed to process revision: %v", err)
	}
	fmt.Printf("Stored version %s, reused %d of %d chapters\n",
		second.VersionID, second.Stats.Reused, second.Stats.ChapterCount)

	// Inspect the revision delta
	fmt.Println("\nChapter changes:")
	for _, change := range delta.ChapterChanges {
		fmt.Printf("  %-4s %-10s distance %.3f\n", change.Key, change.Change, change.Distance)
	}

	if len(delta.PlotChanges) > 0 {
		fmt.Println("\nPlot changes:")
		for _, change := range delta.PlotChanges {
			fmt.Printf("  %-18s %s\n", change.Type, change.Change)
		}
	}

	if len(delta.Impacts) > 0 {
		fmt.Println("\nCoherence impacts:")
		for _, impact := range delta.Impacts {
			fmt.Printf("  [%s/%s] %s: %s\n", impact.Check, impact.Severity, impact.Subject, impact.Description)
		}
	}

	for _, suggestion := range delta.Suggestions {
		fmt.Printf("Suggestion: %s\n", suggestion)
	}

	// The same delta can be recomputed later from the stored versions
	recomputed, err := s.AnalyzeRevision(context.Background(), draft.ID, first.VersionID, second.VersionID)
	if err != nil {
		log.Fatalf("Failed to analyze revision: %v", err)
	}
	fmt.Printf("\nRecomputed delta covers %d chapter changes\n", len(recomputed.ChapterChanges))

	fmt.Println("\nRevision example completed successfully!")
}
