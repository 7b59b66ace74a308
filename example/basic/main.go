package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/siherrmann/storyline"
	"github.com/siherrmann/storyline/helper"
	"github.com/siherrmann/storyline/model"
)

const chapterOne = `Anna walked through the quiet village at dawn. The harvest had been good
this year and the granaries were full. She greeted the baker and the old miller on her
way to the square. Marco waved to her from the well. "A fine morning," he said, and Anna
smiled. The morning felt calm and ordinary, the kind of morning the village had known
for years.`

const chapterTwo = `That night a fire broke out in the granary. Anna screamed and ran toward
the flames. Marco fought the blaze beside her, beating at the burning grain with wet
sacks. The fight against the fire raged for hours and the danger grew with every gust of
wind. The granary collapsed and Marco dragged Anna back from the ruin.`

const chapterThree = `In the morning the village gathered in the ashes. The panic had passed
and a weary peace settled over the square. Anna rested beside Marco and watched the
smoke drift away. The village would rebuild, the miller said, and the others nodded.
Anna felt calm again, and the quiet returned to the valley at last.`

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a YAML pipeline configuration (optional, defaults apply)")
	flag.Parse()

	var pipelineConfig *model.PipelineConfig
	if configPath != "" {
		var err error
		pipelineConfig, err = model.LoadPipelineConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load pipeline configuration: %v", err)
		}
	}

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		User:     "storyline",
		Password: "storyline",
		DBName:   "storyline_test",
		Schema:   "public",
	}

	s, err := storyline.NewStoryline(dbConfig, pipelineConfig)
	if err != nil {
		log.Fatalf("Failed to create storyline: %v", err)
	}
	defer s.Close()

	// Set up the default pipeline (local all-MiniLM-L6-v2 embeddings)
	if err := s.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	novel := model.NewNovelFromChapters("the-granary", []model.ChapterInput{
		{Key: "ch1", Title: "The Harvest", Text: chapterOne},
		{Key: "ch2", Title: "The Fire", Text: chapterTwo},
		{Key: "ch3", Title: "The Ashes", Text: chapterThree},
	})

	fmt.Println("Processing novel...")
	result, err := s.ProcessNovel(context.Background(), novel)
	if err != nil {
		log.Fatalf("Failed to process novel: %v", err)
	}
	fmt.Printf("Stored version %s\n", result.VersionID)
	fmt.Printf("Chunks: %d, chapters: %d, warnings: %d\n",
		result.Stats.ChunkCount, result.Stats.ChapterCount, result.Stats.WarningCount)

	// Search the latest version for a scene
	query := model.DefaultSearchQuery()
	query.TopK = 3

	results, err := s.SearchSimilar(context.Background(), novel.ID, "", "a fire breaks out at night", &query)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nFound %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Chapter: %s, type: %s\n", result.Chunk.ChapterKey, result.Chunk.Type)
		fmt.Printf("Content: %s\n", result.Chunk.Content)
	}

	// Prepare generation context for the middle chapter
	chapterContext, err := s.PrepareChapterContext(context.Background(), novel.ID, "", "ch2")
	if err != nil {
		log.Fatalf("Failed to prepare chapter context: %v", err)
	}

	fmt.Printf("\nContext for %q (narrative position %.2f):\n",
		chapterContext.Chapter.Title, chapterContext.NarrativePosition)
	for _, state := range chapterContext.CharacterStates {
		fmt.Printf("  %s: valence %.2f, last seen at chunk %d\n", state.Name, state.Valence, state.LastSeen)
	}
	for _, thread := range chapterContext.ActiveThreads {
		fmt.Printf("  Active thread: %s\n", thread.Theme)
	}

	fmt.Println("\nBasic example completed successfully!")
}
