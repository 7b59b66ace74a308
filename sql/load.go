package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed versions.sql
var versionsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed chapters.sql
var chaptersSQL string

//go:embed plotpoints.sql
var plotPointsSQL string

// Function lists for verification
var VersionsFunctions = []string{
	"init_versions",
	"insert_version",
	"select_version",
	"select_latest_version",
	"select_versions_by_novel",
	"delete_version",
}

var ChunksFunctions = []string{
	"init_version_chunks",
	"insert_version_chunk",
	"select_chunks_by_version",
	"select_chunks_by_similarity",
}

var ChaptersFunctions = []string{
	"init_version_chapters",
	"insert_version_chapter",
	"select_chapters_by_version",
}

var PlotPointsFunctions = []string{
	"init_plot_points",
	"insert_plot_point",
	"select_plot_points_by_version",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadVersionsSql loads version-related SQL functions
func LoadVersionsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "versions", versionsSQL, VersionsFunctions)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "chunks", chunksSQL, ChunksFunctions)
}

// LoadChaptersSql loads chapter-related SQL functions
func LoadChaptersSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "chapters", chaptersSQL, ChaptersFunctions)
}

// LoadPlotPointsSql loads plot-point-related SQL functions
func LoadPlotPointsSql(db *sql.DB, force bool) error {
	return loadSql(db, force, "plot points", plotPointsSQL, PlotPointsFunctions)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadVersionsSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, force); err != nil {
		return err
	}

	if err := LoadChaptersSql(db, force); err != nil {
		return err
	}

	if err := LoadPlotPointsSql(db, force); err != nil {
		return err
	}

	return nil
}

func loadSql(db *sql.DB, force bool, name string, functionsSQL string, functions []string) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(functionsSQL)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
