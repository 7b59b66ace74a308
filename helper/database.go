package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection parameters for the Postgres instance
type DatabaseConfiguration struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
}

// NewDatabaseConfiguration reads the database configuration from the
// environment, loading a .env file first if one exists.
// Required: STORYLINE_DB_HOST, STORYLINE_DB_PORT, STORYLINE_DB_USER,
// STORYLINE_DB_PASSWORD, STORYLINE_DB_NAME. Optional: STORYLINE_DB_SCHEMA.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("STORYLINE_DB_HOST"),
		Port:     os.Getenv("STORYLINE_DB_PORT"),
		User:     os.Getenv("STORYLINE_DB_USER"),
		Password: os.Getenv("STORYLINE_DB_PASSWORD"),
		DBName:   os.Getenv("STORYLINE_DB_NAME"),
		Schema:   os.Getenv("STORYLINE_DB_SCHEMA"),
	}

	if config.Host == "" || config.Port == "" || config.User == "" || config.Password == "" || config.DBName == "" {
		return nil, fmt.Errorf("incomplete database configuration, required envs: STORYLINE_DB_HOST, STORYLINE_DB_PORT, STORYLINE_DB_USER, STORYLINE_DB_PASSWORD, STORYLINE_DB_NAME")
	}

	if config.Schema == "" {
		config.Schema = "public"
	}

	return config, nil
}

// ConnectionString builds the lib/pq connection string
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s search_path=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.Schema,
	)
}

// Database wraps the sql.DB instance together with the logger handed down to
// all database handlers.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection to the configured Postgres instance and pings it.
// It panics on connection failure, matching init-at-startup usage.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: db,
		Logger:   logger,
	}
}

// NewTestDatabase opens a database connection with a plain text logger for tests
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	opts := PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelWarn,
		},
	}
	logger := slog.New(NewPrettyHandler(os.Stdout, opts))
	return NewDatabase("storyline_test", config, logger)
}
