package database

import (
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver, registered for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

// DB is the shared connection pool. Handlers read it directly; the sync
// pipeline receives it by reference so it can be swapped for a mock in tests.
var DB *sqlx.DB

// Connect initializes the pool from environment variables (optionally loaded
// from a .env file in the working directory) and returns it. It also assigns
// the package-level DB so the API layer can use it without plumbing.
func Connect() *sqlx.DB {
	if err := godotenv.Load(".env"); err != nil {
		// Not fatal: env vars may be set by the deployment environment.
		log.Println("no .env file loaded:", err)
	}

	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "agentrank")
	dbName := envOr("DB_NAME", "agentrank_db")
	dbSSLMode := envOr("DB_SSLMODE", "disable")
	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		log.Fatal("FATAL: DB_PASSWORD environment variable is not set")
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)

	db, err := sqlx.Connect("pgx", connStr)
	if err != nil {
		log.Fatalf("FATAL: unable to connect to database: %v", err)
	}

	DB = db
	log.Println("connected to database", dbName)
	return db
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
