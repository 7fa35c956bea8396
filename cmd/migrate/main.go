package main

import (
	"flag"
	"log"

	"timetrack/internal/config"
	"timetrack/internal/db"
)

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DBPath, "path to the sqlite database")
	dir := flag.String("dir", cfg.MigrationsDir, "directory containing migration files")
	flag.Parse()

	database, err := db.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, *dir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	log.Println("migrations applied successfully")
}
