package main

import (
	"log"

	"timetrack/internal/config"
	"timetrack/internal/db"
	"timetrack/internal/handler"
	"timetrack/internal/realtime"
	"timetrack/internal/repository"
	"timetrack/internal/router"
	"timetrack/internal/service"
)

func main() {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	entryRepo := repository.NewEntryRepository(database)
	projectRepo := repository.NewProjectRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	hub := realtime.NewHub(authService, cfg.CORSOrigins)
	defer hub.CloseAll()

	timerService := service.NewTimerService(entryRepo, projectRepo, taskRepo, userRepo, hub)
	projectService := service.NewProjectService(projectRepo, taskRepo, hub)
	taskService := service.NewTaskService(taskRepo, projectRepo, hub)

	authHandler := handler.NewAuthHandler(authService)
	entryHandler := handler.NewEntryHandler(timerService)
	projectHandler := handler.NewProjectHandler(projectService, taskService)

	engine := router.New(authService, authHandler, entryHandler, projectHandler, hub, cfg.CORSOrigins)
	log.Printf("backend listening on :%s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("run server: %v", err)
	}
}
