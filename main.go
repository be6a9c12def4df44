package main

import (
	"log"
	"strconv"

	"skimmer/internal/config"
	"skimmer/internal/database"
	"skimmer/internal/model"
	"skimmer/internal/server"
)

func main() {
	cfg := config.Load()

	var store database.Store
	var err error
	if cfg.DatabaseURL != "" {
		store, err = database.NewPostgres(cfg.DatabaseURL)
	} else {
		store, err = database.New(cfg.DBPath)
	}
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if cfg.PollMinutes > 0 {
		if err := store.SetSetting(model.SettingPollingInterval, strconv.Itoa(cfg.PollMinutes)); err != nil {
			log.Printf("Warning: could not set polling interval: %v", err)
		}
	}

	srv := server.New(store)
	defer srv.Stop()

	if err := srv.Start(cfg.Addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
