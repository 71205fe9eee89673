package main

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"leech-bot/internal/config"
	"leech-bot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadAdminTokenConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokens := service.NewAdminTokenService(cfg.AdminJWTSecret, cfg.AdminJWTTTL)
	token, expiresAt, err := tokens.Generate(cfg.OwnerID)
	if err != nil {
		log.Fatalf("generate admin token: %v", err)
	}

	fmt.Println(token)
	log.Printf("admin token for owner %d expires at %s", cfg.OwnerID, expiresAt.Format(time.RFC3339))
}
