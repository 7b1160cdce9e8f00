package main

import (
	"context"
	"log"
	"os"

	"nudge/internal/config"
	"nudge/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("NUDGE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Printf("nudged: %v", err)
		os.Exit(1)
	}
}
