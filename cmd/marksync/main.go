package main

import (
	"log"

	"github.com/MrSnakeDoc/marksync/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ marksync failed: %v", err)
	}
}
