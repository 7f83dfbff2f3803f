package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/GradientHair/GradientHair/internal/logger"
)

func main() {
	_ = godotenv.Load()
	deps := &Dependencies{Log: logger.New()}
	if err := NewRootCmd(deps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
