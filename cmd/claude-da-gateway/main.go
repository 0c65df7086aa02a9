// claude-da-gateway serves Core B's OpenAI-compatible chat-completions
// surface in front of the read-only SQL data analyst agent.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/subterminator/core/pkg/chatapi"
	"github.com/subterminator/core/pkg/provider"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "."), "Directory containing the .env file")
	addr := flag.String("addr", getEnv("CLAUDE_DA_ADDR", ":8081"), "HTTP listen address")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	bridge := provider.New()
	defer bridge.Close()

	server := chatapi.NewServer(bridge)

	log.Println("Starting claude-da-gateway")
	log.Printf("HTTP listening on %s", *addr)
	if err := server.Start(*addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
