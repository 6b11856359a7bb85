// Command essaygen runs batch essay generation against the configured models.
//
// Environment variables:
//
//	OPENAI_API_KEYS     comma-separated OpenAI keys (OPENAI_API_KEY for one)
//	ANTHROPIC_API_KEYS  comma-separated Anthropic keys (ANTHROPIC_API_KEY for one)
//	GEMINI_API_KEYS     comma-separated Gemini keys (GEMINI_API_KEY or GOOGLE_API_KEY for one)
//	BASE_MAX_TOKENS     base completion budget (default: 1500)
//	MAX_ATTEMPTS        attempts per essay (default: 5)
//	REQUEST_TIMEOUT     per-call timeout (default: 120s)
//	METRICS_PORT        Prometheus /metrics port (disabled when empty)
//	GRPC_PORT           gRPC health port (disabled when empty)
//	REDIS_ADDR          result ledger address (disabled when empty)
//	REDIS_PASSWORD      result ledger password
//	REDIS_DB            result ledger database (default: 0)
//	RESULT_TTL          result ledger TTL (default: 168h)
package main

import (
	"fmt"
	"os"

	"github.com/abdhe/essay-forge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "essaygen:", err)
		os.Exit(1)
	}
}
