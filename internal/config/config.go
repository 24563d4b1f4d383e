package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by LOOM_ENV (or .env by default), then
// loads the corresponding .secret sidecar if it exists. All config is flat
// env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("LOOM_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; real deployments set env vars directly.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// InvokerProvider returns the configured agent invoker provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func InvokerProvider() string {
	p := os.Getenv("INVOKER_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// InvokerAPIKey returns the API key for the configured invoker provider.
func InvokerAPIKey() string {
	switch InvokerProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// MaxConcurrentExecutions bounds background execution parallelism.
// Defaults to 16 if not set.
func MaxConcurrentExecutions() int64 {
	n, err := strconv.ParseInt(os.Getenv("MAX_CONCURRENT_EXECUTIONS"), 10, 64)
	if err != nil || n <= 0 {
		return 16
	}
	return n
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
