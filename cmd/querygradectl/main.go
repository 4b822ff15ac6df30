package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/querygrade/querygrade/internal/cli/querygradectl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("QUERYGRADE_CLI_TIMEOUT")), 60*time.Second)
	options := querygradectl.Options{
		BaseURL:   envOr("QUERYGRADE_API_URL", "http://localhost:8080"),
		APIKey:    strings.TrimSpace(os.Getenv("QUERYGRADE_API_KEY")),
		TeacherID: strings.TrimSpace(os.Getenv("QUERYGRADE_TEACHER_ID")),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	code := querygradectl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid QUERYGRADE_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
