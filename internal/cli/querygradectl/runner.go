package querygradectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TeacherID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	method string
	// path is a format string taking the command's positional argument, if any.
	path  string
	arg   string
	usage string
}

var commands = map[string]command{
	"health":   {method: http.MethodGet, path: "/v1/health", usage: "GET /v1/health"},
	"ready":    {method: http.MethodGet, path: "/v1/ready", usage: "GET /v1/ready"},
	"quizzes":  {method: http.MethodGet, path: "/v1/quizzes", usage: "GET /v1/quizzes"},
	"students": {method: http.MethodGet, path: "/v1/quizzes/%s/students", arg: "quiz-id", usage: "GET /v1/quizzes/{quiz}/students"},
	"generate": {method: http.MethodPost, path: "/v1/quizzes/%s/answers", arg: "quiz-id", usage: "POST /v1/quizzes/{quiz}/answers"},
	"grade":    {method: http.MethodPost, path: "/v1/students/%s/grade", arg: "student-id", usage: "POST /v1/students/{student}/grade"},
}

var commandOrder = []string{"health", "ready", "quizzes", "students", "generate", "grade"}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querygradectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querygrade API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for teacher requests")
	teacherID := fs.String("teacher-id", defaults.TeacherID, "Teacher ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	path := cmd.path
	if cmd.arg != "" {
		value := strings.TrimSpace(fs.Arg(1))
		if value == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires <%s>\n", name, cmd.arg)
			return 2
		}
		path = fmt.Sprintf(cmd.path, url.PathEscape(value))
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey, *teacherID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey, teacherID string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(teacherID) != "" {
		req.Header.Set("X-Teacher-ID", strings.TrimSpace(teacherID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querygradectl [flags] <command> [id]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		label := name
		if cmd.arg != "" {
			label += " <" + cmd.arg + ">"
		}
		_, _ = fmt.Fprintf(w, "  %-22s %s\n", label, cmd.usage)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
