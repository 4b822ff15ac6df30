package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/querygrade/querygrade/internal/dataset"
)

// Row is one result row keyed by output column name. Duplicate output names collapse
// to the last value, the same way a JSON object would.
type Row map[string]any

type Result struct {
	Columns  []string
	Rows     []Row
	Duration time.Duration
}

// Store is an isolated relational context owned by exactly one grading operation.
// Close is idempotent and must run on every exit path.
type Store interface {
	Load(ctx context.Context, ds dataset.Dataset) error
	Run(ctx context.Context, sqlText string) (Result, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context) (Store, error)
}

type OpenerFunc func(ctx context.Context) (Store, error)

func (f OpenerFunc) Open(ctx context.Context) (Store, error) {
	return f(ctx)
}

var ErrEmptySQL = errors.New("sql is required")

// ExecutionError reports a failed query. The store stays usable afterwards.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type LifecycleStage string

const (
	StageOpen LifecycleStage = "open"
	StageLoad LifecycleStage = "load"
)

// LifecycleError reports a failure to establish or populate a store.
type LifecycleError struct {
	Stage LifecycleStage
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Stage, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// OpenLoaded opens a store and loads ds into it. When loading fails the store is
// closed before returning, so callers only own a store on success.
func OpenLoaded(ctx context.Context, opener Opener, ds dataset.Dataset) (Store, error) {
	if opener == nil {
		return nil, &LifecycleError{Stage: StageOpen, Err: errors.New("store opener is required")}
	}
	store, err := opener.Open(ctx)
	if err != nil {
		return nil, &LifecycleError{Stage: StageOpen, Err: err}
	}
	if err := store.Load(ctx, ds); err != nil {
		_ = store.Close()
		return nil, &LifecycleError{Stage: StageLoad, Err: err}
	}
	return store, nil
}

// PrepareSQL trims whitespace and trailing semicolons.
func PrepareSQL(sqlText string) (string, error) {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if trimmed == "" {
		return "", ErrEmptySQL
	}
	return trimmed, nil
}

// BindRow binds tagged values to width positional parameters. A short row binds NULL
// for the missing trailing positions and a long row drops its surplus values; either
// case reports misaligned=true and is otherwise left as is.
func BindRow(values []dataset.Value, width int) (args []any, misaligned bool) {
	args = make([]any, width)
	for i := 0; i < width && i < len(values); i++ {
		args[i] = values[i].Any()
	}
	return args, len(values) != width
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// NormalizeValue converts driver-specific scan results into plain values.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	default:
		return typed
	}
}
