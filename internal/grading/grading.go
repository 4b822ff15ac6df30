// Package grading scores submitted SQL answers against reference queries over one
// ephemeral copy of a quiz dataset.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querygrade/querygrade/internal/dataset"
	"github.com/querygrade/querygrade/internal/equivalence"
	"github.com/querygrade/querygrade/internal/observability"
	"github.com/querygrade/querygrade/internal/query"
)

type Question struct {
	Text           string  `json:"question"`
	Marks          float64 `json:"marks"`
	ReferenceQuery string  `json:"answer"`
}

type SubmittedAnswer struct {
	Query    string  `json:"answer"`
	MaxMarks float64 `json:"max_marks"`
}

type Outcome string

const (
	OutcomeCorrect                  Outcome = "correct"
	OutcomeIncorrect                Outcome = "incorrect"
	OutcomeStudentExecutionFailed   Outcome = "student_execution_failed"
	OutcomeReferenceExecutionFailed Outcome = "reference_execution_failed"
	OutcomeReferenceMissing         Outcome = "reference_missing"
)

// GradedAnswer is one scored item, aligned by index with the quiz questions.
type GradedAnswer struct {
	AnswerText   string  `json:"answer"`
	MarksAwarded float64 `json:"marks_awarded"`
	MaxMarks     float64 `json:"max_marks"`
	Outcome      Outcome `json:"outcome,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type Input struct {
	Dataset   dataset.Dataset
	Questions []Question
	Answers   []SubmittedAnswer
}

type Report struct {
	Answers          []GradedAnswer `json:"answers"`
	TotalAwarded     float64        `json:"total_awarded"`
	TotalMax         float64        `json:"total_max"`
	IgnoredAnswers   int            `json:"ignored_answers"`
	IgnoredQuestions int            `json:"ignored_questions"`
	Duration         time.Duration  `json:"-"`
}

type Grader struct {
	Opener query.Opener
	Logger *slog.Logger
	// Equivalent defaults to equivalence.Equivalent.
	Equivalent func(student, model []query.Row) bool
}

func NewGrader(opener query.Opener, logger *slog.Logger) *Grader {
	return &Grader{Opener: opener, Logger: logger}
}

// Grade opens one store, loads the dataset, and scores answers[i] against
// questions[i] for every index both sides have. Query failures score zero for their
// item only; failing to open or load the store fails the whole call with a
// *query.LifecycleError. The store is closed exactly once on every path.
func (g *Grader) Grade(ctx context.Context, in Input) (report Report, err error) {
	start := time.Now()
	defer func() {
		observability.ObserveGrading(gradingResult(err), time.Since(start))
	}()

	store, err := query.OpenLoaded(ctx, g.Opener, in.Dataset)
	if err != nil {
		return Report{}, err
	}
	openedAt := time.Now()
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			g.logger().WarnContext(ctx, "close query store failed", slog.String("error", closeErr.Error()))
		}
		observability.ObserveStoreLifetime(time.Since(openedAt))
	}()

	count := min(len(in.Answers), len(in.Questions))
	report = Report{
		Answers:          make([]GradedAnswer, 0, count),
		IgnoredAnswers:   len(in.Answers) - count,
		IgnoredQuestions: len(in.Questions) - count,
	}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("grading interrupted at item %d: %w", i+1, err)
		}
		item := g.gradeItem(ctx, store, in.Answers[i], in.Questions[i])
		observability.ObserveGradedItem(string(item.Outcome))
		g.logger().DebugContext(ctx, "graded answer",
			slog.Int("item", i+1),
			slog.String("outcome", string(item.Outcome)),
			slog.Float64("marks_awarded", item.MarksAwarded),
		)
		report.Answers = append(report.Answers, item)
		report.TotalAwarded += item.MarksAwarded
		report.TotalMax += item.MaxMarks
	}
	report.Duration = time.Since(start)

	g.logger().InfoContext(ctx, "grading complete",
		slog.Int("items", len(report.Answers)),
		slog.Float64("total_awarded", report.TotalAwarded),
		slog.Float64("total_max", report.TotalMax),
		slog.Int("ignored_answers", report.IgnoredAnswers),
		slog.Int("ignored_questions", report.IgnoredQuestions),
		slog.String("duration", report.Duration.String()),
	)
	return report, nil
}

func (g *Grader) gradeItem(ctx context.Context, store query.Store, answer SubmittedAnswer, question Question) GradedAnswer {
	item := GradedAnswer{
		AnswerText: answer.Query,
		MaxMarks:   answer.MaxMarks,
	}

	studentResult, studentErr := store.Run(ctx, answer.Query)

	if strings.TrimSpace(question.ReferenceQuery) == "" {
		item.Outcome = OutcomeReferenceMissing
		item.Error = "question has no reference query"
		return item
	}
	modelResult, modelErr := store.Run(ctx, question.ReferenceQuery)
	g.logger().DebugContext(ctx, "ran item queries",
		slog.Duration("student_duration", studentResult.Duration),
		slog.Duration("reference_duration", modelResult.Duration),
	)

	switch {
	case modelErr != nil:
		item.Outcome = OutcomeReferenceExecutionFailed
		item.Error = modelErr.Error()
	case studentErr != nil:
		item.Outcome = OutcomeStudentExecutionFailed
		item.Error = studentErr.Error()
	case g.equivalent(studentResult.Rows, modelResult.Rows):
		item.Outcome = OutcomeCorrect
		item.MarksAwarded = answer.MaxMarks
	default:
		item.Outcome = OutcomeIncorrect
	}
	return item
}

// Evaluate runs two queries against one freshly loaded store and compares them. It is
// the ad hoc form of a single graded item.
func (g *Grader) Evaluate(ctx context.Context, ds dataset.Dataset, studentSQL, referenceSQL string) (Evaluation, error) {
	store, err := query.OpenLoaded(ctx, g.Opener, ds)
	if err != nil {
		return Evaluation{}, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			g.logger().WarnContext(ctx, "close query store failed", slog.String("error", closeErr.Error()))
		}
	}()

	studentResult, err := store.Run(ctx, studentSQL)
	if err != nil {
		return Evaluation{}, fmt.Errorf("student query: %w", err)
	}
	referenceResult, err := store.Run(ctx, referenceSQL)
	if err != nil {
		return Evaluation{}, fmt.Errorf("reference query: %w", err)
	}
	tier := equivalence.Compare(studentResult.Rows, referenceResult.Rows)
	return Evaluation{
		Equivalent:     tier != equivalence.TierNone,
		MatchedBy:      tier.String(),
		StudentRows:    studentResult.Rows,
		ReferenceRows:  referenceResult.Rows,
		StudentColumns: studentResult.Columns,
	}, nil
}

type Evaluation struct {
	Equivalent     bool        `json:"equivalent"`
	MatchedBy      string      `json:"matched_by"`
	StudentColumns []string    `json:"student_columns"`
	StudentRows    []query.Row `json:"student_rows"`
	ReferenceRows  []query.Row `json:"reference_rows"`
}

func (g *Grader) equivalent(student, model []query.Row) bool {
	if g.Equivalent != nil {
		return g.Equivalent(student, model)
	}
	return equivalence.Equivalent(student, model)
}

func (g *Grader) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return g.Logger
}

func gradingResult(err error) string {
	var lifecycleErr *query.LifecycleError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &lifecycleErr):
		return "store_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
