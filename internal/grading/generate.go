package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querygrade/querygrade/internal/observability"
	"github.com/querygrade/querygrade/internal/predictor"
	"github.com/querygrade/querygrade/internal/schema"
)

type GenerateInput struct {
	Schemas       []schema.TableSchema
	Relationships []predictor.Relationship
	Questions     []Question
}

// Generator drafts reference queries by asking the predictor once per question.
type Generator struct {
	Predictor predictor.Predictor
	Logger    *slog.Logger
}

func NewGenerator(p predictor.Predictor, logger *slog.Logger) *Generator {
	return &Generator{Predictor: p, Logger: logger}
}

// Generate returns a copy of the questions with ReferenceQuery filled in. Any predictor
// failure or unparseable reply fails the whole call; a reply without the SQL markers is
// reported as *predictor.ExtractionError.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) ([]Question, error) {
	if g.Predictor == nil {
		return nil, errors.New("predictor is not configured")
	}

	out := make([]Question, 0, len(in.Questions))
	for i, question := range in.Questions {
		prompt := predictor.BuildPrompt(in.Schemas, in.Relationships, question.Text)

		start := time.Now()
		result, err := g.Predictor.Predict(ctx, prompt)
		if err != nil {
			observability.ObservePredictorCall("error", time.Since(start))
			return nil, fmt.Errorf("predict reference for question %d: %w", i+1, err)
		}

		sql, ok := predictor.ExtractSQL(result)
		if !ok {
			observability.ObservePredictorCall("extraction_failed", time.Since(start))
			return nil, &predictor.ExtractionError{Question: question.Text, Result: result}
		}
		observability.ObservePredictorCall("ok", time.Since(start))

		if g.Logger != nil {
			g.Logger.DebugContext(ctx, "generated reference query",
				slog.Int("item", i+1),
				slog.String("sql", sql),
			)
		}
		question.ReferenceQuery = sql
		out = append(out, question)
	}
	return out, nil
}
