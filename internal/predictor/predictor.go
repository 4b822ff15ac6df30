// Package predictor talks to the external text-to-SQL model used to draft reference
// answers, and holds the prompt and extraction conventions that model follows.
package predictor

import (
	"context"
	"fmt"
	"strings"

	"github.com/querygrade/querygrade/internal/schema"
)

type Predictor interface {
	Predict(ctx context.Context, prompt string) (string, error)
}

type PredictorFunc func(ctx context.Context, prompt string) (string, error)

func (f PredictorFunc) Predict(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Relationship says Column1 can be joined with Column2, both written as table.column.
type Relationship struct {
	Column1 string `json:"column1"`
	Column2 string `json:"column2"`
}

const (
	promptHeader   = "### Complete SQL query only and with no explanation\n### SQL tables followed by foreign key information:\n#\n# "
	sqlStartMarker = "### SQL:"
	sqlEndMarker   = "### End."
)

// BuildPrompt renders the completion prompt the model was tuned on: one line per table,
// one line per join hint, then the question. The prompt ends right after the SQL marker.
func BuildPrompt(schemas []schema.TableSchema, relationships []Relationship, question string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, table := range schemas {
		b.WriteString(table.TableName)
		b.WriteString("( ")
		b.WriteString(strings.Join(table.Columns, ", "))
		b.WriteString(" )\n# ")
	}
	b.WriteString("\n# ")
	for _, relation := range relationships {
		b.WriteString(relation.Column1)
		b.WriteString(" can be joined with ")
		b.WriteString(relation.Column2)
		b.WriteString("\n# ")
	}
	b.WriteString("\n### Question:\n#\n# ")
	b.WriteString(question)
	b.WriteString("\n#\n")
	b.WriteString(sqlStartMarker)
	b.WriteString("\n")
	return b.String()
}

// ExtractSQL finds the statement in a model response. The grammar is: take the text
// strictly between the first "### SQL:" and the next "### End.", split it on '#', and
// use the third segment trimmed. ok is false when any step finds nothing.
func ExtractSQL(result string) (sql string, ok bool) {
	_, afterStart, found := strings.Cut(result, sqlStartMarker)
	if !found {
		return "", false
	}
	span, _, found := strings.Cut(afterStart, sqlEndMarker)
	if !found {
		return "", false
	}
	segments := strings.Split(strings.TrimSpace(span), "#")
	if len(segments) < 3 {
		return "", false
	}
	sql = strings.TrimSpace(segments[2])
	if sql == "" {
		return "", false
	}
	return sql, true
}

// ExtractionError means the model answered but the answer did not follow the marker
// grammar ExtractSQL expects.
type ExtractionError struct {
	Question string
	Result   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("predictor response for question %q has no extractable sql", e.Question)
}
