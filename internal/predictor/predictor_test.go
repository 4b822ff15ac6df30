package predictor

import (
	"strings"
	"testing"

	"github.com/querygrade/querygrade/internal/schema"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
		ok     bool
	}{
		{
			name:   "completion after prompt",
			result: "### Question:\n#\n# list books\n#\n### SQL:\n#\n# SELECT title FROM Books;\n#\n### End.\ntrailing",
			want:   "SELECT title FROM Books;",
			ok:     true,
		},
		{
			name:   "multi line statement",
			result: "### SQL:\n#\n# SELECT title\nFROM Books\n#\n### End.",
			want:   "SELECT title\nFROM Books",
			ok:     true,
		},
		{
			name:   "first end marker closes the span",
			result: "### SQL:\n#\n# SELECT 1\n### End.\n# SELECT 2\n### End.",
			want:   "SELECT 1",
			ok:     true,
		},
		{
			name:   "missing start marker",
			result: "#\n# SELECT 1\n#\n### End.",
			ok:     false,
		},
		{
			name:   "missing end marker",
			result: "### SQL:\n#\n# SELECT 1\n#\n",
			ok:     false,
		},
		{
			name:   "too few segments",
			result: "### SQL:\n# SELECT 1\n### End.",
			ok:     false,
		},
		{
			name:   "empty target segment",
			result: "### SQL:\n#\n#   \n#\n### End.",
			ok:     false,
		},
		{
			name:   "empty input",
			result: "",
			ok:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractSQL(tc.result)
			if ok != tc.ok {
				t.Fatalf("ExtractSQL() ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("ExtractSQL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	schemas := []schema.TableSchema{
		{TableName: "Books", Columns: []string{"book_id", "title"}},
		{TableName: "Authors", Columns: []string{"author_id", "author_name"}},
	}
	relationships := []Relationship{{Column1: "Books.author_id", Column2: "Authors.author_id"}}

	got := BuildPrompt(schemas, relationships, "List all titles")
	want := "### Complete SQL query only and with no explanation\n" +
		"### SQL tables followed by foreign key information:\n" +
		"#\n" +
		"# Books( book_id, title )\n" +
		"# Authors( author_id, author_name )\n" +
		"# \n" +
		"# Books.author_id can be joined with Authors.author_id\n" +
		"# \n" +
		"### Question:\n" +
		"#\n" +
		"# List all titles\n" +
		"#\n" +
		"### SQL:\n"
	if got != want {
		t.Fatalf("BuildPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildPromptRoundTripsThroughExtraction(t *testing.T) {
	prompt := BuildPrompt([]schema.TableSchema{{TableName: "t", Columns: []string{"a"}}}, nil, "count rows")
	sql, ok := ExtractSQL(prompt + "#\n# SELECT COUNT(*) FROM t\n#\n### End.")
	if !ok || sql != "SELECT COUNT(*) FROM t" {
		t.Fatalf("ExtractSQL() = %q, %v", sql, ok)
	}
}

func TestExtractionErrorMessage(t *testing.T) {
	err := &ExtractionError{Question: "q1", Result: "nonsense"}
	if !strings.Contains(err.Error(), `"q1"`) {
		t.Fatalf("unexpected error text: %s", err.Error())
	}
}
