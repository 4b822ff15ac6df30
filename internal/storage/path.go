package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeFileChars      = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildWorkbookPath places an uploaded workbook under its quiz. The file name is
// reduced to a safe single path component.
func BuildWorkbookPath(quizID, fileName string) (string, error) {
	if err := validatePathComponent(quizID, "quiz id"); err != nil {
		return "", err
	}
	name := SanitizeFileName(fileName)
	if name == "" {
		name = "workbook.xlsx"
	}
	return path.Join("quizzes", quizID, name), nil
}

func BuildGradeArchivePath(quizID, studentID string, gradedAt time.Time) (string, error) {
	if err := validatePathComponent(quizID, "quiz id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(studentID, "student id"); err != nil {
		return "", err
	}
	return path.Join(
		"grades",
		quizID,
		studentID,
		fmt.Sprintf("%d.parquet", gradedAt.UTC().Unix()),
	), nil
}

func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._-")
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
