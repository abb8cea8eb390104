package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/studyowl/coursechat/internal/index"
)

// Searcher is the slice of the semantic index the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber *int) ([]index.SearchResult, error)
}

// SearchTool searches course content and formats the hits for the model,
// recording each hit's course and lesson as a source.
type SearchTool struct {
	searcher Searcher
}

func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Name() string { return "search_course_content" }

func (t *SearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "What to search for in course content",
				},
				"course_name": {
					Type:        genai.TypeString,
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        genai.TypeInteger,
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any, rec *SourceRecorder) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", errors.New("query parameter is required")
	}
	courseName := stringArg(args, "course_name")
	lessonNumber := intArg(args, "lesson_number")

	results, err := t.searcher.Search(ctx, query, courseName, lessonNumber)
	if errors.Is(err, index.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'", courseName), nil
	}
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		var filter strings.Builder
		if courseName != "" {
			fmt.Fprintf(&filter, " in course '%s'", courseName)
		}
		if lessonNumber != nil {
			fmt.Fprintf(&filter, " in lesson %d", *lessonNumber)
		}
		return fmt.Sprintf("No relevant content found%s.", filter.String()), nil
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		label := r.CourseTitle
		if r.LessonNumber != nil {
			label = fmt.Sprintf("%s - Lesson %d", r.CourseTitle, *r.LessonNumber)
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, r.Content))
		rec.Record(Source{Text: label, Link: r.Link})
	}
	return strings.Join(blocks, "\n\n"), nil
}
