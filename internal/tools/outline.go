package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/studyowl/coursechat/internal/index"
)

// Outliner is the slice of the semantic index the outline tool needs.
type Outliner interface {
	Outline(ctx context.Context, courseName string) (index.Outline, error)
}

// OutlineTool returns the structure of a course: title, link, instructor
// and the full lesson list.
type OutlineTool struct {
	outliner Outliner
}

func NewOutlineTool(outliner Outliner) *OutlineTool {
	return &OutlineTool{outliner: outliner}
}

func (t *OutlineTool) Name() string { return "get_course_outline" }

func (t *OutlineTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: "Get the complete outline of a course including title, link and all lessons",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"course_name": {
					Type:        genai.TypeString,
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
			},
			Required: []string{"course_name"},
		},
	}
}

func (t *OutlineTool) Execute(ctx context.Context, args map[string]any, rec *SourceRecorder) (string, error) {
	courseName := stringArg(args, "course_name")
	if courseName == "" {
		return "", errors.New("course_name parameter is required")
	}

	o, err := t.outliner.Outline(ctx, courseName)
	if errors.Is(err, index.ErrCourseNotFound) {
		return fmt.Sprintf("No course found matching '%s'", courseName), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", o.Title)
	if o.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", o.Link)
	}
	if o.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", o.Instructor)
	}
	fmt.Fprintf(&b, "\nLessons (%d):\n", len(o.Lessons))
	for _, l := range o.Lessons {
		fmt.Fprintf(&b, "Lesson %d: %s\n", l.Number, l.Title)
	}

	rec.Record(Source{Text: o.Title, Link: o.Link})
	return strings.TrimRight(b.String(), "\n"), nil
}
