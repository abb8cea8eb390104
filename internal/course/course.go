// Package course defines the course data model and the deterministic
// document processor that turns raw course transcripts into metadata and
// context-prefixed text chunks ready for semantic indexing.
package course

import "errors"

// ErrParse indicates a malformed course document. Ingestion of that
// document aborts; other documents in the same batch continue.
var ErrParse = errors.New("malformed course document")

// Lesson is one lesson within a course. Lesson numbers are unique within
// their course but not necessarily contiguous.
type Lesson struct {
	Number int
	Title  string
	Link   string
}

// Course is the parsed metadata of one course document. The title is the
// corpus-wide unique key; courses are immutable after ingestion.
type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// Chunk is one unit of retrievable text. Content carries a synthetic
// "Course <title> Lesson <n>: " header so an isolated chunk remains
// self-describing after retrieval. Index is sequential across the whole
// course and serves as the external chunk identifier.
type Chunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int // nil for course-level preamble chunks
	LessonLink   string
	Index        int
}
