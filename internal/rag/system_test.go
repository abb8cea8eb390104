package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyowl/coursechat/internal/course"
	"github.com/studyowl/coursechat/internal/index"
	"github.com/studyowl/coursechat/internal/log"
	"github.com/studyowl/coursechat/internal/session"
	"github.com/studyowl/coursechat/internal/tools"
)

const goBasicsDoc = `Course Title: Go Basics
Course Link: https://example.com/go-basics
Course Instructor: Dana Smith

Lesson 0: Introduction
Lesson Link: https://example.com/go-basics/0
Go is a statically typed language. It compiles fast.

Lesson 1: Concurrency
Lesson Link: https://example.com/go-basics/1
Goroutines are lightweight threads. Channels connect them.
`

// fakeIndex is an in-memory SemanticIndex.
type fakeIndex struct {
	courses map[string]course.Course
	chunks  map[string][]course.Chunk
	err     error
	cleared int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		courses: make(map[string]course.Course),
		chunks:  make(map[string][]course.Chunk),
	}
}

func (f *fakeIndex) AddCourse(_ context.Context, c course.Course) error {
	if f.err != nil {
		return f.err
	}
	f.courses[c.Title] = c
	return nil
}

func (f *fakeIndex) AddChunks(_ context.Context, chunks []course.Chunk) error {
	if f.err != nil {
		return f.err
	}
	for _, ch := range chunks {
		f.chunks[ch.CourseTitle] = append(f.chunks[ch.CourseTitle], ch)
	}
	return nil
}

func (f *fakeIndex) HasCourse(_ context.Context, title string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.courses[title]
	return ok, nil
}

func (f *fakeIndex) DeleteCourse(_ context.Context, title string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.courses, title)
	delete(f.chunks, title)
	return nil
}

func (f *fakeIndex) Clear(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.cleared++
	f.courses = make(map[string]course.Course)
	f.chunks = make(map[string][]course.Chunk)
	return nil
}

func (f *fakeIndex) GetStats(context.Context) (index.Stats, error) {
	if f.err != nil {
		return index.Stats{}, f.err
	}
	titles := make([]string, 0, len(f.courses))
	for t := range f.courses {
		titles = append(titles, t)
	}
	return index.Stats{TotalCourses: len(titles), CourseTitles: titles}, nil
}

// fakeGen returns a fixed answer and records what it was asked.
type fakeGen struct {
	text    string
	err     error
	sources []tools.Source

	gotQuery   string
	gotHistory string
	calls      int
}

func (f *fakeGen) Generate(_ context.Context, query, history string, _ *tools.Registry, rec *tools.SourceRecorder) (string, error) {
	f.calls++
	f.gotQuery = query
	f.gotHistory = history
	if f.err != nil {
		return "", f.err
	}
	for _, s := range f.sources {
		rec.Record(s)
	}
	return f.text, nil
}

func newTestSystem(t *testing.T, gen *fakeGen) (*System, *fakeIndex, *session.Store) {
	t.Helper()
	proc, err := course.NewProcessor(800, 100)
	require.NoError(t, err)

	idx := newFakeIndex()
	sessions := session.NewStore(2, log.NewNop())
	sys := New(Config{
		Processor: proc,
		Index:     idx,
		Generator: gen,
		Sessions:  sessions,
		Registry:  tools.NewRegistry(),
		Logger:    log.NewNop(),
	})
	return sys, idx, sessions
}

func TestQuery_AllocatesSession(t *testing.T) {
	gen := &fakeGen{text: "the answer", sources: []tools.Source{{Text: "Go Basics - Lesson 1"}}}
	sys, _, sessions := newTestSystem(t, gen)

	ans, err := sys.Query(context.Background(), "what are goroutines?", "")
	require.NoError(t, err)

	assert.Equal(t, "the answer", ans.Text)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "Go Basics - Lesson 1", ans.Sources[0].Text)
	require.NotEmpty(t, ans.SessionID)
	assert.True(t, sessions.Exists(ans.SessionID))

	assert.Equal(t, "Answer this question about course materials: what are goroutines?", gen.gotQuery)
	assert.Empty(t, gen.gotHistory)
}

func TestQuery_ThreadsHistory(t *testing.T) {
	gen := &fakeGen{text: "first answer"}
	sys, _, _ := newTestSystem(t, gen)

	ans, err := sys.Query(context.Background(), "first question", "")
	require.NoError(t, err)

	gen.text = "second answer"
	_, err = sys.Query(context.Background(), "second question", ans.SessionID)
	require.NoError(t, err)

	assert.Equal(t, "User: first question\nAssistant: first answer", gen.gotHistory)
}

func TestQuery_FailureLeavesHistoryUntouched(t *testing.T) {
	gen := &fakeGen{text: "ok"}
	sys, _, sessions := newTestSystem(t, gen)

	ans, err := sys.Query(context.Background(), "q1", "")
	require.NoError(t, err)
	before := sessions.History(ans.SessionID)

	gen.err = ErrGenerationFailed
	_, err = sys.Query(context.Background(), "q2", ans.SessionID)
	require.ErrorIs(t, err, ErrGenerationFailed)

	assert.Equal(t, before, sessions.History(ans.SessionID))
}

func TestNewSession_DiscardsOld(t *testing.T) {
	sys, _, sessions := newTestSystem(t, &fakeGen{text: "ok"})

	old := sessions.Create()
	sessions.AddExchange(old, "q", "a")

	fresh := sys.NewSession(old)
	assert.NotEmpty(t, fresh)
	assert.NotEqual(t, old, fresh)
	assert.False(t, sessions.Exists(old))
	assert.True(t, sessions.Exists(fresh))
}

func TestAddCourseDocument(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	path := filepath.Join(t.TempDir(), "go_basics.txt")
	require.NoError(t, os.WriteFile(path, []byte(goBasicsDoc), 0o644))

	c, chunks, err := sys.AddCourseDocument(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Go Basics", c.Title)
	assert.Positive(t, chunks)
	assert.Len(t, idx.courses, 1)
	assert.Len(t, idx.chunks["Go Basics"], chunks)
}

func TestAddCourseDocument_ReplacesExisting(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	path := filepath.Join(t.TempDir(), "go_basics.txt")
	require.NoError(t, os.WriteFile(path, []byte(goBasicsDoc), 0o644))

	_, firstChunks, err := sys.AddCourseDocument(context.Background(), path)
	require.NoError(t, err)
	_, _, err = sys.AddCourseDocument(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, idx.courses, 1)
	assert.Len(t, idx.chunks["Go Basics"], firstChunks)
}

func TestAddCourseDocument_Malformed(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	path := filepath.Join(t.TempDir(), "broken.txt")
	require.NoError(t, os.WriteFile(path, []byte("no title header here"), 0o644))

	_, _, err := sys.AddCourseDocument(context.Background(), path)
	assert.ErrorIs(t, err, course.ErrParse)
	assert.Empty(t, idx.courses)
}

func TestAddCourseFolder(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	dir := t.TempDir()

	otherDoc := "Course Title: Distributed Systems\n\nLesson 1: Consensus\nQuorums decide writes. Leaders order them.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_go_basics.txt"), []byte(goBasicsDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_distsys.txt"), []byte(otherDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.txt"), []byte("not a course"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	courses, chunks, err := sys.AddCourseFolder(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Equal(t, 2, courses)
	assert.Positive(t, chunks)
	assert.Len(t, idx.courses, 2)
	assert.Contains(t, idx.courses, "Go Basics")
	assert.Contains(t, idx.courses, "Distributed Systems")
}

func TestAddCourseFolder_SkipsExisting(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go_basics.txt"), []byte(goBasicsDoc), 0o644))

	_, firstChunks, err := sys.AddCourseFolder(context.Background(), dir, false)
	require.NoError(t, err)

	courses, chunks, err := sys.AddCourseFolder(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Zero(t, courses)
	assert.Zero(t, chunks)
	assert.Len(t, idx.chunks["Go Basics"], firstChunks)
}

func TestAddCourseFolder_Clear(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go_basics.txt"), []byte(goBasicsDoc), 0o644))

	_, _, err := sys.AddCourseFolder(context.Background(), dir, false)
	require.NoError(t, err)

	_, _, err = sys.AddCourseFolder(context.Background(), dir, true)
	require.NoError(t, err)

	assert.Equal(t, 1, idx.cleared)
	assert.Len(t, idx.courses, 1)
}

func TestAddCourseFolder_MissingDir(t *testing.T) {
	sys, _, _ := newTestSystem(t, &fakeGen{})

	_, _, err := sys.AddCourseFolder(context.Background(), filepath.Join(t.TempDir(), "nope"), false)
	require.Error(t, err)
}

func TestGetStats_IndexFailure(t *testing.T) {
	sys, idx, _ := newTestSystem(t, &fakeGen{})
	idx.err = errors.New("connection refused")

	_, err := sys.GetStats(context.Background())
	require.Error(t, err)
}
