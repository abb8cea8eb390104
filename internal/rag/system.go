// Package rag wires document processing, the semantic index, tool-calling
// generation and session memory into one question-answering system.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/studyowl/coursechat/internal/course"
	"github.com/studyowl/coursechat/internal/index"
	"github.com/studyowl/coursechat/internal/session"
	"github.com/studyowl/coursechat/internal/tools"
)

// SemanticIndex is the slice of the index the system drives directly.
// Search and outline access go through the registered tools instead.
type SemanticIndex interface {
	AddCourse(ctx context.Context, c course.Course) error
	AddChunks(ctx context.Context, chunks []course.Chunk) error
	HasCourse(ctx context.Context, title string) (bool, error)
	DeleteCourse(ctx context.Context, title string) error
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (index.Stats, error)
}

// AnswerGenerator abstracts the generation loop for testing.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, history string, reg *tools.Registry, rec *tools.SourceRecorder) (string, error)
}

// Answer is a completed response to one user query.
type Answer struct {
	Text      string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"sessionId"`
}

// Config collects the collaborators of a System.
type Config struct {
	Processor *course.Processor
	Index     SemanticIndex
	Generator AnswerGenerator
	Sessions  *session.Store
	Registry  *tools.Registry
	Logger    *slog.Logger
}

// System is the top-level facade: ingestion on one side, session-aware
// question answering on the other.
type System struct {
	processor *course.Processor
	index     SemanticIndex
	generator AnswerGenerator
	sessions  *session.Store
	registry  *tools.Registry
	logger    *slog.Logger
}

func New(cfg Config) *System {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		processor: cfg.Processor,
		index:     cfg.Index,
		generator: cfg.Generator,
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		logger:    logger,
	}
}

// Query answers one user question within a session. An empty sessionID
// allocates a fresh session. The exchange is recorded only after a
// successful generation, so failed requests leave history untouched.
func (s *System) Query(ctx context.Context, query, sessionID string) (Answer, error) {
	if sessionID == "" {
		sessionID = s.sessions.Create()
	}
	history := s.sessions.History(sessionID)

	rec := tools.NewSourceRecorder()
	prompt := fmt.Sprintf("Answer this question about course materials: %s", query)

	text, err := s.generator.Generate(ctx, prompt, history, s.registry, rec)
	if err != nil {
		return Answer{}, err
	}

	s.sessions.AddExchange(sessionID, query, text)
	return Answer{Text: text, Sources: rec.Sources(), SessionID: sessionID}, nil
}

// NewSession starts a fresh session, dropping the old one if given.
func (s *System) NewSession(oldSessionID string) string {
	if oldSessionID != "" {
		s.sessions.Delete(oldSessionID)
	}
	return s.sessions.Create()
}

// DeleteSession removes a session and its history.
func (s *System) DeleteSession(sessionID string) {
	s.sessions.Delete(sessionID)
}

// AddCourseDocument ingests one course document. Re-ingesting a known
// course replaces its catalog entry and chunks.
func (s *System) AddCourseDocument(ctx context.Context, path string) (course.Course, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return course.Course{}, 0, fmt.Errorf("reading %s: %w", path, err)
	}

	c, chunks, err := s.processor.Process(string(raw))
	if err != nil {
		return course.Course{}, 0, fmt.Errorf("processing %s: %w", path, err)
	}

	exists, err := s.index.HasCourse(ctx, c.Title)
	if err != nil {
		return course.Course{}, 0, err
	}
	if exists {
		s.logger.Info("replacing existing course", "title", c.Title)
		if err := s.index.DeleteCourse(ctx, c.Title); err != nil {
			return course.Course{}, 0, err
		}
	}

	if err := s.index.AddCourse(ctx, c); err != nil {
		return course.Course{}, 0, err
	}
	if err := s.index.AddChunks(ctx, chunks); err != nil {
		return course.Course{}, 0, err
	}

	s.logger.Info("ingested course document", "path", path, "title", c.Title, "chunks", len(chunks))
	return c, len(chunks), nil
}

// AddCourseFolder ingests every course document in dir, in name order.
// Courses already indexed are skipped; malformed documents are logged and
// skipped rather than aborting the whole run. With clear set, both
// collections are emptied first. Returns the number of courses and chunks
// added.
func (s *System) AddCourseFolder(ctx context.Context, dir string, clear bool) (int, int, error) {
	if clear {
		if err := s.index.Clear(ctx); err != nil {
			return 0, 0, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("reading folder %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var totalCourses, totalChunks int
	for _, e := range entries {
		if e.IsDir() || !isCourseFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable document", "path", path, "error", err)
			continue
		}
		c, chunks, err := s.processor.Process(string(raw))
		if err != nil {
			s.logger.Warn("skipping malformed document", "path", path, "error", err)
			continue
		}

		exists, err := s.index.HasCourse(ctx, c.Title)
		if err != nil {
			return totalCourses, totalChunks, err
		}
		if exists {
			s.logger.Debug("skipping already indexed course", "title", c.Title)
			continue
		}

		if err := s.index.AddCourse(ctx, c); err != nil {
			return totalCourses, totalChunks, err
		}
		if err := s.index.AddChunks(ctx, chunks); err != nil {
			return totalCourses, totalChunks, err
		}
		totalCourses++
		totalChunks += len(chunks)
		s.logger.Info("ingested course document", "path", path, "title", c.Title, "chunks", len(chunks))
	}
	return totalCourses, totalChunks, nil
}

// ClearCourses empties the semantic index.
func (s *System) ClearCourses(ctx context.Context) error {
	return s.index.Clear(ctx)
}

// GetStats reports the indexed corpus summary.
func (s *System) GetStats(ctx context.Context) (index.Stats, error) {
	return s.index.GetStats(ctx)
}

func isCourseFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	default:
		return false
	}
}
