// Package index implements the dual-collection semantic store: a course
// catalog used to resolve fuzzy course names to canonical titles, and a
// content collection holding the embedded course chunks.
//
// The vector database is abstracted behind the unexported collection
// interface (defined here, by the consumer); chroma.go provides the
// ChromaDB-backed implementation.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/studyowl/coursechat/internal/course"
)

// Logical collection names in the backing store.
const (
	catalogCollection = "course_catalog"
	contentCollection = "course_content"
)

var (
	// ErrCourseNotFound indicates a course filter was requested while no
	// courses are indexed. Low-similarity matches never produce this error:
	// the nearest catalog entry is accepted unconditionally.
	ErrCourseNotFound = errors.New("no courses indexed")

	// ErrUnavailable indicates the backing vector store is unreachable.
	ErrUnavailable = errors.New("semantic index unavailable")
)

// unavailable wraps a backend failure so callers can match ErrUnavailable
// while keeping the underlying cause in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// entry is one stored record of a collection.
type entry struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// collection abstracts the slice of a vector-database collection the Store
// uses. Implementations must return Query results in similarity rank order.
type collection interface {
	// Add upserts entries with their precomputed embeddings.
	Add(ctx context.Context, entries []entry, embeddings [][]float32) error

	// Query returns up to n nearest neighbors of embedding, restricted to
	// entries whose metadata equals every key/value pair in where.
	Query(ctx context.Context, embedding []float32, n int, where map[string]any) ([]entry, error)

	// Get fetches entries by id; ids not present are silently absent from
	// the result. A nil ids slice fetches everything.
	Get(ctx context.Context, ids []string) ([]entry, error)

	// Delete removes entries by id and/or metadata equality. Both nil
	// deletes everything.
	Delete(ctx context.Context, ids []string, where map[string]any) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

// SearchResult is one content hit, in similarity rank order.
type SearchResult struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	Link         string
}

// Outline is the structural metadata of one course.
type Outline struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []course.Lesson
}

// Stats summarizes the indexed corpus.
type Stats struct {
	TotalCourses int      `json:"totalCourses"`
	CourseTitles []string `json:"courseTitles"`
}

// Store is the semantic index over the two collections.
// Store is safe for concurrent readers; ingestion is expected to run before
// query serving starts.
type Store struct {
	catalog    collection
	content    collection
	embedder   Embedder
	maxResults int
	logger     *slog.Logger
	closer     interface{ Close() error }
}

// Close releases the backing client connection, if any.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func newStore(catalog, content collection, embedder Embedder, maxResults int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:    catalog,
		content:    content,
		embedder:   embedder,
		maxResults: maxResults,
		logger:     logger,
	}
}

// AddCourse indexes one catalog entry, keyed by the course title. The
// embedding is computed over the title so fuzzy user-provided names resolve
// to it. Re-adding the same title replaces the previous entry (the backend
// only inserts, so upsert is emulated by delete-then-add).
func (s *Store) AddCourse(ctx context.Context, c course.Course) error {
	lessonsJSON, err := json.Marshal(c.Lessons)
	if err != nil {
		return fmt.Errorf("marshaling lessons for %q: %w", c.Title, err)
	}

	emb, err := s.embedder.EmbedDocuments(ctx, []string{c.Title})
	if err != nil {
		return fmt.Errorf("embedding course title %q: %w", c.Title, err)
	}

	if err := s.catalog.Delete(ctx, []string{c.Title}, nil); err != nil {
		return unavailable("replacing catalog entry", err)
	}

	meta := map[string]any{
		"title":        c.Title,
		"lessons_json": string(lessonsJSON),
		"lesson_count": len(c.Lessons),
	}
	if c.Link != "" {
		meta["course_link"] = c.Link
	}
	if c.Instructor != "" {
		meta["instructor"] = c.Instructor
	}

	err = s.catalog.Add(ctx, []entry{{ID: c.Title, Text: c.Title, Metadata: meta}}, emb)
	if err != nil {
		return unavailable("adding catalog entry", err)
	}

	s.logger.Debug("indexed course metadata", "title", c.Title, "lessons", len(c.Lessons))
	return nil
}

// AddChunks indexes content chunks, embedded over their header-prefixed
// text. Chunk ids are composed from course title and chunk index, so
// re-ingesting a course overwrites its chunks.
func (s *Store) AddChunks(ctx context.Context, chunks []course.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	embs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(embs) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embs), len(chunks))
	}

	entries := make([]entry, len(chunks))
	for i, ch := range chunks {
		meta := map[string]any{
			"course_title": ch.CourseTitle,
			"chunk_index":  ch.Index,
		}
		if ch.LessonNumber != nil {
			meta["lesson_number"] = *ch.LessonNumber
		}
		if ch.LessonLink != "" {
			meta["lesson_link"] = ch.LessonLink
		}
		entries[i] = entry{
			ID:       fmt.Sprintf("%s::%d", ch.CourseTitle, ch.Index),
			Text:     ch.Content,
			Metadata: meta,
		}
	}

	if err := s.content.Add(ctx, entries, embs); err != nil {
		return unavailable("adding content chunks", err)
	}

	s.logger.Debug("indexed content chunks", "count", len(chunks))
	return nil
}

// ResolveCourseTitle resolves a fuzzy course name to the canonical title of
// the nearest catalog entry. The top-1 match is always accepted when the
// catalog is non-empty; ErrCourseNotFound is returned only for an empty
// catalog.
func (s *Store) ResolveCourseTitle(ctx context.Context, query string) (string, error) {
	n, err := s.catalog.Count(ctx)
	if err != nil {
		return "", unavailable("counting catalog", err)
	}
	if n == 0 {
		return "", fmt.Errorf("resolving %q: %w", query, ErrCourseNotFound)
	}

	emb, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding course name %q: %w", query, err)
	}

	hits, err := s.catalog.Query(ctx, emb, 1, nil)
	if err != nil {
		return "", unavailable("querying catalog", err)
	}
	if len(hits) == 0 {
		return "", fmt.Errorf("resolving %q: %w", query, ErrCourseNotFound)
	}

	if title, ok := hits[0].Metadata["title"].(string); ok && title != "" {
		return title, nil
	}
	return hits[0].ID, nil
}

// Search runs a nearest-neighbor search over the content collection,
// optionally filtered by a fuzzy course name and/or an exact lesson number.
// Results come back in similarity rank order, at most maxResults of them;
// an empty slice (not an error) means nothing matched.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber *int) ([]SearchResult, error) {
	where := map[string]any{}

	if courseName != "" {
		title, err := s.ResolveCourseTitle(ctx, courseName)
		if err != nil {
			return nil, err
		}
		where["course_title"] = title
	}
	if lessonNumber != nil {
		where["lesson_number"] = *lessonNumber
	}

	emb, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.content.Query(ctx, emb, s.maxResults, where)
	if err != nil {
		return nil, unavailable("querying content", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		r := SearchResult{Content: h.Text}
		if t, ok := h.Metadata["course_title"].(string); ok {
			r.CourseTitle = t
		}
		if n, ok := metaInt(h.Metadata, "lesson_number"); ok {
			r.LessonNumber = &n
		}
		if l, ok := h.Metadata["lesson_link"].(string); ok {
			r.Link = l
		}
		results = append(results, r)
	}
	return results, nil
}

// Outline returns the structural metadata of the course best matching
// courseName.
func (s *Store) Outline(ctx context.Context, courseName string) (Outline, error) {
	title, err := s.ResolveCourseTitle(ctx, courseName)
	if err != nil {
		return Outline{}, err
	}

	entries, err := s.catalog.Get(ctx, []string{title})
	if err != nil {
		return Outline{}, unavailable("fetching catalog entry", err)
	}
	if len(entries) == 0 {
		return Outline{}, fmt.Errorf("catalog entry %q vanished: %w", title, ErrCourseNotFound)
	}

	o := Outline{Title: title}
	meta := entries[0].Metadata
	if l, ok := meta["course_link"].(string); ok {
		o.Link = l
	}
	if in, ok := meta["instructor"].(string); ok {
		o.Instructor = in
	}
	if lj, ok := meta["lessons_json"].(string); ok && lj != "" {
		if err := json.Unmarshal([]byte(lj), &o.Lessons); err != nil {
			return Outline{}, fmt.Errorf("decoding lessons for %q: %w", title, err)
		}
	}
	return o, nil
}

// HasCourse reports whether a course with exactly this title is indexed.
func (s *Store) HasCourse(ctx context.Context, title string) (bool, error) {
	entries, err := s.catalog.Get(ctx, []string{title})
	if err != nil {
		return false, unavailable("fetching catalog entry", err)
	}
	return len(entries) > 0, nil
}

// DeleteCourse removes a course's catalog entry and all of its chunks.
func (s *Store) DeleteCourse(ctx context.Context, title string) error {
	if err := s.catalog.Delete(ctx, []string{title}, nil); err != nil {
		return unavailable("deleting catalog entry", err)
	}
	if err := s.content.Delete(ctx, nil, map[string]any{"course_title": title}); err != nil {
		return unavailable("deleting course chunks", err)
	}
	return nil
}

// Clear removes everything from both collections.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.catalog.Delete(ctx, nil, nil); err != nil {
		return unavailable("clearing catalog", err)
	}
	if err := s.content.Delete(ctx, nil, nil); err != nil {
		return unavailable("clearing content", err)
	}
	s.logger.Info("cleared semantic index")
	return nil
}

// GetStats returns the corpus summary: course count and sorted titles.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	entries, err := s.catalog.Get(ctx, nil)
	if err != nil {
		return Stats{}, unavailable("listing catalog", err)
	}

	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.ID)
	}
	sort.Strings(titles)

	return Stats{TotalCourses: len(titles), CourseTitles: titles}, nil
}

// metaInt reads an integer metadata value, tolerating the numeric types a
// JSON round-trip may produce.
func metaInt(meta map[string]any, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
