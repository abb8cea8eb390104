package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/studyowl/coursechat/internal/course"
	"github.com/studyowl/coursechat/internal/log"
)

// startChroma launches a throwaway ChromaDB server and returns its base URL.
func startChroma(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "chromadb/chroma:1.0.0",
		ExposedPorts: []string{"8000/tcp"},
		WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(60 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Skipping: cannot start chroma container: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "8000")
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestChromaStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	baseURL := startChroma(t, ctx)

	// The deterministic fake embedder keeps the test independent of any
	// external embeddings API.
	store, err := NewChromaStore(ctx, baseURL, fakeEmbedder{}, 5, log.NewNop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Clear(ctx))

	c := sampleCourse("Building RAG Systems")
	require.NoError(t, store.AddCourse(ctx, c))
	require.NoError(t, store.AddChunks(ctx, []course.Chunk{
		{
			Content:      "Course Building RAG Systems Lesson 1: Retrieval grounds the generator in indexed text.",
			CourseTitle:  c.Title,
			LessonNumber: intPtr(1),
			LessonLink:   "https://example.com/l1",
			Index:        0,
		},
		{
			Content:      "Course Building RAG Systems Lesson 2: Chunk overlap preserves context across boundaries.",
			CourseTitle:  c.Title,
			LessonNumber: intPtr(2),
			LessonLink:   "https://example.com/l2",
			Index:        1,
		},
	}))

	title, err := store.ResolveCourseTitle(ctx, "Building RAG Systems")
	require.NoError(t, err)
	assert.Equal(t, c.Title, title)

	results, err := store.Search(ctx,
		"Course Building RAG Systems Lesson 2: Chunk overlap preserves context across boundaries.",
		"", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, c.Title, results[0].CourseTitle)
	require.NotNil(t, results[0].LessonNumber)
	assert.Equal(t, 2, *results[0].LessonNumber)

	filtered, err := store.Search(ctx, "retrieval", c.Title, intPtr(1))
	require.NoError(t, err)
	for _, r := range filtered {
		require.NotNil(t, r.LessonNumber)
		assert.Equal(t, 1, *r.LessonNumber)
	}

	o, err := store.Outline(ctx, "rag systems")
	require.NoError(t, err)
	assert.Equal(t, c.Title, o.Title)
	assert.Len(t, o.Lessons, 2)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCourses)

	require.NoError(t, store.DeleteCourse(ctx, c.Title))
	stats, err = store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCourses)
}
