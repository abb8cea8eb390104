package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/studyowl/coursechat/internal/log"
	"github.com/studyowl/coursechat/internal/tools"
)

type modelCall struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// fakeModel replays scripted responses and records every request.
type fakeModel struct {
	responses []*genai.GenerateContentResponse
	err       error
	calls     []modelCall
}

func (f *fakeModel) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, modelCall{contents: contents, config: config})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("fakeModel: out of scripted responses")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func toolCallResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: name, Args: args},
				}},
			},
		}},
	}
}

// stubTool answers every call with a fixed result.
type stubTool struct {
	name    string
	out     string
	err     error
	source  *tools.Source
	gotArgs map[string]any
	calls   int
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: s.name}
}

func (s *stubTool) Execute(_ context.Context, args map[string]any, rec *tools.SourceRecorder) (string, error) {
	s.calls++
	s.gotArgs = args
	if s.err != nil {
		return "", s.err
	}
	if s.source != nil {
		rec.Record(*s.source)
	}
	return s.out, nil
}

func hasTools(config *genai.GenerateContentConfig) bool {
	return len(config.Tools) > 0 && len(config.Tools[0].FunctionDeclarations) > 0
}

func systemText(config *genai.GenerateContentConfig) string {
	var out string
	for _, p := range config.SystemInstruction.Parts {
		out += p.Text
	}
	return out
}

func TestGenerate_DirectAnswer(t *testing.T) {
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		textResponse("Paris is the capital of France."),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	text, err := g.Generate(context.Background(), "capital of France?", "", reg, tools.NewSourceRecorder())
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", text)
	require.Len(t, model.calls, 1)
	assert.True(t, hasTools(model.calls[0].config), "first call should offer tools")
}

func TestGenerate_SingleToolRound(t *testing.T) {
	tool := &stubTool{
		name:   "search_course_content",
		out:    "[Go Basics - Lesson 1]\nGoroutines are lightweight.",
		source: &tools.Source{Text: "Go Basics - Lesson 1", Link: "https://example.com/l1"},
	}
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		toolCallResponse("search_course_content", map[string]any{"query": "goroutines"}),
		textResponse("Goroutines are lightweight threads managed by the runtime."),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(tool)
	rec := tools.NewSourceRecorder()

	text, err := g.Generate(context.Background(), "what are goroutines?", "", reg, rec)
	require.NoError(t, err)

	assert.Equal(t, "Goroutines are lightweight threads managed by the runtime.", text)
	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, map[string]any{"query": "goroutines"}, tool.gotArgs)

	require.Len(t, model.calls, 2)
	// Tools stay available when rounds remain.
	assert.True(t, hasTools(model.calls[1].config))

	// The follow-up request carries query, model turn and tool result.
	contents := model.calls[1].contents
	require.Len(t, contents, 3)
	fr := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "search_course_content", fr.Name)
	assert.Equal(t, tool.out, fr.Response["result"])

	require.Len(t, rec.Sources(), 1)
	assert.Equal(t, "Go Basics - Lesson 1", rec.Sources()[0].Text)
}

func TestGenerate_MaxRoundsForcesTextAnswer(t *testing.T) {
	tool := &stubTool{name: "search_course_content", out: "some content"}
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		toolCallResponse("search_course_content", map[string]any{"query": "first"}),
		toolCallResponse("search_course_content", map[string]any{"query": "second"}),
		textResponse("final answer"),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(tool)

	text, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	require.NoError(t, err)

	assert.Equal(t, "final answer", text)
	assert.Equal(t, 2, tool.calls)
	require.Len(t, model.calls, 3)
	assert.True(t, hasTools(model.calls[1].config))
	assert.False(t, hasTools(model.calls[2].config), "last round must force a text answer")
}

func TestGenerate_ToolErrorBecomesToolResult(t *testing.T) {
	tool := &stubTool{name: "search_course_content", err: errors.New("query parameter is required")}
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		toolCallResponse("search_course_content", map[string]any{}),
		textResponse("I could not search the course materials."),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(tool)

	text, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	require.NoError(t, err)
	assert.Equal(t, "I could not search the course materials.", text)

	fr := model.calls[1].contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "Tool execution failed: query parameter is required", fr.Response["result"])
}

func TestGenerate_UnknownToolBecomesToolResult(t *testing.T) {
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		toolCallResponse("fetch_web_page", map[string]any{"url": "https://example.com"}),
		textResponse("I can only use course tools."),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	text, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	require.NoError(t, err)
	assert.Equal(t, "I can only use course tools.", text)

	fr := model.calls[1].contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	result, _ := fr.Response["result"].(string)
	assert.Contains(t, result, "Tool execution failed:")
	assert.Contains(t, result, "unknown tool")
}

func TestGenerate_HistoryInSystemInstruction(t *testing.T) {
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		textResponse("answer"),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	history := "User: What is Go?\nAssistant: A programming language."
	_, err := g.Generate(context.Background(), "q", history, reg, tools.NewSourceRecorder())
	require.NoError(t, err)

	system := systemText(model.calls[0].config)
	assert.Contains(t, system, "Previous conversation:")
	assert.Contains(t, system, "User: What is Go?")
}

func TestGenerate_NoHistoryOmitsHeading(t *testing.T) {
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		textResponse("answer"),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	_, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	require.NoError(t, err)

	assert.NotContains(t, systemText(model.calls[0].config), "Previous conversation:")
}

func TestGenerate_ModelFailure(t *testing.T) {
	backendErr := errors.New("rate limited")
	model := &fakeModel{err: backendErr}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	_, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, backendErr)
}

func TestGenerate_EmptyAnswer(t *testing.T) {
	model := &fakeModel{responses: []*genai.GenerateContentResponse{
		textResponse(""),
	}}
	g := newGenerator(model, "test-model", 2, log.NewNop())
	reg := tools.NewRegistry(&stubTool{name: "search_course_content"})

	_, err := g.Generate(context.Background(), "q", "", reg, tools.NewSourceRecorder())
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
