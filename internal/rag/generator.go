package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/studyowl/coursechat/internal/tools"
)

// ErrGenerationFailed indicates the model backend rejected or failed a
// generation request.
var ErrGenerationFailed = errors.New("generation failed")

// maxOutputTokens bounds answer length; answers are meant to be brief.
const maxOutputTokens = 800

// modelClient is the slice of the genai client the generator uses.
type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// genaiModels adapts *genai.Client to modelClient.
type genaiModels struct {
	client *genai.Client
}

func (g genaiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return g.client.Models.GenerateContent(ctx, model, contents, config)
}

// Generator runs the tool-calling generation loop: prompt the model with
// tools, execute any function calls it makes, feed the results back, and
// repeat for at most maxToolRounds rounds before forcing a plain text
// answer.
type Generator struct {
	model         modelClient
	modelName     string
	maxToolRounds int
	logger        *slog.Logger
}

// NewGenerator wraps an existing genai client.
func NewGenerator(client *genai.Client, modelName string, maxToolRounds int, logger *slog.Logger) *Generator {
	return newGenerator(genaiModels{client: client}, modelName, maxToolRounds, logger)
}

func newGenerator(model modelClient, modelName string, maxToolRounds int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		model:         model,
		modelName:     modelName,
		maxToolRounds: maxToolRounds,
		logger:        logger,
	}
}

// Generate answers query with the registry's tools available. history, when
// non-empty, is appended to the system instruction. Tool failures are
// reported back to the model as textual results rather than aborting the
// generation; only model backend failures return an error.
func (g *Generator) Generate(ctx context.Context, query, history string, reg *tools.Registry, rec *tools.SourceRecorder) (string, error) {
	system := systemPrompt
	if history != "" {
		system += "\n\nPrevious conversation:\n" + history
	}

	baseConfig := genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   maxOutputTokens,
	}
	withTools := baseConfig
	withTools.Tools = []*genai.Tool{{FunctionDeclarations: reg.Declarations()}}

	contents := []*genai.Content{genai.NewContentFromText(query, genai.RoleUser)}

	resp, err := g.model.GenerateContent(ctx, g.modelName, contents, &withTools)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	for round := 0; round < g.maxToolRounds; round++ {
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			break
		}

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out, err := reg.Execute(ctx, call.Name, call.Args, rec)
			if err != nil {
				// The model gets to see the failure and work around it.
				g.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
				out = fmt.Sprintf("Tool execution failed: %v", err)
			}
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{"result": out}))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

		// The last round gets no tools, forcing a text answer.
		config := &withTools
		if round == g.maxToolRounds-1 {
			config = &baseConfig
		}
		resp, err = g.model.GenerateContent(ctx, g.modelName, contents, config)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: model returned no text", ErrGenerationFailed)
	}
	return text, nil
}
