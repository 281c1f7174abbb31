// Package rag assembles retrieval-augmented prompts: the last user
// message of a transcript is rewritten to carry retrieved context before
// the transcript goes to the completion model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/worldview-rag/internal/completion"
	"github.com/bull/worldview-rag/internal/retrieval"
	"github.com/bull/worldview-rag/internal/vectorstore"
)

// DefaultSystemPrompt is prepended when the transcript has no system
// message of its own.
const DefaultSystemPrompt = "You are a helpful assistant that answers questions based on the provided context."

// ErrNoUserMessage indicates a transcript with nothing to augment.
var ErrNoUserMessage = errors.New("transcript contains no user message")

// Retriever finds context chunks for a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter *vectorstore.Filter, namespace string) ([]retrieval.Result, error)
}

// Completer generates the final answer.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Options control retrieval for one generation.
type Options struct {
	TopK      int
	Filter    *vectorstore.Filter
	Namespace string
}

// Assembler wires retrieval into chat completion.
type Assembler struct {
	retriever Retriever
	completer Completer
	logger    *slog.Logger
}

func NewAssembler(retriever Retriever, completer Completer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{retriever: retriever, completer: completer, logger: logger}
}

// BuildPrompt formats retrieved chunks around the original question.
// With no results the wrapper is still emitted with an empty context
// section, so an empty index degrades gracefully and the model sees the
// same prompt shape either way.
func BuildPrompt(question string, results []retrieval.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Document %d: %s", i+1, r.Text)
	}

	return fmt.Sprintf(
		"Context information:\n%s\n\nUser question: %s\n\nPlease answer based on the context information provided.",
		strings.Join(blocks, "\n\n"), question)
}

// Augment retrieves context for the last user message and returns a new
// transcript with that message rewritten. Every other message is carried
// over untouched. The retrieved results are returned for citation.
func (a *Assembler) Augment(ctx context.Context, messages []completion.Message, opts Options) ([]completion.Message, []retrieval.Result, error) {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == completion.RoleUser {
			last = i
			break
		}
	}
	if last == -1 {
		return nil, nil, ErrNoUserMessage
	}

	question := messages[last].Content
	results, err := a.retriever.Search(ctx, question, opts.TopK, opts.Filter, opts.Namespace)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve context: %w", err)
	}

	augmented := make([]completion.Message, len(messages))
	copy(augmented, messages)
	augmented[last].Content = BuildPrompt(question, results)

	a.logger.Debug("Augmented transcript", "context_chunks", len(results))
	return augmented, results, nil
}

// Generate runs the full loop: augment the transcript, prepend the
// default system prompt when none is present, and complete. The
// retrieved results are returned alongside the answer.
func (a *Assembler) Generate(ctx context.Context, req completion.Request, opts Options) (*completion.Response, []retrieval.Result, error) {
	augmented, results, err := a.Augment(ctx, req.Messages, opts)
	if err != nil {
		return nil, nil, err
	}

	if len(augmented) == 0 || augmented[0].Role != completion.RoleSystem {
		augmented = append([]completion.Message{
			{Role: completion.RoleSystem, Content: DefaultSystemPrompt},
		}, augmented...)
	}

	req.Messages = augmented
	resp, err := a.completer.Complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp, results, nil
}
