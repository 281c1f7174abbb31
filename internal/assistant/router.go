package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bull/worldview-rag/internal/completion"
	"github.com/bull/worldview-rag/internal/retrieval"
	"github.com/bull/worldview-rag/internal/vectorstore"
	"github.com/bull/worldview-rag/internal/worldview"
)

const (
	// contextTopK is how many knowledge-base chunks ground each answer.
	contextTopK = 5

	// contextTextLimit caps each quoted passage in the system message.
	contextTextLimit = 500

	// reasonerTemperatureCap keeps the reasoning model deterministic
	// enough for analytical questions.
	reasonerTemperatureCap = 0.5
)

// DeepSeek token rates in dollars per token.
const (
	inputTokenRate  = 0.00000014
	outputTokenRate = 0.00000028
)

// ErrAssistantNotFound indicates a category with no registered assistant.
var ErrAssistantNotFound = errors.New("assistant not found")

// Retriever finds knowledge-base chunks for a question.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter *vectorstore.Filter, namespace string) ([]retrieval.Result, error)
}

// Completer generates the assistant's answer.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Classifier decides whether a question warrants the reasoning model.
type Classifier struct {
	patterns []*regexp.Regexp
}

// Questions matching any of these go to the reasoning model: named
// philosophers and classical problem areas where chain-of-thought
// answers measurably better.
var defaultPatterns = []string{
	`(?i)\bkant\b`,
	`(?i)\bhegel\b`,
	`(?i)\bfichte\b`,
	`(?i)\bschelling\b`,
	`(?i)\bnietzsche\b`,
	`(?i)\bschopenhauer\b`,
	`(?i)free will`,
	`(?i)freier? Wille`,
	`(?i)\bethi[ck]`,
	`(?i)\bmoral`,
	`(?i)metaphysi`,
	`(?i)epistemolog`,
	`(?i)erkenntnistheorie`,
	`(?i)categorical imperative`,
	`(?i)kategorischer? Imperativ`,
	`(?i)determinis`,
	`(?i)consciousness`,
	`(?i)bewusstsein`,
}

// NewClassifier builds a classifier. With no arguments the default
// pattern set is used; callers with their own routing policy pass their
// own expressions.
func NewClassifier(patterns ...string) (*Classifier, error) {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("classifier pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return &Classifier{patterns: compiled}, nil
}

func defaultClassifier() *Classifier {
	c, err := NewClassifier()
	if err != nil {
		panic(err) // Default patterns are compile-time constants
	}
	return c
}

// Analytical reports whether question should be routed to the
// reasoning model.
func (c *Classifier) Analytical(question string) bool {
	for _, p := range c.patterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

// Usage accumulates one assistant's token and cost counters.
type Usage struct {
	Requests         int
	PromptTokens     int64
	CompletionTokens int64
	TotalCost        float64
	DailyCost        float64
	day              string
}

// Answer is one assistant response with its grounding and cost.
type Answer struct {
	Content          string
	Model            string
	Sources          []retrieval.Result
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Router dispatches questions to worldview assistants.
type Router struct {
	defs       map[worldview.Worldview]Definition
	retriever  Retriever
	completer  Completer
	classifier *Classifier
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	usage map[worldview.Worldview]*Usage
}

func NewRouter(retriever Retriever, completer Completer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		defs:       Definitions(),
		retriever:  retriever,
		completer:  completer,
		classifier: defaultClassifier(),
		logger:     logger,
		now:        time.Now,
		usage:      make(map[worldview.Worldview]*Usage),
	}
}

// SetClassifier swaps the model-routing policy. Call before serving.
func (r *Router) SetClassifier(c *Classifier) {
	if c != nil {
		r.classifier = c
	}
}

// Assistants returns the registered definitions in canonical order.
func (r *Router) Assistants() []Definition {
	defs := make([]Definition, 0, len(r.defs))
	for _, w := range worldview.All() {
		defs = append(defs, r.defs[w])
	}
	return defs
}

// AskOptions are per-call overrides. The zero value means: consult the
// knowledge base, use the assistant's default temperature.
type AskOptions struct {
	DisableKnowledgeBase bool
	Temperature          float64 // <= 0 means the assistant default
}

// Ask answers question from the named worldview's perspective. history
// carries prior turns of the conversation, oldest first. Retrieval
// failures degrade to an answer without knowledge-base grounding.
func (r *Router) Ask(ctx context.Context, category string, question string, history []completion.Message, opts ...AskOptions) (*Answer, error) {
	var opt AskOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	w, err := worldview.Parse(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssistantNotFound, err)
	}
	def, ok := r.defs[w]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssistantNotFound, category)
	}
	r.rollDay(w)

	var sources []retrieval.Result
	if !opt.DisableKnowledgeBase {
		sources, err = r.retriever.Search(ctx, question, contextTopK,
			&vectorstore.Filter{Category: string(w)}, string(w))
		if err != nil {
			r.logger.Warn("Knowledge base unavailable, answering without context",
				"worldview", w, "error", err)
			sources = nil
		}
	}

	model := def.Model
	temperature := def.Temperature
	if opt.Temperature > 0 {
		temperature = opt.Temperature
	}
	if r.classifier.Analytical(question) {
		model = def.SpecializedModel
		temperature = min(temperature, reasonerTemperatureCap)
	}

	messages := make([]completion.Message, 0, len(history)+2)
	messages = append(messages, completion.Message{
		Role:    completion.RoleSystem,
		Content: systemMessage(def, sources),
	})
	messages = append(messages, history...)
	messages = append(messages, completion.Message{
		Role:    completion.RoleUser,
		Content: question,
	})

	resp, err := r.completer.Complete(ctx, completion.Request{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   def.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	cost := r.record(w, resp)
	r.logger.Info("Assistant answered",
		"worldview", w, "model", model, "sources", len(sources),
		"prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens)

	return &Answer{
		Content:          resp.Content,
		Model:            model,
		Sources:          sources,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             cost,
	}, nil
}

// systemMessage builds the assistant instructions, appending quoted
// knowledge-base passages when retrieval produced any.
func systemMessage(def Definition, sources []retrieval.Result) string {
	if len(sources) == 0 {
		return def.Instructions
	}

	var sb strings.Builder
	sb.WriteString(def.Instructions)
	sb.WriteString("\n\nRelevante Textstellen aus der Wissensbasis:\n")
	for i, s := range sources {
		label := s.Metadata.Title
		if label == "" {
			label = s.Metadata.Filename
		}
		text := s.Text
		if runes := []rune(text); len(runes) > contextTextLimit {
			text = string(runes[:contextTextLimit])
		}
		sb.WriteString(fmt.Sprintf("[%d] %s (Score: %.3f): %s...\n", i+1, label, s.Score, text))
	}
	return sb.String()
}

// rollover zeroes the daily counter when the date has changed. The
// caller must hold the mutex.
func rollover(u *Usage, today string) {
	if u.day != today {
		u.day = today
		u.DailyCost = 0
	}
}

// rollDay applies the date rollover for one worldview's counters. Runs
// at the start of every Ask, so the daily spend is current even before
// the first completion of the day.
func (r *Router) rollDay(w worldview.Worldview) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.usage[w]
	if u == nil {
		u = &Usage{}
		r.usage[w] = u
	}
	rollover(u, r.now().Format("2006-01-02"))
}

// record updates the worldview's usage counters and returns the cost of
// this response. Counters are only touched on success, so a failed call
// never inflates the spend.
func (r *Router) record(w worldview.Worldview, resp *completion.Response) float64 {
	cost := float64(resp.PromptTokens)*inputTokenRate +
		float64(resp.CompletionTokens)*outputTokenRate

	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.usage[w]
	if u == nil {
		u = &Usage{}
		r.usage[w] = u
	}
	// A call can span midnight between rollDay and here.
	rollover(u, r.now().Format("2006-01-02"))

	u.Requests++
	u.PromptTokens += resp.PromptTokens
	u.CompletionTokens += resp.CompletionTokens
	u.TotalCost += cost
	u.DailyCost += cost
	return cost
}

// Usage returns a snapshot of one worldview's counters.
func (r *Router) Usage(category string) (Usage, error) {
	w, err := worldview.Parse(category)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %v", ErrAssistantNotFound, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.usage[w]; u != nil {
		snapshot := *u
		rollover(&snapshot, r.now().Format("2006-01-02"))
		return snapshot, nil
	}
	return Usage{}, nil
}

// TotalUsage aggregates the counters of every assistant. The daily cost
// sums only assistants whose last activity was today.
func (r *Router) TotalUsage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().Format("2006-01-02")
	var total Usage
	for _, u := range r.usage {
		total.Requests += u.Requests
		total.PromptTokens += u.PromptTokens
		total.CompletionTokens += u.CompletionTokens
		total.TotalCost += u.TotalCost
		if u.day == today {
			total.DailyCost += u.DailyCost
		}
	}
	return total
}
