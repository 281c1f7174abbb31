package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/worldview-rag/internal/completion"
	"github.com/bull/worldview-rag/internal/retrieval"
	"github.com/bull/worldview-rag/internal/vectorstore"
	"github.com/bull/worldview-rag/internal/worldview"
)

type fakeRetriever struct {
	calls     int
	filter    *vectorstore.Filter
	namespace string
	results   []retrieval.Result
	err       error
}

func (f *fakeRetriever) Search(_ context.Context, _ string, _ int, filter *vectorstore.Filter, namespace string) ([]retrieval.Result, error) {
	f.calls++
	f.filter = filter
	f.namespace = namespace
	return f.results, f.err
}

type fakeCompleter struct {
	req  completion.Request
	resp *completion.Response
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func okResponse() *completion.Response {
	return &completion.Response{
		Content:          "Antwort.",
		Model:            completion.ChatModel,
		PromptTokens:     1000,
		CompletionTokens: 500,
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 12)
	for _, w := range worldview.All() {
		def, ok := defs[w]
		require.True(t, ok, "missing assistant for %s", w)
		assert.NotEmpty(t, def.Instructions)
		assert.Equal(t, completion.ChatModel, def.Model)
		assert.Equal(t, completion.ReasonerModel, def.SpecializedModel)
		assert.Equal(t, DefaultTemperature, def.Temperature)
		assert.Equal(t, DefaultMaxTokens, def.MaxTokens)
	}
}

func TestClassifier(t *testing.T) {
	c, err := NewClassifier()
	require.NoError(t, err)
	assert.True(t, c.Analytical("What did Kant say about duty?"))
	assert.True(t, c.Analytical("Do humans have free will?"))
	assert.True(t, c.Analytical("Gibt es einen freien Willen?"))
	assert.False(t, c.Analytical("what's the weather today"))
	assert.False(t, c.Analytical("Hallo, wer bist du?"))
}

func TestClassifier_CustomPatterns(t *testing.T) {
	c, err := NewClassifier(`(?i)\bwetter\b`)
	require.NoError(t, err)
	assert.True(t, c.Analytical("Wie wird das Wetter?"))
	assert.False(t, c.Analytical("What did Kant say?"))

	_, err = NewClassifier(`(`)
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	retriever := &fakeRetriever{
		results: []retrieval.Result{
			{Text: "Die Materie ist alles.", Score: 0.9,
				Metadata: vectorstore.ChunkMetadata{Title: "Kraft und Stoff"}},
		},
	}
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(retriever, completer, nil)

	answer, err := r.Ask(context.Background(), "Materialismus", "Was ist Stoff?", nil)
	require.NoError(t, err)

	assert.Equal(t, "Antwort.", answer.Content)
	assert.Equal(t, completion.ChatModel, answer.Model)
	require.Len(t, answer.Sources, 1)

	// Retrieval is scoped to the worldview.
	require.NotNil(t, retriever.filter)
	assert.Equal(t, "Materialismus", retriever.filter.Category)
	assert.Equal(t, "Materialismus", retriever.namespace)

	// System message carries the quoted passages.
	require.NotEmpty(t, completer.req.Messages)
	system := completer.req.Messages[0]
	assert.Equal(t, completion.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Relevante Textstellen aus der Wissensbasis:")
	assert.Contains(t, system.Content, "[1] Kraft und Stoff (Score: 0.900): Die Materie ist alles....")

	// Cost: 1000 * 0.14/1M + 500 * 0.28/1M.
	assert.InDelta(t, 0.00028, answer.Cost, 1e-9)
}

func TestAsk_UnknownWorldview(t *testing.T) {
	r := NewRouter(&fakeRetriever{}, &fakeCompleter{resp: okResponse()}, nil)

	_, err := r.Ask(context.Background(), "Nihilismus", "Frage?", nil)
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestAsk_AnalyticalRouting(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	answer, err := r.Ask(context.Background(), "Idealismus",
		"How does Kant derive the categorical imperative?", nil)
	require.NoError(t, err)

	assert.Equal(t, completion.ReasonerModel, answer.Model)
	assert.Equal(t, completion.ReasonerModel, completer.req.Model)
	assert.InDelta(t, reasonerTemperatureCap, completer.req.Temperature, 1e-9,
		"temperature is capped for the reasoning model")
}

func TestAsk_WithoutKnowledgeBase(t *testing.T) {
	retriever := &fakeRetriever{
		results: []retrieval.Result{{Text: "Kontext.", Score: 0.9}},
	}
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(retriever, completer, nil)

	answer, err := r.Ask(context.Background(), "Idealismus", "Frage?", nil,
		AskOptions{DisableKnowledgeBase: true})
	require.NoError(t, err)

	assert.Zero(t, retriever.calls, "knowledge base must not be consulted")
	assert.Empty(t, answer.Sources)
	assert.False(t, strings.Contains(completer.req.Messages[0].Content, "Relevante Textstellen"))
}

func TestAsk_TemperatureOverride(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	_, err := r.Ask(context.Background(), "Realismus", "Was ist wirklich?", nil,
		AskOptions{Temperature: 1.2})
	require.NoError(t, err)
	assert.InDelta(t, 1.2, completer.req.Temperature, 1e-9)

	// The analytical clamp still applies on top of an override.
	_, err = r.Ask(context.Background(), "Realismus",
		"What did Kant say about the thing in itself?", nil,
		AskOptions{Temperature: 1.2})
	require.NoError(t, err)
	assert.InDelta(t, reasonerTemperatureCap, completer.req.Temperature, 1e-9)
}

func TestAsk_RetrievalFailureDegrades(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{err: errors.New("index down")}, completer, nil)

	answer, err := r.Ask(context.Background(), "Realismus", "Was ist wirklich?", nil)
	require.NoError(t, err, "a dead index must not block the assistant")
	assert.Empty(t, answer.Sources)
	assert.False(t, strings.Contains(completer.req.Messages[0].Content, "Relevante Textstellen"))
}

func TestAsk_HistoryOrdering(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	history := []completion.Message{
		{Role: completion.RoleUser, Content: "Frühere Frage?"},
		{Role: completion.RoleAssistant, Content: "Frühere Antwort."},
	}
	_, err := r.Ask(context.Background(), "Psychismus", "Neue Frage?", history)
	require.NoError(t, err)

	msgs := completer.req.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, completion.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Frühere Frage?", msgs[1].Content)
	assert.Equal(t, "Frühere Antwort.", msgs[2].Content)
	assert.Equal(t, "Neue Frage?", msgs[3].Content)
}

func TestUsageTracking(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	_, err := r.Ask(context.Background(), "Sensualismus", "Frage eins?", nil)
	require.NoError(t, err)
	_, err = r.Ask(context.Background(), "Sensualismus", "Frage zwei?", nil)
	require.NoError(t, err)

	u, err := r.Usage("Sensualismus")
	require.NoError(t, err)
	assert.Equal(t, 2, u.Requests)
	assert.Equal(t, int64(2000), u.PromptTokens)
	assert.Equal(t, int64(1000), u.CompletionTokens)
	assert.InDelta(t, 0.00056, u.TotalCost, 1e-9)
	assert.InDelta(t, 0.00056, u.DailyCost, 1e-9)

	other, err := r.Usage("Realismus")
	require.NoError(t, err)
	assert.Zero(t, other.Requests, "usage is tracked per worldview")
}

func TestTotalUsage(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	_, err := r.Ask(context.Background(), "Dynamismus", "Frage?", nil)
	require.NoError(t, err)
	_, err = r.Ask(context.Background(), "Mathematismus", "Frage?", nil)
	require.NoError(t, err)

	total := r.TotalUsage()
	assert.Equal(t, 2, total.Requests)
	assert.Equal(t, int64(2000), total.PromptTokens)
	assert.InDelta(t, 0.00056, total.TotalCost, 1e-9)
	assert.InDelta(t, 0.00056, total.DailyCost, 1e-9)
}

func TestUsage_UntouchedOnFailure(t *testing.T) {
	r := NewRouter(&fakeRetriever{}, &fakeCompleter{err: errors.New("model down")}, nil)

	_, err := r.Ask(context.Background(), "Pneumatismus", "Frage?", nil)
	require.Error(t, err)

	u, err := r.Usage("Pneumatismus")
	require.NoError(t, err)
	assert.Zero(t, u.Requests)
	assert.Zero(t, u.TotalCost)
}

func TestUsage_DailyCostReset(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return day }

	_, err := r.Ask(context.Background(), "Rationalismus", "Frage?", nil)
	require.NoError(t, err)

	day = day.Add(24 * time.Hour)
	_, err = r.Ask(context.Background(), "Rationalismus", "Frage?", nil)
	require.NoError(t, err)

	u, err := r.Usage("Rationalismus")
	require.NoError(t, err)
	assert.InDelta(t, 0.00056, u.TotalCost, 1e-9, "total cost spans days")
	assert.InDelta(t, 0.00028, u.DailyCost, 1e-9, "daily cost resets at the date change")
}

func TestUsage_DailyCostCurrentOnRead(t *testing.T) {
	completer := &fakeCompleter{resp: okResponse()}
	r := NewRouter(&fakeRetriever{}, completer, nil)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return day }

	_, err := r.Ask(context.Background(), "Realismus", "Frage?", nil)
	require.NoError(t, err)

	// A read after the date change, with no new queries, must not report
	// yesterday's spend as today's.
	day = day.Add(24 * time.Hour)

	u, err := r.Usage("Realismus")
	require.NoError(t, err)
	assert.Zero(t, u.DailyCost)
	assert.InDelta(t, 0.00028, u.TotalCost, 1e-9)

	total := r.TotalUsage()
	assert.Zero(t, total.DailyCost)
	assert.InDelta(t, 0.00028, total.TotalCost, 1e-9)
}
