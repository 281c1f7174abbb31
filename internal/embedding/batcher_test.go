package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend returns a deterministic vector per text and records every
// sub-batch it receives.
type fakeBackend struct {
	calls   [][]string
	failOn  int // 1-based call number to fail on, 0 = never
	callNum int
}

func (f *fakeBackend) embed(_ context.Context, texts []string) ([][]float32, error) {
	f.callNum++
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.failOn != 0 && f.callNum == f.failOn {
		return nil, errors.New("backend down")
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text)), float32(text[0])}
	}
	return vecs, nil
}

func TestNewBatcher_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewBatcher(0)
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	b, err := NewBatcher(4)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestEmbedBatch_PreservesOrderAcrossSubBatches(t *testing.T) {
	be := &fakeBackend{}
	b := newBatcher(be, 4)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%02d", i)
	}

	vecs, err := b.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	// 10 texts with batch size 4 -> sub-batches of 4, 4, 2.
	require.Len(t, be.calls, 3)
	assert.Len(t, be.calls[0], 4)
	assert.Len(t, be.calls[1], 4)
	assert.Len(t, be.calls[2], 2)

	// vecs[i] must correspond to texts[i] regardless of sub-batching.
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "vector %d misaligned", i)
		assert.Equal(t, float32(text[0]), vecs[i][1], "vector %d misaligned", i)
	}
}

func TestEmbedBatch_SubBatchFailureFailsCall(t *testing.T) {
	be := &fakeBackend{failOn: 2}
	b := newBatcher(be, 2)

	_, err := b.EmbedBatch(context.Background(), []string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestEmbedBatch_Empty(t *testing.T) {
	be := &fakeBackend{}
	b := newBatcher(be, 8)

	vecs, err := b.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, be.calls, "no API call for empty input")
}

func TestEmbedText_CachesByExactText(t *testing.T) {
	be := &fakeBackend{}
	b := newBatcher(be, 8)
	ctx := context.Background()

	first, err := b.EmbedText(ctx, "Was ist Moralische Fantasie?")
	require.NoError(t, err)

	second, err := b.EmbedText(ctx, "Was ist Moralische Fantasie?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, be.calls, 1, "second lookup must hit the cache")

	// A different text misses the cache.
	_, err = b.EmbedText(ctx, "Was ist Freiheit?")
	require.NoError(t, err)
	assert.Len(t, be.calls, 2)
}

// lengthMismatchBackend simulates a backend that silently drops a text.
type lengthMismatchBackend struct{}

func (lengthMismatchBackend) embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func TestEmbedBatch_RejectsLengthMismatch(t *testing.T) {
	b := newBatcher(lengthMismatchBackend{}, 8)

	_, err := b.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
