package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"opsdash/internal/domain"
	"opsdash/internal/storage"
	"opsdash/internal/storage/storagetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func seed(t *testing.T, store storage.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := store.CreateManufacturing(ctx, domain.ManufacturingInput{
			ProductionCount: domain.Int64(int64(100 + i)), ScrapCount: domain.Int64(1), Shift: "morning", MachineID: "M-1",
		})
		require.NoError(t, err)
	}
	_, err := store.CreateSales(ctx, domain.SalesInput{
		OrderID: "SO-1", CustomerName: "Acme", Quantity: domain.Int64(3),
		DispatchDate: domain.NewDate(2025, 3, 1), PaymentStatus: "paid",
	})
	require.NoError(t, err)
}

func TestAnswerWithoutProviderMakesNoCalls(t *testing.T) {
	store := storagetest.NewMemory()
	bridge := NewBridge(store, nil, 0, nil)

	_, err := bridge.Answer(context.Background(), "how many units?")
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, store.Calls(), "no store access before the credential check")
	assert.False(t, bridge.Configured())
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	store := storagetest.NewMemory()
	provider := &fakeProvider{answer: "x"}
	bridge := NewBridge(store, provider, 0, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := bridge.Answer(context.Background(), q)
		require.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Zero(t, store.Calls())
	assert.Empty(t, provider.prompts)
}

func TestAnswerBuildsPromptFromLatestRows(t *testing.T) {
	store := storagetest.NewMemory()
	seed(t, store, 35)
	provider := &fakeProvider{answer: "Production is up."}
	bridge := NewBridge(store, provider, 30, nil)

	question := "What changed?\nBe brief."
	answer, err := bridge.Answer(context.Background(), question)
	require.NoError(t, err)
	assert.Equal(t, "Production is up.", answer)

	require.Len(t, provider.prompts, 1, "exactly one provider call")
	prompt := provider.prompts[0]
	require.True(t, strings.HasPrefix(prompt, preamble))
	require.True(t, strings.HasSuffix(prompt, questionMarker+question), "question is appended verbatim")

	body := strings.TrimSuffix(strings.TrimPrefix(prompt, preamble), questionMarker+question)
	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Len(t, decoded["manufacturing_records"], 30, "sample is capped")
	assert.Len(t, decoded["sales_records"], 1)
	assert.NotNil(t, decoded["testing_records"])
	assert.Empty(t, decoded["field_records"])
	// Newest first.
	assert.EqualValues(t, 134, decoded["manufacturing_records"][0]["production_count"])
	assert.Contains(t, body, "\n  \"manufacturing_records\"", "JSON is indented")
}

func TestAnswerFallsBackWhenModelReturnsNothing(t *testing.T) {
	bridge := NewBridge(storagetest.NewMemory(), &fakeProvider{answer: ""}, 0, nil)
	answer, err := bridge.Answer(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, answer)
}

func TestAnswerReturnsModelTextUnmodified(t *testing.T) {
	for _, text := range []string{"  ", "\n", "  Output is up 4%.\n"} {
		bridge := NewBridge(storagetest.NewMemory(), &fakeProvider{answer: text}, 0, nil)
		answer, err := bridge.Answer(context.Background(), "anything?")
		require.NoError(t, err)
		assert.Equal(t, text, answer)
	}
}

func TestAnswerWrapsFailures(t *testing.T) {
	providerErr := errors.New("quota exceeded")
	bridge := NewBridge(storagetest.NewMemory(), &fakeProvider{err: providerErr}, 0, nil)
	_, err := bridge.Answer(context.Background(), "why?")
	require.ErrorIs(t, err, ErrGenerate)
	require.ErrorIs(t, err, providerErr)

	store := storagetest.NewMemory()
	store.Err = errors.New("connection refused")
	provider := &fakeProvider{answer: "unused"}
	bridge = NewBridge(store, provider, 0, nil)
	_, err = bridge.Answer(context.Background(), "why?")
	require.ErrorIs(t, err, ErrGenerate)
	assert.Empty(t, provider.prompts, "no provider call after a failed fetch")
}

func TestNewProviderWithoutCredentialIsNil(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{Name: "gemini"}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(context.Background(), ProviderConfig{Name: "anthropic"}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProvider(context.Background(), ProviderConfig{Name: "openai", GeminiAPIKey: "k"}, nil, nil)
	require.Error(t, err)
}

func TestNewProviderSelectsAnthropic(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{Name: "anthropic", AnthropicAPIKey: "sk-test"}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, DefaultAnthropicModel, p.(*AnthropicProvider).model)
}
