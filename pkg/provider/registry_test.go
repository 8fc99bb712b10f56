package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a do-nothing Provider for registry tests.
type stubProvider struct {
	name   string
	closed bool
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: "ok"}, nil
}
func (s *stubProvider) Close() error {
	s.closed = true
	return nil
}

func desc(id string, kind Kind, priority int, cost float64) *Descriptor {
	return &Descriptor{
		ID:            id,
		Kind:          kind,
		Endpoint:      "http://example.invalid",
		Priority:      priority,
		CostPerKToken: cost,
		Timeout:       time.Second,
	}
}

func TestRegistry_ListByPriority(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(desc("cloud-openai", KindCloud, 2, 0.5), &stubProvider{name: "cloud-openai"}))
	require.NoError(t, r.Register(desc("local-ollama", KindLocal, 0, 0), &stubProvider{name: "local-ollama"}))
	require.NoError(t, r.Register(desc("cloud-cheap", KindCloud, 1, 0.1), &stubProvider{name: "cloud-cheap"}))

	var ids []string
	for _, e := range r.ListByPriority() {
		ids = append(ids, e.Descriptor.ID)
	}
	assert.Equal(t, []string{"local-ollama", "cloud-cheap", "cloud-openai"}, ids)
}

func TestRegistry_TieBreak(t *testing.T) {
	r := NewRegistry()
	// Same priority: default order is registration order.
	require.NoError(t, r.Register(desc("zeta", KindLocal, 1, 0), &stubProvider{name: "zeta"}))
	require.NoError(t, r.Register(desc("alpha", KindLocal, 1, 0), &stubProvider{name: "alpha"}))

	assert.Equal(t, []string{"zeta", "alpha"}, r.IDs())

	// Switching to ID tie-break reorders immediately.
	r.SetTieBreak(TieBreakID)
	assert.Equal(t, []string{"alpha", "zeta"}, r.IDs())

	r.SetTieBreak(TieBreakInsertion)
	assert.Equal(t, []string{"zeta", "alpha"}, r.IDs())
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil, &stubProvider{}), "nil descriptor")
	assert.Error(t, r.Register(desc("", KindLocal, 0, 0), &stubProvider{}), "empty ID")
	assert.Error(t, r.Register(desc("x", KindLocal, 0, 0), nil), "nil provider")
	assert.Error(t, r.Register(desc("x", "quantum", 0, 0), &stubProvider{}), "unknown kind")
	assert.Error(t, r.Register(desc("x", KindLocal, 0, 0.5), &stubProvider{}), "local with cost")

	require.NoError(t, r.Register(desc("x", KindLocal, 0, 0), &stubProvider{name: "x"}))
	assert.Error(t, r.Register(desc("x", KindLocal, 1, 0), &stubProvider{name: "x"}), "duplicate ID")
}

func TestRegistry_DefaultTimeout(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{ID: "x", Kind: KindLocal}
	require.NoError(t, r.Register(d, &stubProvider{name: "x"}))

	e, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, e.Descriptor.Timeout)
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	a := &stubProvider{name: "a"}
	b := &stubProvider{name: "b"}
	require.NoError(t, r.Register(desc("a", KindLocal, 0, 0), a))
	require.NoError(t, r.Register(desc("b", KindCloud, 1, 0.1), b))

	require.NoError(t, r.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
