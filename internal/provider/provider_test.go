package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

type stubClient struct{ name string }

func (s stubClient) Name() string      { return s.name }
func (s stubClient) Operation() string { return s.name + ".search" }
func (s stubClient) Enabled() bool     { return true }
func (s stubClient) Search(context.Context, Query) []leads.RawContactCandidate {
	return nil
}

func TestRegistryOrdered(t *testing.T) {
	t.Parallel()

	r := NewRegistry(stubClient{"hunter"}, stubClient{"apollo"})
	require.Equal(t, []string{"hunter", "apollo"}, r.Names())

	got := r.Ordered([]string{"apollo", "missing", "hunter", "apollo"})
	require.Len(t, got, 2)
	require.Equal(t, "apollo", got[0].Name())
	require.Equal(t, "hunter", got[1].Name())

	require.Len(t, r.Ordered(nil), 2)
	r.Register(stubClient{"hunter"})
	require.Equal(t, []string{"hunter", "apollo"}, r.Names())
	require.Nil(t, r.Get("nope"))
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker("apollo")
	require.False(t, b.Open())
	require.True(t, b.Trip("403 API_INACCESSIBLE"))
	require.False(t, b.Trip("again"))
	require.True(t, b.Open())
	require.Equal(t, "403 API_INACCESSIBLE", b.Reason())
	b.Reset()
	require.False(t, b.Open())
	require.Empty(t, b.Reason())
}

func TestParseHeadcount(t *testing.T) {
	t.Parallel()

	require.Equal(t, &leads.IntRange{Min: 51, Max: 200}, ParseHeadcount("51-200"))
	require.Equal(t, &leads.IntRange{Min: 1001, Max: 5000}, ParseHeadcount("1,001-5,000"))
	require.Equal(t, &leads.IntRange{Min: 10001}, ParseHeadcount("10001+"))
	require.Equal(t, &leads.IntRange{Min: 42, Max: 42}, ParseHeadcount("42"))
	require.Nil(t, ParseHeadcount(""))
	require.Nil(t, ParseHeadcount("lots"))
	require.Nil(t, ParseHeadcount("200-50"))
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Paris, France", JoinLocation(" Paris ", "", "France"))
	require.Equal(t, "https://api.x.io/v2/search", ResolveEndpoint("https://api.x.io/", "/v2/search"))
	require.Empty(t, ResolveEndpoint("", "/x"))
}
