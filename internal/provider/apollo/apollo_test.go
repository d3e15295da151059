package apollo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enrichment/internal/fetcher"
	"github.com/JakeFAU/lead-enrichment/internal/provider"
)

const peopleBody = `{
  "people": [
    {"first_name": "Ana", "last_name": "Ruiz", "title": "Chief Financial Officer",
     "email": "ana@acme.es", "city": "Madrid", "country": "Spain",
     "phone_numbers": [{"raw_number": "+34 600 000 000", "sanitized_number": "+34600000000"}],
     "organization": {"name": "Acme", "estimated_num_employees": 80, "founded_year": 2019, "technology_names": ["Go"]}},
    {"first_name": "Locked", "title": "CEO", "email": "email_not_unlocked@domain.com"},
    {"first_name": "NoEmail", "title": "CTO", "email": null}
  ],
  "contacts": [
    {"name": "Luis Gomez", "title": "Founder", "email": "luis@acme.es"}
  ]
}`

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	f := fetcher.New(fetcher.Config{}, srv.Client(), nil, nil, zap.NewNop())
	return New(Config{APIKey: "k", BaseURL: srv.URL}, f, nil, zap.NewNop())
}

func TestSearchPostsDomainListAndDropsLockedEmails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, searchPath, r.URL.Path)
		require.Equal(t, "k", r.Header.Get("X-Api-Key"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, []any{"acme.es"}, payload["q_organization_domains_list"])
		require.Equal(t, []any{"CFO"}, payload["person_titles"])
		_, _ = io.WriteString(w, peopleBody)
	}))
	defer srv.Close()

	got := newClient(t, srv).Search(context.Background(), provider.Query{Domain: "acme.es", Titles: []string{"CFO"}})
	require.Len(t, got, 2)
	require.Equal(t, "ana@acme.es", got[0].Email)
	require.Equal(t, "Ana Ruiz", got[0].Name)
	require.Equal(t, "Madrid, Spain", got[0].Location)
	require.Equal(t, "+34600000000", got[0].PhoneNumber)
	require.Equal(t, 2019, *got[0].Company.FoundedYear)
	require.Equal(t, 80, got[0].Company.Employees.Min)
	require.Equal(t, "Luis Gomez", got[1].Name)
	require.Equal(t, Name, got[1].Source)
}

func TestSearchFallsBackToLegacyPayload(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if _, ok := payload["q_organization_domains_list"]; ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"error":"unknown parameter"}`)
			return
		}
		require.Equal(t, "acme.es", payload["q_organization_domains"])
		_, _ = io.WriteString(w, peopleBody)
	}))
	defer srv.Close()

	got := newClient(t, srv).Search(context.Background(), provider.Query{Domain: "acme.es"})
	require.Len(t, got, 2)
	require.EqualValues(t, 2, hits.Load())
}

func TestInaccessibleAPITripsBreaker(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"api/v1/mixed_people/search is not accessible with this api_key on a free plan.","error_code":"API_INACCESSIBLE"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	require.Empty(t, c.Search(context.Background(), provider.Query{Domain: "a.com"}))
	require.Empty(t, c.Search(context.Background(), provider.Query{Domain: "b.com"}))
	require.Empty(t, c.Search(context.Background(), provider.Query{Domain: "c.com"}))
	require.EqualValues(t, 1, hits.Load())
	require.False(t, c.Enabled())
	require.Equal(t, "403 API_INACCESSIBLE", c.Breaker().Reason())
}

func TestGeneric403IsSoftFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"domain blocked"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv)
	require.Empty(t, c.Search(context.Background(), provider.Query{Domain: "a.com"}))
	require.Empty(t, c.Search(context.Background(), provider.Query{Domain: "b.com"}))
	require.EqualValues(t, 2, hits.Load())
	require.True(t, c.Enabled())
}

func TestMissingKeyDisablesClient(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil, nil, nil)
	require.False(t, c.Enabled())
	require.Nil(t, c.Search(context.Background(), provider.Query{Domain: "a.com"}))
}
