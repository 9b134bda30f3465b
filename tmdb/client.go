// Package tmdb is the movie-metadata provider client. The orchestrator
// consumes it as one more tool behind the registry's uniform error
// wrapping; a circuit breaker and a read cache sit in front of the API.
package tmdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
)

// Config configures the client.
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	CacheEntries     int64
	CacheTTL         time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Movie is a search or top-rated listing entry.
type Movie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
}

// Details is the full record returned by Lookup.
type Details struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Credits lists the top cast and the directors of a movie.
type Credits struct {
	Cast      []string
	Directors []string
}

// Year parses the release year, 0 if unknown.
func (d *Details) Year() int {
	if len(d.ReleaseDate) < 4 {
		return 0
	}
	year, _ := strconv.Atoi(d.ReleaseDate[:4])
	return year
}

// GenreNames flattens the genre list.
func (d *Details) GenreNames() []string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		names = append(names, g.Name)
	}
	return names
}

// Client calls the TMDb HTTP API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	cache    *ristretto.Cache
	cacheTTL time.Duration
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   *zap.Logger
}

// New creates a client. The breaker opens after BreakerThreshold
// consecutive failures and half-opens after BreakerCooldown.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.themoviedb.org/3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 10_000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.CacheEntries * 10,
		MaxCost:     cfg.CacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "tmdb",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("metadata breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// A 404 is a definitive answer, not a provider failure.
			return err == nil || err == core.ErrNotFound
		},
	})

	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		breaker:  breaker,
		logger:   logger,
	}, nil
}

// SearchMovie returns the best match for a title, or core.ErrNotFound.
func (c *Client) SearchMovie(ctx context.Context, title string) (*Movie, error) {
	cacheKey := "search:" + title
	if cached, ok := c.cache.Get(cacheKey); ok {
		movie := cached.(Movie)
		return &movie, nil
	}

	body, err := c.get(ctx, "/search/movie", url.Values{"query": {title}})
	if err != nil {
		return nil, err
	}

	var page struct {
		Results []Movie `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("movie %q: %w", title, core.ErrNotFound)
	}

	movie := page.Results[0]
	c.cache.SetWithTTL(cacheKey, movie, 1, c.cacheTTL)
	return &movie, nil
}

// Lookup fetches full details for a movie id, or core.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, movieID int) (*Details, error) {
	cacheKey := "movie:" + strconv.Itoa(movieID)
	if cached, ok := c.cache.Get(cacheKey); ok {
		details := cached.(Details)
		return &details, nil
	}

	body, err := c.get(ctx, "/movie/"+strconv.Itoa(movieID), nil)
	if err != nil {
		return nil, err
	}

	var details Details
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("decode details response: %w", err)
	}

	c.cache.SetWithTTL(cacheKey, details, 1, c.cacheTTL)
	return &details, nil
}

// TopRated fetches one page of top-rated movies, used by ingestion.
func (c *Client) TopRated(ctx context.Context, page int) ([]Movie, error) {
	body, err := c.get(ctx, "/movie/top_rated", url.Values{"page": {strconv.Itoa(page)}})
	if err != nil {
		return nil, err
	}

	var result struct {
		Results []Movie `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode top rated response: %w", err)
	}
	return result.Results, nil
}

// MovieCredits fetches the top five cast members and the directors.
func (c *Client) MovieCredits(ctx context.Context, movieID int) (*Credits, error) {
	body, err := c.get(ctx, "/movie/"+strconv.Itoa(movieID)+"/credits", nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Cast []struct {
			Name string `json:"name"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode credits response: %w", err)
	}

	credits := &Credits{}
	for i, member := range raw.Cast {
		if i >= 5 {
			break
		}
		credits.Cast = append(credits.Cast, member.Name)
	}
	for _, member := range raw.Crew {
		if member.Job == "Director" {
			credits.Directors = append(credits.Directors, member.Name)
		}
	}
	return credits, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		if query == nil {
			query = url.Values{}
		}
		query.Set("api_key", c.apiKey)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, core.ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("tmdb returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
}
