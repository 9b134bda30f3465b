package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/embedder"
	"github.com/DarioTortorici/cinetech/favorites"
	"github.com/DarioTortorici/cinetech/index"
	"github.com/DarioTortorici/cinetech/tmdb"
)

const posterBaseURL = "https://image.tmdb.org/t/p/w500"

// Deps holds the collaborators behind the cinetech tools.
type Deps struct {
	Embedder  embedder.Embedder
	Index     *index.Index
	Metadata  *tmdb.Client
	Favorites *favorites.Store
	Logger    *zap.Logger
}

// CinetechTools builds the standard cinetech tool set.
func CinetechTools(deps Deps) []core.Tool {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return []core.Tool{
		searchMoviesTool(deps),
		movieDetailsTool(deps),
		addFavouriteTool(deps),
		removeFavouriteTool(deps),
		listFavouritesTool(deps),
	}
}

type searchMoviesInput struct {
	Query   string `json:"query"`
	K       int    `json:"k"`
	Genre   string `json:"genre"`
	YearMin int    `json:"year_min"`
	YearMax int    `json:"year_max"`
}

type rankedMovie struct {
	MovieID  string  `json:"movie_id"`
	Title    string  `json:"title"`
	Year     int     `json:"year"`
	Genres   string  `json:"genres,omitempty"`
	Director string  `json:"director,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Overview string  `json:"overview,omitempty"`
	Score    float32 `json:"score"`
}

func searchMoviesTool(deps Deps) core.Tool {
	return &core.FuncTool{
		Def: core.ToolDefinition{
			ToolName: "search_movies",
			ToolDescription: "Semantic search over the movie catalog. Describe the kind of movie " +
				"the user wants (themes, mood, similar titles) and get back the closest matches. " +
				"Optionally constrain by genre or release-year range.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"query":    StringProperty("Free-text description of the movies to find"),
				"k":        BoundedIntegerProperty("Number of results to return (default 5)", 1, deps.Index.MaxK()),
				"genre":    StringProperty("Optional: only return movies of this genre"),
				"year_min": IntegerProperty("Optional: earliest release year"),
				"year_max": IntegerProperty("Optional: latest release year"),
			}, "query"),
		},
		Fn: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input searchMoviesInput
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return nil, fmt.Errorf("decode input: %w", err)
			}
			if input.K <= 0 {
				input.K = 5
			}

			vector, err := deps.Embedder.Embed(ctx, input.Query)
			if err != nil {
				return nil, err
			}

			results, err := deps.Index.Search(ctx, vector, input.K, &index.Filters{
				Genre:   input.Genre,
				YearMin: input.YearMin,
				YearMax: input.YearMax,
			})
			if err != nil {
				return nil, err
			}

			ranked := make([]rankedMovie, 0, len(results))
			refs := make([]core.MovieRef, 0, len(results))
			for _, r := range results {
				ranked = append(ranked, rankedMovie{
					MovieID:  r.Document.ID,
					Title:    r.Document.Title,
					Year:     r.Document.Year,
					Genres:   strings.Join(r.Document.Genres, ", "),
					Director: r.Document.Director,
					Rating:   r.Document.Rating,
					Overview: clip(r.Document.Overview, 280),
					Score:    r.Similarity,
				})
				refs = append(refs, core.MovieRef{
					MovieID:    r.Document.ID,
					Title:      r.Document.Title,
					Year:       r.Document.Year,
					Similarity: r.Similarity,
				})
			}

			return &core.ToolResult{
				Success:    true,
				Data:       map[string]interface{}{"movies": ranked},
				References: refs,
				Retrieved:  results,
			}, nil
		},
	}
}

type titleInput struct {
	Title string `json:"title"`
}

func movieDetailsTool(deps Deps) core.Tool {
	return &core.FuncTool{
		Def: core.ToolDefinition{
			ToolName: "get_movie_details",
			ToolDescription: "Look up full details for a movie by title: overview, genres, " +
				"release year, rating and poster.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"title": StringProperty("Title of the movie to look up"),
			}, "title"),
		},
		Fn: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input titleInput
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return nil, fmt.Errorf("decode input: %w", err)
			}

			match, err := deps.Metadata.SearchMovie(ctx, input.Title)
			if err != nil {
				return notFoundOr(err, fmt.Sprintf("Movie %q not found.", input.Title))
			}
			details, err := deps.Metadata.Lookup(ctx, match.ID)
			if err != nil {
				return notFoundOr(err, fmt.Sprintf("No details available for %q.", input.Title))
			}

			data := map[string]interface{}{
				"movie_id": strconv.Itoa(details.ID),
				"title":    details.Title,
				"overview": details.Overview,
				"genres":   details.GenreNames(),
				"year":     details.Year(),
				"rating":   details.VoteAverage,
			}
			if details.PosterPath != "" {
				data["poster_url"] = posterBaseURL + details.PosterPath
			}

			return &core.ToolResult{
				Success: true,
				Data:    data,
				References: []core.MovieRef{{
					MovieID: strconv.Itoa(details.ID),
					Title:   details.Title,
					Year:    details.Year(),
				}},
			}, nil
		},
	}
}

func addFavouriteTool(deps Deps) core.Tool {
	return &core.FuncTool{
		Def: core.ToolDefinition{
			ToolName: "add_favourite",
			ToolDescription: "Add a movie to the user's favorites by title. Adding a movie " +
				"that is already a favorite is harmless.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"title": StringProperty("Title of the movie to add to favorites"),
			}, "title"),
			Mutating: true,
		},
		Fn: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input titleInput
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return nil, fmt.Errorf("decode input: %w", err)
			}

			match, err := deps.Metadata.SearchMovie(ctx, input.Title)
			if err != nil {
				return notFoundOr(err, fmt.Sprintf("Movie %q not found. Cannot add to favorites.", input.Title))
			}

			movieID := strconv.Itoa(match.ID)
			added, err := deps.Favorites.Add(params.SessionID, movieID, match.Title)
			if err != nil {
				return nil, err
			}

			message := fmt.Sprintf("Added %q to favorites.", match.Title)
			if !added {
				message = fmt.Sprintf("%q is already in favorites.", match.Title)
			}
			return &core.ToolResult{
				Success: true,
				Data:    map[string]interface{}{"message": message, "movie_id": movieID},
			}, nil
		},
	}
}

func removeFavouriteTool(deps Deps) core.Tool {
	return &core.FuncTool{
		Def: core.ToolDefinition{
			ToolName:        "remove_favourite",
			ToolDescription: "Remove a movie from the user's favorites by title.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"title": StringProperty("Title of the movie to remove from favorites"),
			}, "title"),
			Mutating: true,
		},
		Fn: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input titleInput
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return nil, fmt.Errorf("decode input: %w", err)
			}

			match, err := deps.Metadata.SearchMovie(ctx, input.Title)
			if err != nil {
				return notFoundOr(err, fmt.Sprintf("Movie %q not found. Cannot remove from favorites.", input.Title))
			}

			removed, err := deps.Favorites.Remove(params.SessionID, strconv.Itoa(match.ID))
			if err != nil {
				return nil, err
			}

			message := fmt.Sprintf("Removed %q from favorites.", match.Title)
			if !removed {
				message = fmt.Sprintf("%q was not in favorites.", match.Title)
			}
			return &core.ToolResult{
				Success: true,
				Data:    map[string]interface{}{"message": message},
			}, nil
		},
	}
}

func listFavouritesTool(deps Deps) core.Tool {
	return &core.FuncTool{
		Def: core.ToolDefinition{
			ToolName:        "list_favourites",
			ToolDescription: "List the movies the user has marked as favorites.",
			InputSchema:     ObjectSchema(map[string]interface{}{}),
		},
		Fn: func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			entries := deps.Favorites.List(params.SessionID)

			titles := make([]string, 0, len(entries))
			refs := make([]core.MovieRef, 0, len(entries))
			for _, entry := range entries {
				titles = append(titles, entry.Title)
				refs = append(refs, core.MovieRef{MovieID: entry.MovieID, Title: entry.Title})
			}

			return &core.ToolResult{
				Success:    true,
				Data:       map[string]interface{}{"favorites": titles},
				References: refs,
			}, nil
		},
	}
}

// notFoundOr converts a NotFound lookup into a tool-level "failed"
// message the model can relay; anything else propagates as an error.
func notFoundOr(err error, message string) (*core.ToolResult, error) {
	if errors.Is(err, core.ErrNotFound) {
		return &core.ToolResult{Success: false, Error: message}, nil
	}
	return nil, err
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
