package engine

import (
	"strings"

	"github.com/DarioTortorici/cinetech/core"
)

// SystemPrompt is the movie-expert persona the agent answers with.
const SystemPrompt = `You are an expert movie assistant, with years of experience handling movie recommendation requests. You used to run a video store and know how to recommend movies based on user preferences.

Provide clear, well-motivated recommendations tailored to the user's preferences. During the conversation, the user will share their favorite movies; use these to personalize future recommendations, especially when they don't have a specific title in mind. Avoid repeating titles the user has already seen. Whenever possible, connect movie elements (director, actors, genre) to the reasons for your recommendation.

Guidelines for using available tools:
- Use 'search_movies' to find movies in the catalog matching a description, mood, or a reference title.
- Use 'get_movie_details' for full details of a specific movie.
- Use 'add_favourite' / 'remove_favourite' when the user asks to update their favorites.
- Use 'list_favourites' to recall what the user already likes.
- Ground your recommendations in tool results; do not invent catalog entries.`

// degradedAnswer is returned when generation is impossible. The turn is
// still recorded so later turns have accurate context.
const degradedAnswer = "Sorry, I am unable to generate a reply at the moment. Please try again later."

// buildSystem assembles the system prompt for one run: persona, then
// the trimmed-conversation summary, favorites, and retrieved context.
func buildSystem(summary string, favoriteTitles []string, groundingBlock string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)

	if summary != "" {
		b.WriteString("\n\nEarlier conversation (summarized):\n")
		b.WriteString(summary)
	}
	if len(favoriteTitles) > 0 {
		b.WriteString("\n\nThe user's favorite movies: ")
		b.WriteString(strings.Join(favoriteTitles, ", "))
	}
	if groundingBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(groundingBlock)
	}
	return b.String()
}

func favoriteTitles(entries []core.FavoriteEntry) []string {
	titles := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Title != "" {
			titles = append(titles, entry.Title)
		}
	}
	return titles
}
