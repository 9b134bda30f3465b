package core

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleTool  Role = "tool"
)

// Turn is one message exchange unit within a session's conversation log.
// Turns are immutable once appended; ordering is insertion-order-significant
// because it drives prompt reconstruction.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// ToolPayload carries the structured result of a tool turn, if any.
	ToolPayload interface{} `json:"tool_payload,omitempty"`
}

// Document is a movie record owned by the semantic index.
// Immutable after ingestion.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Overview  string    `json:"overview"`
	Genres    []string  `json:"genres"`
	Director  string    `json:"director"`
	Cast      []string  `json:"cast"`
	Year      int       `json:"year"`
	Rating    float64   `json:"rating"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// RetrievalResult is one ranked hit from a semantic search.
// Ephemeral, produced per query, never persisted.
type RetrievalResult struct {
	Document   Document
	Similarity float32
	Rank       int
}

// MovieRef is a structured reference to a recommended movie, returned
// alongside the answer so callers can render posters, links, etc.
type MovieRef struct {
	MovieID    string  `json:"movie_id"`
	Title      string  `json:"title"`
	Year       int     `json:"year,omitempty"`
	Similarity float32 `json:"similarity,omitempty"`
}

// FavoriteEntry records one movie a session marked as a favorite.
// Persists independent of session lifetime.
type FavoriteEntry struct {
	SessionID string    `json:"session_id"`
	MovieID   string    `json:"movie_id"`
	Title     string    `json:"title,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// TokenUsage tracks language-model token consumption for one run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolExecution records one tool invocation during an orchestrator run.
type ToolExecution struct {
	Tool       string      `json:"tool"`
	Input      interface{} `json:"input,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}
