package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
)

// View is the bounded read of one session's conversation.
type View struct {
	// Summary compacts turns that were trimmed from the log. Empty
	// until the session exceeds its budget.
	Summary string

	// Turns are the verbatim turns, oldest first.
	Turns []core.Turn
}

// Config bounds each session's log.
type Config struct {
	// MaxTurns is the total turn budget before trimming kicks in.
	MaxTurns int

	// KeepRecent turns are always preserved verbatim when trimming.
	KeepRecent int

	// SummaryBudget caps the rolling summary length in characters.
	SummaryBudget int
}

type sessionLog struct {
	mu      sync.Mutex
	summary string
	turns   []core.Turn
	trimmed int
}

// Conversations is the in-process conversation store.
type Conversations struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewConversations creates the store.
func NewConversations(cfg Config, logger *zap.Logger) *Conversations {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 40
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 10
	}
	if cfg.KeepRecent > cfg.MaxTurns {
		cfg.KeepRecent = cfg.MaxTurns
	}
	if cfg.SummaryBudget <= 0 {
		cfg.SummaryBudget = 1500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversations{
		sessions: make(map[string]*sessionLog),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// session returns the per-session log, creating it on first use.
// An unknown session id is a first turn, not an error.
func (c *Conversations) session(sessionID string) *sessionLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	log, ok := c.sessions[sessionID]
	if !ok {
		log = &sessionLog{}
		c.sessions[sessionID] = log
	}
	return log
}

// Append adds a turn to the session's log. Appends to the same session
// serialize on that session's lock; turns are never reordered or
// mutated afterwards.
func (c *Conversations) Append(sessionID string, role core.Role, content string, payload interface{}) core.Turn {
	turn := core.Turn{
		ID:          uuid.New().String(),
		Role:        role,
		Content:     content,
		Timestamp:   c.now(),
		ToolPayload: payload,
	}

	log := c.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	log.turns = append(log.turns, turn)
	c.trimLocked(sessionID, log)
	return turn
}

// Entry is a turn pending append.
type Entry struct {
	Role    core.Role
	Content string
	Payload interface{}
}

// AppendExchange appends several turns under one lock acquisition, so a
// request's user and agent turns land adjacently even when requests for
// the same session race: order follows request completion.
func (c *Conversations) AppendExchange(sessionID string, entries []Entry) []core.Turn {
	log := c.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	appended := make([]core.Turn, 0, len(entries))
	for _, entry := range entries {
		turn := core.Turn{
			ID:          uuid.New().String(),
			Role:        entry.Role,
			Content:     entry.Content,
			Timestamp:   c.now(),
			ToolPayload: entry.Payload,
		}
		log.turns = append(log.turns, turn)
		appended = append(appended, turn)
	}
	c.trimLocked(sessionID, log)
	return appended
}

// Read returns the bounded view of a session. An unknown session reads
// as an empty conversation.
func (c *Conversations) Read(sessionID string) View {
	log := c.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	turns := make([]core.Turn, len(log.turns))
	copy(turns, log.turns)
	return View{Summary: log.summary, Turns: turns}
}

// Reset discards a session's conversation entirely.
func (c *Conversations) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// Check verifies the trimming invariant for a session: the log never
// exceeds its budget and the most recent turns are monotonically
// ordered. A violation is a bug surfaced as ErrSessionMemoryCorrupt.
func (c *Conversations) Check(sessionID string) error {
	log := c.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()

	if len(log.turns) > c.cfg.MaxTurns {
		return fmt.Errorf("%w: session %s holds %d turns, budget %d",
			core.ErrSessionMemoryCorrupt, sessionID, len(log.turns), c.cfg.MaxTurns)
	}
	for i := 1; i < len(log.turns); i++ {
		if log.turns[i].Timestamp.Before(log.turns[i-1].Timestamp) {
			return fmt.Errorf("%w: session %s turns out of order at %d",
				core.ErrSessionMemoryCorrupt, sessionID, i)
		}
	}
	return nil
}

// trimLocked folds the oldest turns into the rolling summary once the
// budget is exceeded, preserving the most recent KeepRecent verbatim.
func (c *Conversations) trimLocked(sessionID string, log *sessionLog) {
	if len(log.turns) <= c.cfg.MaxTurns {
		return
	}

	cut := len(log.turns) - c.cfg.KeepRecent
	folded := log.turns[:cut]
	log.turns = append([]core.Turn(nil), log.turns[cut:]...)
	log.trimmed += len(folded)

	var lines []string
	if log.summary != "" {
		lines = append(lines, log.summary)
	}
	for _, turn := range folded {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, clip(turn.Content, 120)))
	}
	log.summary = clipHead(strings.Join(lines, "\n"), c.cfg.SummaryBudget)

	c.logger.Debug("conversation trimmed",
		zap.String("session_id", sessionID),
		zap.Int("folded", len(folded)),
		zap.Int("kept", len(log.turns)))
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

// clipHead keeps the tail of s, dropping the oldest summary lines first.
func clipHead(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	clipped := s[len(s)-maxLen:]
	if idx := strings.IndexByte(clipped, '\n'); idx >= 0 {
		clipped = clipped[idx+1:]
	}
	return clipped
}
