// Package classifier implements lexical intent classification for inbound
// support messages. Scoring is weighted phrase matching over a curated table:
// deterministic and total, not semantic. Every known category appears in the
// ranking; the "general" fallback always carries a non-zero floor score so
// dispatch never runs out of targets.
package classifier

import (
	"sort"
	"strings"
	"sync"

	"shopdesk/internal/logging"
	"shopdesk/internal/types"
)

// WeightedPhrase is one curated phrase with its match weight.
type WeightedPhrase struct {
	Text   string  `yaml:"text"`
	Weight float64 `yaml:"weight"`
}

// CategoryProfile binds a category to its phrase set and floor score.
// Table order is declaration order and breaks ranking ties.
type CategoryProfile struct {
	Category string           `yaml:"category"`
	Floor    float64          `yaml:"floor"`
	Phrases  []WeightedPhrase `yaml:"phrases"`
}

// Classifier scores messages against the phrase table.
type Classifier struct {
	mu          sync.RWMutex
	table       []CategoryProfile
	stickyBonus float64
}

// DefaultStickyBonus is added to the prior turn's active category so that
// ambiguous follow-ups ("and the price?") don't thrash between specialists.
const DefaultStickyBonus = 0.15

// New creates a classifier over the given table. A nil or empty table falls
// back to the compiled-in default table. stickyBonus <= 0 uses the default.
func New(table []CategoryProfile, stickyBonus float64) *Classifier {
	if len(table) == 0 {
		table = DefaultTable()
	}
	if stickyBonus <= 0 {
		stickyBonus = DefaultStickyBonus
	}
	return &Classifier{table: table, stickyBonus: stickyBonus}
}

// SetTable atomically replaces the phrase table (used by the hot reloader).
// An empty table is ignored so a bad curated file can't blind the classifier.
func (c *Classifier) SetTable(table []CategoryProfile) {
	if len(table) == 0 {
		logging.Classifier("SetTable: ignoring empty phrase table")
		return
	}
	c.mu.Lock()
	c.table = table
	c.mu.Unlock()
	logging.Classifier("SetTable: phrase table replaced (%d categories)", len(table))
}

// Categories returns the category names in declaration order.
func (c *Classifier) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.table))
	for _, p := range c.table {
		out = append(out, p.Category)
	}
	return out
}

// Classify scores the message against every category and returns a ranking
// ordered by descending score. The ranking covers the whole table, so it is
// never empty and the general fallback always has a positive score.
//
// Score per category: sum of matched phrase weights, normalized by message
// length, plus the sticky bonus when the category answered the prior turn.
// Zero-match categories sit at their floor score.
func (c *Classifier) Classify(message string, state *types.ConversationState) types.ClassificationResult {
	c.mu.RLock()
	table := c.table
	bonus := c.stickyBonus
	c.mu.RUnlock()

	msg := strings.ToLower(strings.TrimSpace(message))
	wordCount := len(strings.Fields(msg))

	active := ""
	if state != nil {
		active = state.ActiveCategory
	}

	ranked := make([]types.RankedCategory, 0, len(table))
	for _, profile := range table {
		raw := 0.0
		for _, phrase := range profile.Phrases {
			if phrase.Text != "" && strings.Contains(msg, strings.ToLower(phrase.Text)) {
				raw += phrase.Weight
			}
		}

		// Length normalization keeps scores in [0,1) and prevents long
		// rambling messages from saturating every category.
		score := raw / (raw + 1.0 + 0.1*float64(wordCount))

		if active != "" && profile.Category == active {
			score += bonus
		}
		if score < profile.Floor {
			score = profile.Floor
		}
		if score > 1.0 {
			score = 1.0
		}

		ranked = append(ranked, types.RankedCategory{Category: profile.Category, Score: score})
	}

	// Stable sort preserves declaration order on ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	logging.ClassifierDebug("Classify: message=%q words=%d top=%s score=%.3f",
		truncate(msg, 60), wordCount, ranked[0].Category, ranked[0].Score)

	return types.ClassificationResult{Ranked: ranked}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
