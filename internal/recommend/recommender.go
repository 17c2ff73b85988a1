package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
)

const (
	maxInterests   = 10
	maxInterestLen = 100
	defaultLimit   = 3
	maxLimit       = 10
)

var (
	ErrInvalidRequest = errors.New("invalid recommendation request")
	ErrBadResponse    = errors.New("recommendation provider returned an unusable answer")
)

const systemPrompt = `You help donors choose nonprofits. Only recommend organizations from the provided list.
Respond with a JSON array only, no prose. Each element must be {"nonprofit_id": "<id from the list>", "reason": "<one sentence>"}.`

type Directory interface {
	List(ctx context.Context) ([]domain.Nonprofit, error)
}

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Configured() bool
}

type Request struct {
	Interests   []string `json:"interests"`
	BudgetCents int64    `json:"budgetCents"`
	Limit       int      `json:"limit"`
}

type Recommendation struct {
	Nonprofit domain.Nonprofit `json:"nonprofit"`
	Reason    string           `json:"reason"`
}

type suggestion struct {
	NonprofitID string `json:"nonprofit_id"`
	Reason      string `json:"reason"`
}

type Recommender struct {
	directory Directory
	llm       Completer
	logger    *slog.Logger
}

func NewRecommender(d Directory, llm Completer, logger *slog.Logger) *Recommender {
	return &Recommender{directory: d, llm: llm, logger: logger}
}

// Recommend asks the model to pick from the approved directory. Suggestions naming
// anything outside the directory are dropped.
func (r *Recommender) Recommend(ctx context.Context, req Request) ([]Recommendation, error) {
	if !r.llm.Configured() {
		return nil, ErrNotConfigured
	}
	interests := cleanInterests(req.Interests)
	if len(interests) == 0 {
		return nil, fmt.Errorf("%w: at least one interest is required", ErrInvalidRequest)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	nonprofits, err := r.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(nonprofits) == 0 {
		return []Recommendation{}, nil
	}

	reply, err := r.llm.Complete(ctx, systemPrompt, buildPrompt(nonprofits, interests, req.BudgetCents, limit))
	if err != nil {
		return nil, err
	}

	suggestions, err := parseSuggestions(reply)
	if err != nil {
		r.logger.Warn("unparseable recommendation reply", "error", err)
		return nil, ErrBadResponse
	}

	byID := make(map[uuid.UUID]domain.Nonprofit, len(nonprofits))
	for _, n := range nonprofits {
		byID[n.ID] = n
	}

	out := []Recommendation{}
	seen := map[uuid.UUID]bool{}
	for _, s := range suggestions {
		id, err := uuid.Parse(strings.TrimSpace(s.NonprofitID))
		if err != nil {
			continue
		}
		n, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Recommendation{Nonprofit: n, Reason: strings.TrimSpace(s.Reason)})
		if len(out) == limit {
			break
		}
	}
	if dropped := len(suggestions) - len(out); dropped > 0 {
		r.logger.Debug("dropped recommendations", "count", dropped)
	}
	return out, nil
}

func cleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > maxInterestLen {
			s = s[:maxInterestLen]
		}
		out = append(out, s)
		if len(out) == maxInterests {
			break
		}
	}
	return out
}

func buildPrompt(nonprofits []domain.Nonprofit, interests []string, budgetCents int64, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Donor interests: %s\n", strings.Join(interests, ", "))
	if budgetCents > 0 {
		fmt.Fprintf(&b, "Budget: $%d.%02d\n", budgetCents/100, budgetCents%100)
	}
	fmt.Fprintf(&b, "Recommend up to %d nonprofits.\n\nNonprofits:\n", limit)
	for _, n := range nonprofits {
		fmt.Fprintf(&b, "- %s | %s | %s\n", n.ID, n.Name, oneLine(n.Description))
	}
	return b.String()
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// parseSuggestions accepts a bare JSON array, optionally wrapped in a markdown fence.
func parseSuggestions(reply string) ([]suggestion, error) {
	reply = strings.TrimSpace(reply)
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, errors.New("no JSON array in reply")
	}

	var out []suggestion
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}
