package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/avvvet/gatepass-services/internal/gatesvc/metrics"
	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	log "github.com/sirupsen/logrus"
)

// Availability is the answer to a card availability check.
type Availability struct {
	OK          bool     `json:"checking"`
	Unavailable []string `json:"unavailable_ids"`
}

type CardService struct {
	cards CardRepository
}

func NewCardService(cards CardRepository) *CardService {
	return &CardService{cards: cards}
}

// FindAvailable lists available card ids matching pattern, case-insensitive.
func (s *CardService) FindAvailable(ctx context.Context, pattern string) ([]string, error) {
	return s.search(ctx, pattern, models.CardAvailable)
}

// FindAssigned lists card ids currently out with visitors.
func (s *CardService) FindAssigned(ctx context.Context, pattern string) ([]string, error) {
	return s.search(ctx, pattern, models.CardAssigned)
}

func (s *CardService) search(ctx context.Context, pattern string, status models.CardStatus) ([]string, error) {
	if err := checkPattern(pattern); err != nil {
		return nil, err
	}

	ids, err := s.cards.SearchIDs(ctx, pattern, status)
	if err != nil {
		return nil, persistence("search cards", err)
	}
	return ids, nil
}

// CheckAvailability reports every requested id that cannot be handed out:
// blank ids, ids without a card, cards not available, and repeats of an id
// already requested earlier in the list.
func (s *CardService) CheckAvailability(ctx context.Context, ids []string) (*Availability, error) {
	lookup := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			lookup = append(lookup, id)
		}
	}

	cards, err := s.cards.GetByCardIDs(ctx, lookup)
	if err != nil {
		return nil, persistence("check card availability", err)
	}

	status := make(map[string]models.CardStatus, len(cards))
	for _, c := range cards {
		status[c.CardID] = c.Status
	}

	result := &Availability{Unavailable: []string{}}
	requested := make(map[string]bool, len(ids))
	reported := make(map[string]bool)
	for _, id := range ids {
		bad := id == "" || requested[id] || status[id] != models.CardAvailable
		requested[id] = true
		if bad && !reported[id] {
			reported[id] = true
			result.Unavailable = append(result.Unavailable, id)
		}
	}
	result.OK = len(result.Unavailable) == 0
	return result, nil
}

// Provision replaces the whole pool with count fresh cards numbered from 001.
func (s *CardService) Provision(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		return 0, &Error{Code: CodeMissingFields, Message: "count must be positive", Fields: []string{"count"}}
	}

	width := len(fmt.Sprint(count))
	if width < 3 {
		width = 3
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%0*d", width, i+1)
	}

	if err := s.cards.ReplacePool(ctx, ids); err != nil {
		return 0, persistence("provision card pool", err)
	}
	log.WithField("count", count).Info("card pool provisioned")
	s.RefreshGauge(ctx)
	return count, nil
}

func (s *CardService) Summary(ctx context.Context) (*models.CardSummary, error) {
	summary, err := s.cards.Summary(ctx)
	if err != nil {
		return nil, persistence("summarize cards", err)
	}
	return summary, nil
}

// RefreshGauge publishes the pool counts to the card pool gauge.
func (s *CardService) RefreshGauge(ctx context.Context) {
	summary, err := s.cards.Summary(ctx)
	if err != nil {
		log.Warnf("unable to refresh card pool gauge: %v", err)
		return
	}
	metrics.CardPool.WithLabelValues(string(models.CardAvailable)).Set(float64(summary.Available))
	metrics.CardPool.WithLabelValues(string(models.CardAssigned)).Set(float64(summary.Assigned))
}

func checkPattern(pattern string) error {
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return &Error{Code: CodeInvalidPattern, Message: "invalid search pattern", Err: err}
	}
	return nil
}

// normalizeIDs trims every id, keeping blanks so they can be reported.
func normalizeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimSpace(id)
	}
	return out
}
