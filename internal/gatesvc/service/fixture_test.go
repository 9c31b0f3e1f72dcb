package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordedEvent struct {
	Type string
	Data interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	ctx      context.Context
	cards    *store.MemoryCardStore
	visitors *store.MemoryVisitorStore
	sessions *store.MemorySessionStore
	groups   *store.MemoryGroupStore
	events   *recordingPublisher

	pool      *CardService
	checkin   *CheckinService
	checkout  *CheckoutService
	query     *QueryService
	reconcile *ReconcileService
}

func newFixture(t *testing.T, cardIDs ...string) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		cards:    store.NewMemoryCardStore(),
		visitors: store.NewMemoryVisitorStore(),
		sessions: store.NewMemorySessionStore(),
		groups:   store.NewMemoryGroupStore(),
		events:   &recordingPublisher{},
	}
	if len(cardIDs) == 0 {
		cardIDs = []string{"001", "002", "003", "010", "011"}
	}
	require.NoError(t, f.cards.ReplacePool(f.ctx, cardIDs))
	f.wire()
	return f
}

// wire builds the services over the fixture stores; call again after
// swapping a store.
func (f *fixture) wire() {
	f.wireWith(f.visitors, f.sessions, f.groups, f.cards)
}

func (f *fixture) wireWith(visitors VisitorRepository, sessions SessionRepository, groups GroupRepository, cards CardRepository) {
	f.pool = NewCardService(cards)
	f.checkin = NewCheckinService(visitors, sessions, groups, cards, f.events, time.UTC)
	f.checkout = NewCheckoutService(sessions, groups, cards, f.events)
	f.query = NewQueryService(visitors, sessions, groups, time.UTC)
	f.reconcile = NewReconcileService(sessions, groups, cards, 10*time.Minute)
}

func checkinRequest(phone string, cardIDs ...string) CheckinRequest {
	return CheckinRequest{
		PhoneNumber:    phone,
		Name:           "Visitor " + phone,
		PurposeOfVisit: "Meeting",
		EntryGate:      "Main Gate",
		VehicleNo:      "AA-12345",
		GroupSize:      len(cardIDs),
		TimeLimit:      "2h",
		CheckinTime:    "2026-10-19T09:30",
		IDCards:        cardIDs,
	}
}

func (f *fixture) card(t *testing.T, id string) *models.Card {
	t.Helper()
	cards, err := f.cards.GetByCardIDs(f.ctx, []string{id})
	require.NoError(t, err)
	require.Len(t, cards, 1, "card %s", id)
	return cards[0]
}

func (f *fixture) session(t *testing.T, id primitive.ObjectID) *models.Session {
	t.Helper()
	sessions, err := f.sessions.GetByIDs(f.ctx, []primitive.ObjectID{id})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0]
}

func (f *fixture) groupOf(t *testing.T, sessionID primitive.ObjectID) *models.Group {
	t.Helper()
	s := f.session(t, sessionID)
	require.NotNil(t, s.GroupID, "session has no group")
	groups, err := f.groups.GetByIDs(f.ctx, []primitive.ObjectID{*s.GroupID})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	return groups[0]
}

func (f *fixture) allSessions(t *testing.T) []*models.Session {
	t.Helper()
	sessions, err := f.sessions.List(f.ctx, nil, nil)
	require.NoError(t, err)
	return sessions
}

// requireConsistent checks the card, member and session invariants across
// every record in the fixture stores.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()

	closures, err := f.groups.Closures(f.ctx, nil)
	require.NoError(t, err)
	ids := make([]primitive.ObjectID, len(closures))
	for i, c := range closures {
		ids[i] = c.GroupID
	}
	groups, err := f.groups.GetByIDs(f.ctx, ids)
	require.NoError(t, err)

	holders := map[string][]primitive.ObjectID{}
	for _, g := range groups {
		for _, m := range g.GroupMembers {
			require.Equal(t, m.Status == models.MemberCheckedOut, m.CheckOutTime != nil,
				"member %s status and check out time disagree", m.ID.Hex())
			if m.Status == models.MemberCheckedIn {
				holders[m.CardID] = append(holders[m.CardID], m.ID)
			}
		}

		sessions, err := f.sessions.GetByIDs(f.ctx, []primitive.ObjectID{g.SessionID})
		require.NoError(t, err)
		require.Len(t, sessions, 1, "group %s has no session", g.ID.Hex())
		require.Equal(t, len(g.CheckedIn()) > 0, sessions[0].IsOpen(),
			"session %s open state disagrees with its members", g.SessionID.Hex())
	}

	for _, status := range []models.CardStatus{models.CardAvailable, models.CardAssigned} {
		cards, err := f.cards.ListByStatus(f.ctx, status)
		require.NoError(t, err)
		for _, c := range cards {
			held := holders[c.CardID]
			if c.Status == models.CardAssigned {
				require.Len(t, held, 1, "assigned card %s must have one open member", c.CardID)
				require.Equal(t, held[0], *c.AssignedTo, "card %s assigned to the wrong member", c.CardID)
			} else {
				require.Empty(t, held, "available card %s still held", c.CardID)
			}
		}
	}
}

func requireCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, code, se.Code, fmt.Sprintf("unexpected error: %v", err))
	return se
}
