package service

import (
	"context"
	"errors"
	"time"

	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/avvvet/gatepass-services/internal/gatesvc/metrics"
	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CheckoutRequest struct {
	CardIDs  []string `json:"selectedValues"`
	ExitGate string   `json:"selectedExit"`
}

type CheckoutResult struct {
	Released       []string             `json:"released"`
	Ignored        []string             `json:"ignored"`
	ClosedSessions []primitive.ObjectID `json:"closed_sessions"`
}

type CheckoutService struct {
	sessions SessionRepository
	groups   GroupRepository
	cards    CardRepository
	pool     *CardService
	events   EventPublisher
	now      func() time.Time
}

func NewCheckoutService(sessions SessionRepository, groups GroupRepository, cards CardRepository, events EventPublisher) *CheckoutService {
	if events == nil {
		events = nopPublisher{}
	}
	return &CheckoutService{
		sessions: sessions,
		groups:   groups,
		cards:    cards,
		pool:     NewCardService(cards),
		events:   events,
		now:      time.Now,
	}
}

type holder struct {
	groupID  primitive.ObjectID
	memberID primitive.ObjectID
}

// Checkout returns the given cards. Members are marked first, cards freed
// second and sessions closed last, so an interruption never leaves a card
// assigned to a member that already left.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ids := uniqueIDs(normalizeIDs(req.CardIDs))
	var missing []string
	if len(ids) == 0 {
		missing = append(missing, "selectedValues")
	}
	if req.ExitGate == "" {
		missing = append(missing, "selectedExit")
	}
	if len(missing) > 0 {
		return nil, missingFields(missing)
	}

	now := s.now()
	groups, err := s.groups.FindOpenByCards(ctx, ids)
	if err != nil {
		return nil, persistence("find groups holding cards", err)
	}

	holders := make(map[string]holder, len(ids))
	members := make(map[primitive.ObjectID][]primitive.ObjectID)
	var groupIDs []primitive.ObjectID
	for _, g := range groups {
		for _, id := range ids {
			m, ok := g.OpenMember(id)
			if !ok {
				continue
			}
			if _, seen := members[g.ID]; !seen {
				groupIDs = append(groupIDs, g.ID)
			}
			holders[id] = holder{groupID: g.ID, memberID: m.ID}
			members[g.ID] = append(members[g.ID], m.ID)
		}
	}

	res := &CheckoutResult{Released: []string{}, Ignored: []string{}, ClosedSessions: []primitive.ObjectID{}}
	for _, id := range ids {
		if _, ok := holders[id]; !ok {
			log.WithField("card_id", id).Warn("checkout: card is not held by any checked in member")
			res.Ignored = append(res.Ignored, id)
		}
	}

	for _, gid := range groupIDs {
		if _, err := s.groups.CheckoutMembers(ctx, gid, members[gid], req.ExitGate, now); err != nil {
			return nil, persistence("check out members", err)
		}
	}

	for _, id := range ids {
		h, ok := holders[id]
		if !ok {
			continue
		}
		err := s.cards.Release(ctx, id, h.memberID)
		switch {
		case err == nil:
			res.Released = append(res.Released, id)
		case errors.Is(err, store.ErrNotFound):
			// released already, e.g. by a concurrent checkout of the same card
			log.WithFields(log.Fields{
				"card_id":   id,
				"member_id": h.memberID.Hex(),
			}).Warn("checkout: card was not assigned to its member")
			res.Ignored = append(res.Ignored, id)
		default:
			return nil, persistence("release card "+id, err)
		}
	}

	closed, err := recomputeClosures(ctx, s.sessions, s.groups, groupIDs, req.ExitGate, now)
	if err != nil {
		return nil, err
	}
	res.ClosedSessions = append(res.ClosedSessions, closed...)

	metrics.CheckoutsTotal.WithLabelValues("released").Add(float64(len(res.Released)))
	metrics.CheckoutsTotal.WithLabelValues("ignored").Add(float64(len(res.Ignored)))
	metrics.SessionsClosedTotal.Add(float64(len(closed)))

	log.WithFields(log.Fields{
		"released": res.Released,
		"ignored":  res.Ignored,
		"closed":   len(closed),
		"exit":     req.ExitGate,
	}).Info("checkout processed")

	s.publish(ctx, req.ExitGate, res, now)
	s.pool.RefreshGauge(ctx)
	return res, nil
}

// recomputeClosures derives each group's session state from its members:
// no member left inside closes the session, anyone still inside keeps it
// open. Returns the sessions closed by this call.
func recomputeClosures(ctx context.Context, sessions SessionRepository, groups GroupRepository,
	groupIDs []primitive.ObjectID, exitGate string, now time.Time) ([]primitive.ObjectID, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	closures, err := groups.Closures(ctx, groupIDs)
	if err != nil {
		return nil, persistence("tally group members", err)
	}

	sessionIDs := make([]primitive.ObjectID, 0, len(closures))
	for _, c := range closures {
		sessionIDs = append(sessionIDs, c.SessionID)
	}
	found, err := sessions.GetByIDs(ctx, sessionIDs)
	if err != nil {
		return nil, persistence("load sessions", err)
	}
	byID := make(map[primitive.ObjectID]*models.Session, len(found))
	for _, sess := range found {
		byID[sess.ID] = sess
	}

	var closed []primitive.ObjectID
	for _, c := range closures {
		sess, ok := byID[c.SessionID]
		if !ok {
			log.WithField("group_id", c.GroupID.Hex()).Warn("group has no session")
			continue
		}

		switch {
		case c.CheckedIn == 0 && sess.IsOpen():
			gate, at := exitGate, now
			if err := sessions.SetCheckout(ctx, sess.ID, &gate, &at); err != nil {
				return closed, persistence("close session", err)
			}
			closed = append(closed, sess.ID)
		case c.CheckedIn > 0 && !sess.IsOpen():
			log.WithField("session_id", sess.ID.Hex()).Warn("session closed while members are still inside, reopening")
			if err := sessions.SetCheckout(ctx, sess.ID, nil, nil); err != nil {
				return closed, persistence("reopen session", err)
			}
		}
	}
	return closed, nil
}

func (s *CheckoutService) publish(ctx context.Context, exitGate string, res *CheckoutResult, at time.Time) {
	if len(res.Released) == 0 && len(res.ClosedSessions) == 0 {
		return
	}
	closed := make([]string, len(res.ClosedSessions))
	for i, id := range res.ClosedSessions {
		closed[i] = id.Hex()
	}
	event := comm.CheckedOutEvent{
		CardIDs:        res.Released,
		ExitGate:       exitGate,
		ClosedSessions: closed,
		At:             at,
	}
	if err := s.events.Publish(ctx, comm.EventCheckedOut, event); err != nil {
		log.Warnf("unable to publish %s: %v", comm.EventCheckedOut, err)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
