package service

import (
	"context"
	"errors"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/metrics"
	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReconciledExitGate marks members and sessions closed by reconciliation
// rather than by a guard at a gate.
const ReconciledExitGate = "reconciled"

type ReconcileReport struct {
	MembersCheckedOut int `json:"members_checked_out"`
	CardsReleased     int `json:"cards_released"`
	SessionsClosed    int `json:"sessions_closed"`
	SessionsReopened  int `json:"sessions_reopened"`
	GroupsLinked      int `json:"groups_linked"`
}

// Changed reports whether the run repaired anything.
func (r *ReconcileReport) Changed() bool {
	return r.MembersCheckedOut+r.CardsReleased+r.SessionsClosed+r.SessionsReopened+r.GroupsLinked > 0
}

// ReconcileService repairs what an interrupted check-in or checkout can
// leave behind.
type ReconcileService struct {
	sessions SessionRepository
	groups   GroupRepository
	cards    CardRepository
	grace    time.Duration
	now      func() time.Time
}

func NewReconcileService(sessions SessionRepository, groups GroupRepository, cards CardRepository, grace time.Duration) *ReconcileService {
	return &ReconcileService{
		sessions: sessions,
		groups:   groups,
		cards:    cards,
		grace:    grace,
		now:      time.Now,
	}
}

// Reconcile runs, in order:
//  1. check out members older than the grace period whose card was never
//     assigned to them (a check-in interrupted before reserving)
//  2. release assigned cards whose holder is not a checked in member
//  3. close sessions whose group has nobody inside, reopen the opposite
//     case, and link groups their session never recorded
func (s *ReconcileService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	now := s.now()

	// cards first: a card reserved after this read is left alone, and every
	// card read here has its group written already, so ListOpen sees it
	assigned, err := s.cards.ListByStatus(ctx, models.CardAssigned)
	if err != nil {
		return nil, persistence("list assigned cards", err)
	}
	open, err := s.groups.ListOpen(ctx)
	if err != nil {
		return nil, persistence("list open groups", err)
	}

	holderOf := make(map[string]primitive.ObjectID, len(assigned))
	for _, c := range assigned {
		if c.AssignedTo != nil {
			holderOf[c.CardID] = *c.AssignedTo
		}
	}

	inside := make(map[primitive.ObjectID]bool)
	for _, g := range open {
		var orphans []primitive.ObjectID
		for _, m := range g.CheckedIn() {
			if h, ok := holderOf[m.CardID]; ok && h == m.ID {
				inside[m.ID] = true
				continue
			}
			// member ids are minted when the check-in is processed
			if now.Sub(m.ID.Timestamp()) < s.grace {
				inside[m.ID] = true
				continue
			}
			orphans = append(orphans, m.ID)
		}
		if len(orphans) == 0 {
			continue
		}
		if _, err := s.groups.CheckoutMembers(ctx, g.ID, orphans, ReconciledExitGate, now); err != nil {
			return report, persistence("check out orphaned members", err)
		}
		report.MembersCheckedOut += len(orphans)
		log.WithFields(log.Fields{
			"group_id": g.ID.Hex(),
			"members":  len(orphans),
		}).Warn("reconcile: checked out members that never received their card")
	}

	for _, c := range assigned {
		if c.AssignedTo == nil || inside[*c.AssignedTo] {
			continue
		}
		err := s.cards.Release(ctx, c.CardID, *c.AssignedTo)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, persistence("release orphaned card", err)
		}
		if err == nil {
			report.CardsReleased++
			log.WithField("card_id", c.CardID).Warn("reconcile: released card held by no checked in member")
		}
	}

	if err := s.reconcileSessions(ctx, report, now); err != nil {
		return report, err
	}

	metrics.ReconciledTotal.WithLabelValues("member_checked_out").Add(float64(report.MembersCheckedOut))
	metrics.ReconciledTotal.WithLabelValues("card_released").Add(float64(report.CardsReleased))
	metrics.ReconciledTotal.WithLabelValues("session_closed").Add(float64(report.SessionsClosed))
	metrics.ReconciledTotal.WithLabelValues("session_reopened").Add(float64(report.SessionsReopened))

	log.WithFields(log.Fields{
		"members_checked_out": report.MembersCheckedOut,
		"cards_released":      report.CardsReleased,
		"sessions_closed":     report.SessionsClosed,
		"sessions_reopened":   report.SessionsReopened,
		"groups_linked":       report.GroupsLinked,
	}).Info("reconcile finished")
	return report, nil
}

func (s *ReconcileService) reconcileSessions(ctx context.Context, report *ReconcileReport, now time.Time) error {
	closures, err := s.groups.Closures(ctx, nil)
	if err != nil {
		return persistence("tally group members", err)
	}

	sessionIDs := make([]primitive.ObjectID, 0, len(closures))
	for _, c := range closures {
		sessionIDs = append(sessionIDs, c.SessionID)
	}
	found, err := s.sessions.GetByIDs(ctx, sessionIDs)
	if err != nil {
		return persistence("load sessions", err)
	}
	byID := make(map[primitive.ObjectID]*models.Session, len(found))
	for _, sess := range found {
		byID[sess.ID] = sess
	}

	grouped := make(map[primitive.ObjectID]bool, len(closures))
	var toClose []store.GroupClosure
	for _, c := range closures {
		grouped[c.SessionID] = true
		sess, ok := byID[c.SessionID]
		if !ok {
			continue
		}
		if sess.GroupID == nil {
			if err := s.sessions.SetGroupID(ctx, sess.ID, c.GroupID); err != nil {
				return persistence("link group to session", err)
			}
			report.GroupsLinked++
		}

		switch {
		case c.CheckedIn == 0 && sess.IsOpen():
			toClose = append(toClose, c)
		case c.CheckedIn > 0 && !sess.IsOpen():
			if err := s.sessions.SetCheckout(ctx, sess.ID, nil, nil); err != nil {
				return persistence("reopen session", err)
			}
			report.SessionsReopened++
		}
	}

	if err := s.closeGroupless(ctx, report, grouped, now); err != nil {
		return err
	}
	if len(toClose) == 0 {
		return nil
	}

	groupIDs := make([]primitive.ObjectID, len(toClose))
	for i, c := range toClose {
		groupIDs[i] = c.GroupID
	}
	groups, err := s.groups.GetByIDs(ctx, groupIDs)
	if err != nil {
		return persistence("load groups", err)
	}
	gates := make(map[primitive.ObjectID]string, len(groups))
	for _, g := range groups {
		gates[g.ID] = lastExitGate(g)
	}

	for _, c := range toClose {
		at := now
		if c.LastCheckOut != nil {
			at = *c.LastCheckOut
		}
		gate := gates[c.GroupID]
		if err := s.sessions.SetCheckout(ctx, c.SessionID, &gate, &at); err != nil {
			return persistence("close session", err)
		}
		report.SessionsClosed++
	}
	return nil
}

// closeGroupless closes open sessions that never got a group written.
func (s *ReconcileService) closeGroupless(ctx context.Context, report *ReconcileReport, grouped map[primitive.ObjectID]bool, now time.Time) error {
	all, err := s.sessions.List(ctx, nil, nil)
	if err != nil {
		return persistence("list sessions", err)
	}

	for _, sess := range all {
		if !sess.IsOpen() || sess.GroupID != nil || grouped[sess.ID] {
			continue
		}
		if now.Sub(sess.ID.Timestamp()) < s.grace {
			continue
		}
		gate, at := ReconciledExitGate, now
		if err := s.sessions.SetCheckout(ctx, sess.ID, &gate, &at); err != nil {
			return persistence("close groupless session", err)
		}
		report.SessionsClosed++
		log.WithField("session_id", sess.ID.Hex()).Warn("reconcile: closed session without a group")
	}
	return nil
}

// lastExitGate is the gate the last member left through.
func lastExitGate(g *models.Group) string {
	gate := ReconciledExitGate
	var latest time.Time
	for _, m := range g.GroupMembers {
		if m.CheckOutTime != nil && m.ExitGate != nil && !m.CheckOutTime.Before(latest) {
			latest = *m.CheckOutTime
			gate = *m.ExitGate
		}
	}
	return gate
}
