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

type CheckinRequest struct {
	PhoneNumber    string   `json:"PhoneNumber" validate:"required"`
	Name           string   `json:"Name" validate:"required"`
	PurposeOfVisit string   `json:"PurposeOfVisit" validate:"required"`
	EntryGate      string   `json:"EntryGate" validate:"required"`
	VehicleNo      string   `json:"VehicleNo"`
	GroupSize      int      `json:"GroupSize" validate:"required,min=1"`
	TimeLimit      string   `json:"TimeLimit" validate:"required"`
	CheckinTime    string   `json:"Checkin_time" validate:"required"`
	IDCards        []string `json:"IdCards" validate:"required,min=1"`
	Photo          string   `json:"Photo"`
}

type CheckinResult struct {
	Checking  bool               `json:"checking"`
	Message   string             `json:"msg"`
	SessionID primitive.ObjectID `json:"session_id"`
}

type CheckinService struct {
	visitors VisitorRepository
	sessions SessionRepository
	groups   GroupRepository
	cards    CardRepository
	pool     *CardService
	events   EventPublisher
	loc      *time.Location
}

func NewCheckinService(visitors VisitorRepository, sessions SessionRepository, groups GroupRepository,
	cards CardRepository, events EventPublisher, loc *time.Location) *CheckinService {
	if events == nil {
		events = nopPublisher{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &CheckinService{
		visitors: visitors,
		sessions: sessions,
		groups:   groups,
		cards:    cards,
		pool:     NewCardService(cards),
		events:   events,
		loc:      loc,
	}
}

// Checkin admits a visitor and the group they bring, handing one card to
// each member. Every rejection happens before anything but the visitor
// identity is written.
func (s *CheckinService) Checkin(ctx context.Context, req CheckinRequest) (*CheckinResult, error) {
	res, err := s.checkin(ctx, req)
	if err != nil {
		metrics.CheckinsTotal.WithLabelValues(string(CodeOf(err))).Inc()
		return nil, err
	}
	metrics.CheckinsTotal.WithLabelValues("accepted").Inc()
	return res, nil
}

func (s *CheckinService) checkin(ctx context.Context, req CheckinRequest) (*CheckinResult, error) {
	if err := requireFields(req); err != nil {
		return nil, err
	}

	checkinAt, ok := parseTimestamp(req.CheckinTime, s.loc)
	if !ok {
		return nil, &Error{Code: CodeInvalidTimestamp, Message: "Invalid Checkin_time format"}
	}
	ids := normalizeIDs(req.IDCards)

	visitor, err := s.resolveVisitor(ctx, req.PhoneNumber, req.Name)
	if err != nil {
		return nil, err
	}

	_, err = s.sessions.FindOpenByVisitor(ctx, visitor.ID)
	switch {
	case err == nil:
		return nil, &Error{Code: CodeOngoingSessionExists, Message: "Visitor has an ongoing session"}
	case !errors.Is(err, store.ErrNotFound):
		return nil, persistence("find open session", err)
	}

	avail, err := s.pool.CheckAvailability(ctx, ids)
	if err != nil {
		return nil, err
	}
	if !avail.OK {
		return nil, cardsUnavailable(avail.Unavailable)
	}

	session := &models.Session{
		ID:             primitive.NewObjectID(),
		VisitorID:      visitor.ID,
		PurposeOfVisit: req.PurposeOfVisit,
		EntryGate:      req.EntryGate,
		VehicleNumber:  req.VehicleNo,
		CheckInTime:    checkinAt,
		GroupSize:      req.GroupSize,
		TimeLimit:      req.TimeLimit,
		Photos:         req.Photo,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, persistence("create session", err)
	}
	if err := s.claimSession(ctx, session); err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:           primitive.NewObjectID(),
		SessionID:    session.ID,
		GroupMembers: make([]models.Member, len(ids)),
	}
	for i, id := range ids {
		group.GroupMembers[i] = models.Member{
			ID:          primitive.NewObjectID(),
			CardID:      id,
			CheckInTime: checkinAt,
			Status:      models.MemberCheckedIn,
		}
	}
	if err := s.groups.CreateGroup(ctx, group); err != nil {
		return nil, persistence("create group", err)
	}
	if err := s.sessions.SetGroupID(ctx, session.ID, group.ID); err != nil {
		return nil, persistence("link group to session", err)
	}

	if err := s.reserveCards(ctx, session, group); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"session_id": session.ID.Hex(),
		"phone":      visitor.PhoneNumber,
		"cards":      ids,
	}).Info("visitor checked in")

	s.publish(ctx, session, visitor, ids)
	s.pool.RefreshGauge(ctx)

	return &CheckinResult{
		Checking:  true,
		Message:   "Visitor check-in processed successfully",
		SessionID: session.ID,
	}, nil
}

func (s *CheckinService) resolveVisitor(ctx context.Context, phone, name string) (*models.Visitor, error) {
	visitor, created, err := s.visitors.EnsureVisitor(ctx, phone, name)
	if err != nil {
		return nil, persistence("resolve visitor", err)
	}
	if created {
		log.WithField("phone", phone).Info("new visitor registered")
	}
	return visitor, nil
}

// claimSession makes sure the session just written is the visitor's only
// open one. A check-in racing for the same visitor may have passed the
// earlier open session check too; whoever counts more than one backs off.
// Both may back off, but two open sessions never survive.
func (s *CheckinService) claimSession(ctx context.Context, session *models.Session) error {
	open, err := s.sessions.CountOpenByVisitor(ctx, session.VisitorID)
	if err != nil {
		return persistence("count open sessions", err)
	}
	if open <= 1 {
		return nil
	}

	log.WithField("session_id", session.ID.Hex()).Warn("concurrent check-in for the same visitor, backing off")
	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
		log.Errorf("unable to remove session %s: %v", session.ID.Hex(), err)
	}
	return &Error{Code: CodeOngoingSessionExists, Message: "Visitor has an ongoing session"}
}

// reserveCards hands each member its card with a conditional write. Cards
// lost to a concurrent check-in are all collected; the cards this check-in
// already holds are then given back and the half written visit removed.
func (s *CheckinService) reserveCards(ctx context.Context, session *models.Session, group *models.Group) error {
	var reserved []models.Member
	var lost []string

	for _, m := range group.GroupMembers {
		err := s.cards.Reserve(ctx, m.CardID, m.ID)
		switch {
		case err == nil:
			reserved = append(reserved, m)
		case errors.Is(err, store.ErrCardUnavailable):
			metrics.ReservationConflictsTotal.Inc()
			lost = append(lost, m.CardID)
		default:
			return persistence("reserve card "+m.CardID, err)
		}
	}

	if len(lost) == 0 {
		return nil
	}

	log.WithFields(log.Fields{
		"session_id": session.ID.Hex(),
		"lost":       lost,
	}).Warn("card reservation lost to a concurrent check-in, rolling back")

	for _, m := range reserved {
		if err := s.cards.Unreserve(ctx, m.CardID, m.ID); err != nil {
			log.Errorf("unable to roll back card %s: %v", m.CardID, err)
		}
	}
	if err := s.groups.DeleteGroup(ctx, group.ID); err != nil {
		log.Errorf("unable to remove group %s: %v", group.ID.Hex(), err)
	}
	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
		log.Errorf("unable to remove session %s: %v", session.ID.Hex(), err)
	}

	return cardsUnavailable(lost)
}

func (s *CheckinService) publish(ctx context.Context, session *models.Session, visitor *models.Visitor, ids []string) {
	event := comm.CheckedInEvent{
		SessionID:   session.ID.Hex(),
		PhoneNumber: visitor.PhoneNumber,
		Name:        visitor.Name,
		CardIDs:     ids,
		EntryGate:   session.EntryGate,
		At:          session.CheckInTime,
	}
	if err := s.events.Publish(ctx, comm.EventCheckedIn, event); err != nil {
		log.Warnf("unable to publish %s: %v", comm.EventCheckedIn, err)
	}
}
