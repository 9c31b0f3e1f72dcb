package service

import (
	"context"
	"errors"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UnknownVisitor fills name and phone when a session's visitor is missing.
const UnknownVisitor = "Unknown"

const (
	ScopeAll   = "all"
	ScopeToday = "today"
)

// Access is the answer to whether a visitor may be checked in right now.
type Access struct {
	Checking bool   `json:"checking"`
	Message  string `json:"msg,omitempty"`
}

type QueryService struct {
	visitors VisitorRepository
	sessions SessionRepository
	groups   GroupRepository
	loc      *time.Location
	now      func() time.Time
}

func NewQueryService(visitors VisitorRepository, sessions SessionRepository, groups GroupRepository, loc *time.Location) *QueryService {
	if loc == nil {
		loc = time.Local
	}
	return &QueryService{
		visitors: visitors,
		sessions: sessions,
		groups:   groups,
		loc:      loc,
		now:      time.Now,
	}
}

// ListSessions lists every session, or only those checked in during the
// current local day when scope is "today".
func (s *QueryService) ListSessions(ctx context.Context, scope string) ([]models.SessionView, error) {
	var from, to *time.Time
	if scope == ScopeToday {
		start, end := dayWindow(s.now(), s.loc)
		from, to = &start, &end
	}

	sessions, err := s.sessions.List(ctx, from, to)
	if err != nil {
		return nil, persistence("list sessions", err)
	}
	return s.views(ctx, sessions)
}

// Report lists sessions checked in within [start, end].
func (s *QueryService) Report(ctx context.Context, start, end string) ([]models.SessionView, error) {
	var missing []string
	if start == "" {
		missing = append(missing, "start_date")
	}
	if end == "" {
		missing = append(missing, "end_date")
	}
	if len(missing) > 0 {
		return nil, missingFields(missing)
	}

	from, ok := parseTimestamp(start, s.loc)
	if !ok {
		return nil, &Error{Code: CodeInvalidTimestamp, Message: "Invalid start_date format"}
	}
	to, ok := parseTimestamp(end, s.loc)
	if !ok {
		return nil, &Error{Code: CodeInvalidTimestamp, Message: "Invalid end_date format"}
	}
	if len(end) == len("2006-01-02") {
		// a bare end date covers that whole day
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if to.Before(from) {
		return nil, &Error{Code: CodeInvalidTimestamp, Message: "end_date is before start_date"}
	}

	sessions, err := s.sessions.List(ctx, &from, &to)
	if err != nil {
		return nil, persistence("list sessions", err)
	}
	return s.views(ctx, sessions)
}

// LookupByPhone returns the registered name for phone, or "".
func (s *QueryService) LookupByPhone(ctx context.Context, phone string) (string, error) {
	visitor, err := s.visitors.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", persistence("find visitor", err)
	}
	return visitor.Name, nil
}

func (s *QueryService) VisitorAccess(ctx context.Context, phone string) (*Access, error) {
	if phone == "" {
		return nil, missingFields([]string{"phone_number"})
	}

	visitor, err := s.visitors.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Access{Checking: false, Message: "Visitor not found"}, nil
		}
		return nil, persistence("find visitor", err)
	}

	_, err = s.sessions.FindOpenByVisitor(ctx, visitor.ID)
	switch {
	case err == nil:
		return &Access{Checking: false, Message: "Visitor has an ongoing session"}, nil
	case errors.Is(err, store.ErrNotFound):
		return &Access{Checking: true}, nil
	default:
		return nil, persistence("find open session", err)
	}
}

func (s *QueryService) SearchPurposes(ctx context.Context, pattern string) ([]string, error) {
	if err := checkPattern(pattern); err != nil {
		return nil, err
	}
	purposes, err := s.sessions.DistinctPurposes(ctx, pattern)
	if err != nil {
		return nil, persistence("search purposes", err)
	}
	return purposes, nil
}

// VisitorDetails describes the visit currently holding cardID.
func (s *QueryService) VisitorDetails(ctx context.Context, cardID string) (*models.VisitorDetails, error) {
	if cardID == "" {
		return nil, missingFields([]string{"card_id"})
	}

	groups, err := s.groups.FindOpenByCards(ctx, []string{cardID})
	if err != nil {
		return nil, persistence("find group", err)
	}
	if len(groups) == 0 {
		return nil, notFound("No matching visitor found.", nil)
	}
	group := groups[0]

	sessions, err := s.sessions.GetByIDs(ctx, []primitive.ObjectID{group.SessionID})
	if err != nil {
		return nil, persistence("load session", err)
	}
	if len(sessions) == 0 {
		return nil, notFound("No matching visitor found.", nil)
	}
	session := sessions[0]

	visitors, err := s.visitors.GetByIDs(ctx, []primitive.ObjectID{session.VisitorID})
	if err != nil {
		return nil, persistence("load visitor", err)
	}
	if len(visitors) == 0 {
		return nil, notFound("No matching visitor found.", nil)
	}
	visitor := visitors[0]

	members := make([]models.MemberBrief, len(group.GroupMembers))
	for i, m := range group.GroupMembers {
		members[i] = models.MemberBrief{CardID: m.CardID, Status: m.Status}
	}

	return &models.VisitorDetails{
		SessionID:      session.ID,
		Name:           visitor.Name,
		PhoneNumber:    visitor.PhoneNumber,
		PurposeOfVisit: session.PurposeOfVisit,
		EntryGate:      session.EntryGate,
		CheckInTime:    session.CheckInTime,
		VehicleNumber:  session.VehicleNumber,
		GroupSize:      session.GroupSize,
		Photos:         session.Photos,
		MemberDetails:  members,
	}, nil
}

// views joins sessions with their visitor and group. Unresolved references
// fall back to fixed values instead of failing the listing.
func (s *QueryService) views(ctx context.Context, sessions []*models.Session) ([]models.SessionView, error) {
	visitorIDs := make([]primitive.ObjectID, 0, len(sessions))
	groupIDs := make([]primitive.ObjectID, 0, len(sessions))
	for _, sess := range sessions {
		visitorIDs = append(visitorIDs, sess.VisitorID)
		if sess.GroupID != nil {
			groupIDs = append(groupIDs, *sess.GroupID)
		}
	}

	visitors := map[primitive.ObjectID]*models.Visitor{}
	if len(visitorIDs) > 0 {
		found, err := s.visitors.GetByIDs(ctx, visitorIDs)
		if err != nil {
			return nil, persistence("load visitors", err)
		}
		for _, v := range found {
			visitors[v.ID] = v
		}
	}

	groups := map[primitive.ObjectID]*models.Group{}
	if len(groupIDs) > 0 {
		found, err := s.groups.GetByIDs(ctx, groupIDs)
		if err != nil {
			return nil, persistence("load groups", err)
		}
		for _, g := range found {
			groups[g.ID] = g
		}
	}

	views := make([]models.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		view := models.SessionView{
			ID:             sess.ID,
			Name:           UnknownVisitor,
			PhoneNumber:    UnknownVisitor,
			PurposeOfVisit: sess.PurposeOfVisit,
			EntryGate:      sess.EntryGate,
			CheckInTime:    sess.CheckInTime,
			ExitGate:       sess.ExitGate,
			GroupSize:      sess.GroupSize,
			TimeLimit:      sess.TimeLimit,
			VehicleNumber:  sess.VehicleNumber,
			Photos:         sess.Photos,
			VisitorCards:   []models.Member{},
		}
		if v, ok := visitors[sess.VisitorID]; ok {
			view.Name = v.Name
			view.PhoneNumber = v.PhoneNumber
		}
		if sess.GroupID != nil {
			if g, ok := groups[*sess.GroupID]; ok {
				view.VisitorCards = g.GroupMembers
				view.CheckOutTime = g.LatestCheckOut()
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// dayWindow returns the first and last instant of t's day in loc.
func dayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}
