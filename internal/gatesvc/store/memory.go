package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory twins of the mongo stores for unit tests. They keep the same
// conditional write semantics.

func matcher(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

func copyCard(c *models.Card) *models.Card {
	cp := *c
	if c.AssignedTo != nil {
		id := *c.AssignedTo
		cp.AssignedTo = &id
	}
	cp.LastAssigned = append([]primitive.ObjectID{}, c.LastAssigned...)
	return &cp
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	if s.ExitGate != nil {
		gate := *s.ExitGate
		cp.ExitGate = &gate
	}
	if s.CheckOutTime != nil {
		at := *s.CheckOutTime
		cp.CheckOutTime = &at
	}
	if s.GroupID != nil {
		id := *s.GroupID
		cp.GroupID = &id
	}
	return &cp
}

func copyGroup(g *models.Group) *models.Group {
	cp := *g
	cp.GroupMembers = make([]models.Member, len(g.GroupMembers))
	for i, m := range g.GroupMembers {
		mc := m
		if m.CheckOutTime != nil {
			at := *m.CheckOutTime
			mc.CheckOutTime = &at
		}
		if m.ExitGate != nil {
			gate := *m.ExitGate
			mc.ExitGate = &gate
		}
		cp.GroupMembers[i] = mc
	}
	return &cp
}

type MemoryCardStore struct {
	mu    sync.Mutex
	cards map[string]*models.Card // keyed by card_id
}

func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{cards: make(map[string]*models.Card)}
}

func (s *MemoryCardStore) SearchIDs(_ context.Context, pattern string, status models.CardStatus) ([]string, error) {
	re, err := matcher(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{}
	for id, c := range s.cards {
		if c.Status != status {
			continue
		}
		if re != nil && !re.MatchString(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryCardStore) GetByCardIDs(_ context.Context, cardIDs []string) ([]*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var cards []*models.Card
	for _, id := range cardIDs {
		if c, ok := s.cards[id]; ok && !seen[id] {
			seen[id] = true
			cards = append(cards, copyCard(c))
		}
	}
	return cards, nil
}

func (s *MemoryCardStore) ListByStatus(_ context.Context, status models.CardStatus) ([]*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cards []*models.Card
	for _, c := range s.cards {
		if c.Status == status {
			cards = append(cards, copyCard(c))
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].CardID < cards[j].CardID })
	return cards, nil
}

func (s *MemoryCardStore) Reserve(_ context.Context, cardID string, memberID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.Status != models.CardAvailable {
		return fmt.Errorf("card %s: %w", cardID, ErrCardUnavailable)
	}
	c.Status = models.CardAssigned
	c.AssignedTo = &memberID
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryCardStore) Release(_ context.Context, cardID string, memberID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.heldBy(cardID, memberID)
	if !ok {
		return fmt.Errorf("card %s held by %s: %w", cardID, memberID.Hex(), ErrNotFound)
	}
	c.Status = models.CardAvailable
	c.AssignedTo = nil
	c.LastAssigned = append(c.LastAssigned, memberID)
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryCardStore) Unreserve(_ context.Context, cardID string, memberID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.heldBy(cardID, memberID)
	if !ok {
		return fmt.Errorf("card %s held by %s: %w", cardID, memberID.Hex(), ErrNotFound)
	}
	c.Status = models.CardAvailable
	c.AssignedTo = nil
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryCardStore) heldBy(cardID string, memberID primitive.ObjectID) (*models.Card, bool) {
	c, ok := s.cards[cardID]
	if !ok || c.Status != models.CardAssigned || c.AssignedTo == nil || *c.AssignedTo != memberID {
		return nil, false
	}
	return c, true
}

func (s *MemoryCardStore) ReplacePool(_ context.Context, cardIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cards = make(map[string]*models.Card, len(cardIDs))
	for _, id := range cardIDs {
		s.cards[id] = &models.Card{
			ID:           primitive.NewObjectID(),
			CardID:       id,
			Status:       models.CardAvailable,
			LastAssigned: []primitive.ObjectID{},
			UpdatedAt:    now,
		}
	}
	return nil
}

func (s *MemoryCardStore) Summary(_ context.Context) (*models.CardSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &models.CardSummary{}
	for _, c := range s.cards {
		summary.Total++
		switch c.Status {
		case models.CardAvailable:
			summary.Available++
		case models.CardAssigned:
			summary.Assigned++
		}
	}
	return summary, nil
}

type MemoryVisitorStore struct {
	mu       sync.Mutex
	visitors map[primitive.ObjectID]*models.Visitor
}

func NewMemoryVisitorStore() *MemoryVisitorStore {
	return &MemoryVisitorStore{visitors: make(map[primitive.ObjectID]*models.Visitor)}
}

func (s *MemoryVisitorStore) GetByPhone(_ context.Context, phone string) (*models.Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.visitors {
		if v.PhoneNumber == phone {
			cp := *v
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("visitor %s: %w", phone, ErrNotFound)
}

func (s *MemoryVisitorStore) CreateVisitor(_ context.Context, v *models.Visitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	cp := *v
	s.visitors[v.ID] = &cp
	return nil
}

func (s *MemoryVisitorStore) EnsureVisitor(_ context.Context, phone, name string) (*models.Visitor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.visitors {
		if v.PhoneNumber == phone {
			cp := *v
			return &cp, false, nil
		}
	}
	v := &models.Visitor{ID: primitive.NewObjectID(), Name: name, PhoneNumber: phone, CreatedAt: time.Now()}
	s.visitors[v.ID] = v
	cp := *v
	return &cp, true, nil
}

func (s *MemoryVisitorStore) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.Visitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var visitors []*models.Visitor
	for _, id := range ids {
		if v, ok := s.visitors[id]; ok {
			cp := *v
			visitors = append(visitors, &cp)
		}
	}
	return visitors, nil
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]*models.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[primitive.ObjectID]*models.Session)}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *MemorySessionStore) SetGroupID(_ context.Context, sessionID, groupID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID.Hex(), ErrNotFound)
	}
	session.GroupID = &groupID
	return nil
}

func (s *MemorySessionStore) SetCheckout(_ context.Context, sessionID primitive.ObjectID, exitGate *string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID.Hex(), ErrNotFound)
	}
	session.ExitGate = nil
	session.CheckOutTime = nil
	if exitGate != nil {
		gate := *exitGate
		session.ExitGate = &gate
	}
	if at != nil {
		t := *at
		session.CheckOutTime = &t
	}
	return nil
}

func (s *MemorySessionStore) FindOpenByVisitor(_ context.Context, visitorID primitive.ObjectID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.VisitorID == visitorID && session.IsOpen() {
			return copySession(session), nil
		}
	}
	return nil, fmt.Errorf("open session of %s: %w", visitorID.Hex(), ErrNotFound)
}

func (s *MemorySessionStore) CountOpenByVisitor(_ context.Context, visitorID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.sessions {
		if session.VisitorID == visitorID && session.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (s *MemorySessionStore) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []*models.Session
	for _, id := range ids {
		if session, ok := s.sessions[id]; ok {
			sessions = append(sessions, copySession(session))
		}
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *MemorySessionStore) List(_ context.Context, from, to *time.Time) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := []*models.Session{}
	for _, session := range s.sessions {
		if from != nil && session.CheckInTime.Before(*from) {
			continue
		}
		if to != nil && session.CheckInTime.After(*to) {
			continue
		}
		sessions = append(sessions, copySession(session))
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *MemorySessionStore) DistinctPurposes(_ context.Context, pattern string) ([]string, error) {
	re, err := matcher(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	purposes := []string{}
	for _, session := range s.sessions {
		p := session.PurposeOfVisit
		if p == "" || seen[p] || (re != nil && !re.MatchString(p)) {
			continue
		}
		seen[p] = true
		purposes = append(purposes, p)
	}
	sort.Strings(purposes)
	return purposes, nil
}

func (s *MemorySessionStore) DeleteSession(_ context.Context, sessionID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func sortSessions(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CheckInTime.After(sessions[j].CheckInTime)
	})
}

type MemoryGroupStore struct {
	mu     sync.Mutex
	groups map[primitive.ObjectID]*models.Group
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[primitive.ObjectID]*models.Group)}
}

func (s *MemoryGroupStore) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	s.groups[group.ID] = copyGroup(group)
	return nil
}

func (s *MemoryGroupStore) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []*models.Group
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			groups = append(groups, copyGroup(g))
		}
	}
	return groups, nil
}

func (s *MemoryGroupStore) FindOpenByCards(_ context.Context, cardIDs []string) ([]*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []*models.Group
	for _, g := range s.groups {
		for _, id := range cardIDs {
			if _, ok := g.OpenMember(id); ok {
				groups = append(groups, copyGroup(g))
				break
			}
		}
	}
	return groups, nil
}

func (s *MemoryGroupStore) ListOpen(_ context.Context) ([]*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var groups []*models.Group
	for _, g := range s.groups {
		if len(g.CheckedIn()) > 0 {
			groups = append(groups, copyGroup(g))
		}
	}
	return groups, nil
}

func (s *MemoryGroupStore) CheckoutMembers(_ context.Context, groupID primitive.ObjectID, memberIDs []primitive.ObjectID, exitGate string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return 0, fmt.Errorf("group %s: %w", groupID.Hex(), ErrNotFound)
	}

	wanted := make(map[primitive.ObjectID]bool, len(memberIDs))
	for _, id := range memberIDs {
		wanted[id] = true
	}

	var modified int64
	for i := range g.GroupMembers {
		m := &g.GroupMembers[i]
		if !wanted[m.ID] || m.Status != models.MemberCheckedIn {
			continue
		}
		t, gate := at, exitGate
		m.CheckOutTime = &t
		m.ExitGate = &gate
		m.Status = models.MemberCheckedOut
		modified++
	}
	if modified > 0 {
		return 1, nil
	}
	return 0, nil
}

func (s *MemoryGroupStore) Closures(_ context.Context, groupIDs []primitive.ObjectID) ([]GroupClosure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tally := func(g *models.Group) GroupClosure {
		c := GroupClosure{GroupID: g.ID, SessionID: g.SessionID, CheckedIn: len(g.CheckedIn())}
		for _, m := range g.GroupMembers {
			if m.CheckOutTime != nil && (c.LastCheckOut == nil || m.CheckOutTime.After(*c.LastCheckOut)) {
				at := *m.CheckOutTime
				c.LastCheckOut = &at
			}
		}
		return c
	}

	var closures []GroupClosure
	if groupIDs == nil {
		for _, g := range s.groups {
			closures = append(closures, tally(g))
		}
		return closures, nil
	}
	for _, id := range groupIDs {
		if g, ok := s.groups[id]; ok {
			closures = append(closures, tally(g))
		}
	}
	return closures, nil
}

func (s *MemoryGroupStore) DeleteGroup(_ context.Context, groupID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.groups, groupID)
	return nil
}
