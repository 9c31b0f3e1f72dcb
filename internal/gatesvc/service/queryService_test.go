package service

import (
	"testing"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type QueryServiceSuite struct {
	suite.Suite
	f *fixture
}

func TestQueryServiceSuite(t *testing.T) {
	suite.Run(t, new(QueryServiceSuite))
}

func (s *QueryServiceSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.f.query.now = func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) }
}

func (s *QueryServiceSuite) checkinAt(phone, at string, cardIDs ...string) primitive.ObjectID {
	req := checkinRequest(phone, cardIDs...)
	req.CheckinTime = at
	res, err := s.f.checkin.Checkin(s.f.ctx, req)
	s.Require().NoError(err)
	return res.SessionID
}

func (s *QueryServiceSuite) TestListSessions() {
	yesterday := s.checkinAt("0911", "2026-10-18T09:00", "001")
	morning := s.checkinAt("0922", "2026-10-19T08:00", "002", "003")
	noon := s.checkinAt("0933", "2026-10-19T12:00", "010")

	_, err := s.f.checkout.Checkout(s.f.ctx, CheckoutRequest{CardIDs: []string{"002", "003"}, ExitGate: "North"})
	s.Require().NoError(err)

	s.Run("today", func() {
		views, err := s.f.query.ListSessions(s.f.ctx, ScopeToday)
		s.Require().NoError(err)
		s.Require().Len(views, 2)
		s.Equal(noon, views[0].ID, "newest first")
		s.Equal(morning, views[1].ID)

		s.Equal("Visitor 0922", views[1].Name)
		s.Equal("0922", views[1].PhoneNumber)
		s.Len(views[1].VisitorCards, 2)
		s.NotNil(views[1].CheckOutTime)
		s.Nil(views[0].CheckOutTime)
	})

	s.Run("all", func() {
		views, err := s.f.query.ListSessions(s.f.ctx, ScopeAll)
		s.Require().NoError(err)
		s.Require().Len(views, 3)
		s.Equal(yesterday, views[2].ID)
	})
}

func (s *QueryServiceSuite) TestListSessionsFallsBackForMissingRecords() {
	orphan := &models.Session{VisitorID: primitive.NewObjectID(), CheckInTime: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	s.Require().NoError(s.f.sessions.CreateSession(s.f.ctx, orphan))

	views, err := s.f.query.ListSessions(s.f.ctx, ScopeToday)
	s.Require().NoError(err)
	s.Require().Len(views, 1)
	s.Equal(UnknownVisitor, views[0].Name)
	s.Equal(UnknownVisitor, views[0].PhoneNumber)
	s.NotNil(views[0].VisitorCards)
	s.Empty(views[0].VisitorCards)
	s.Nil(views[0].CheckOutTime)
}

func (s *QueryServiceSuite) TestReport() {
	s.checkinAt("0911", "2026-10-01T09:00", "001")
	inside := s.checkinAt("0922", "2026-10-10T09:00", "002")
	s.checkinAt("0933", "2026-10-19T09:00", "003")

	views, err := s.f.query.Report(s.f.ctx, "2026-10-05", "2026-10-10")
	s.Require().NoError(err)
	s.Require().Len(views, 1)
	s.Equal(inside, views[0].ID)

	_, err = s.f.query.Report(s.f.ctx, "", "2026-10-10")
	requireCode(s.T(), err, CodeMissingFields)

	_, err = s.f.query.Report(s.f.ctx, "10/05/2026", "2026-10-10")
	requireCode(s.T(), err, CodeInvalidTimestamp)

	_, err = s.f.query.Report(s.f.ctx, "2026-10-10", "2026-10-05")
	requireCode(s.T(), err, CodeInvalidTimestamp)
}

func (s *QueryServiceSuite) TestVisitorLookups() {
	s.checkinAt("0911", "2026-10-19T09:00", "010")

	name, err := s.f.query.LookupByPhone(s.f.ctx, "0911")
	s.Require().NoError(err)
	s.Equal("Visitor 0911", name)

	name, err = s.f.query.LookupByPhone(s.f.ctx, "0000")
	s.Require().NoError(err)
	s.Empty(name)

	access, err := s.f.query.VisitorAccess(s.f.ctx, "0911")
	s.Require().NoError(err)
	s.Equal(Access{Checking: false, Message: "Visitor has an ongoing session"}, *access)

	access, err = s.f.query.VisitorAccess(s.f.ctx, "0000")
	s.Require().NoError(err)
	s.Equal(Access{Checking: false, Message: "Visitor not found"}, *access)

	_, err = s.f.checkout.Checkout(s.f.ctx, CheckoutRequest{CardIDs: []string{"010"}, ExitGate: "North"})
	s.Require().NoError(err)
	access, err = s.f.query.VisitorAccess(s.f.ctx, "0911")
	s.Require().NoError(err)
	s.True(access.Checking)
}

func (s *QueryServiceSuite) TestVisitorDetails() {
	id := s.checkinAt("0911", "2026-10-19T09:00", "010", "011")

	details, err := s.f.query.VisitorDetails(s.f.ctx, "011")
	s.Require().NoError(err)
	s.Equal(id, details.SessionID)
	s.Equal("0911", details.PhoneNumber)
	s.Equal([]models.MemberBrief{
		{CardID: "010", Status: models.MemberCheckedIn},
		{CardID: "011", Status: models.MemberCheckedIn},
	}, details.MemberDetails)

	_, err = s.f.query.VisitorDetails(s.f.ctx, "001")
	requireCode(s.T(), err, CodeNotFound)
}

func (s *QueryServiceSuite) TestSearchPurposes() {
	req := checkinRequest("0911", "001")
	req.PurposeOfVisit = "Delivery"
	_, err := s.f.checkin.Checkin(s.f.ctx, req)
	s.Require().NoError(err)
	s.checkinAt("0922", "2026-10-19T09:00", "002")

	purposes, err := s.f.query.SearchPurposes(s.f.ctx, "")
	s.Require().NoError(err)
	s.Equal([]string{"Delivery", "Meeting"}, purposes)

	purposes, err = s.f.query.SearchPurposes(s.f.ctx, "^del")
	s.Require().NoError(err)
	s.Equal([]string{"Delivery"}, purposes)

	_, err = s.f.query.SearchPurposes(s.f.ctx, "([")
	requireCode(s.T(), err, CodeInvalidPattern)
}

func TestDayWindowUsesLocation(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	start, end := dayWindow(time.Date(2026, 10, 19, 22, 30, 0, 0, time.UTC), loc)

	require.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), start)
	assert.True(t, end.Before(time.Date(2026, 10, 21, 0, 0, 0, 0, loc)))
	assert.True(t, end.After(time.Date(2026, 10, 20, 23, 59, 59, 0, loc)))
}
