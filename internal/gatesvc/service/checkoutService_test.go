package service

import (
	"testing"
	"time"

	"github.com/avvvet/gatepass-services/internal/comm"
	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCheckoutRequiresFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.Checkout(f.ctx, CheckoutRequest{})
	se := requireCode(t, err, CodeMissingFields)
	assert.Equal(t, []string{"selectedValues", "selectedExit"}, se.Fields)

	_, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{" ", ""}, ExitGate: "North"})
	requireCode(t, err, CodeMissingFields)
}

func TestCheckoutRoundTrip(t *testing.T) {
	f := newFixture(t)
	exitAt := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC)
	f.checkout.now = func() time.Time { return exitAt }

	res, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "010", "011"))
	require.NoError(t, err)
	assert.Equal(t, models.CardAssigned, f.card(t, "010").Status)
	assert.Equal(t, models.CardAssigned, f.card(t, "011").Status)

	out, err := f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"010", "011"}, ExitGate: "North"})
	require.NoError(t, err)
	assert.Equal(t, []string{"010", "011"}, out.Released)
	assert.Empty(t, out.Ignored)
	assert.Equal(t, []primitive.ObjectID{res.SessionID}, out.ClosedSessions)

	group := f.groupOf(t, res.SessionID)
	for _, id := range []string{"010", "011"} {
		card := f.card(t, id)
		assert.Equal(t, models.CardAvailable, card.Status)
		assert.Nil(t, card.AssignedTo)
		require.Len(t, card.LastAssigned, 1)
	}
	assert.Equal(t, group.GroupMembers[0].ID, f.card(t, "010").LastAssigned[0])
	assert.Equal(t, group.GroupMembers[1].ID, f.card(t, "011").LastAssigned[0])

	session := f.session(t, res.SessionID)
	require.NotNil(t, session.CheckOutTime)
	assert.Equal(t, exitAt, *session.CheckOutTime)
	assert.Equal(t, "North", *session.ExitGate)

	assert.Equal(t, []string{comm.EventCheckedIn, comm.EventCheckedOut}, f.events.types())
	f.requireConsistent(t)
}

func TestPartialCheckoutKeepsSessionOpen(t *testing.T) {
	f := newFixture(t)
	res, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "001", "002", "003"))
	require.NoError(t, err)

	out, err := f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"001", "003"}, ExitGate: "North"})
	require.NoError(t, err)
	assert.Empty(t, out.ClosedSessions)
	assert.True(t, f.session(t, res.SessionID).IsOpen())
	assert.Equal(t, models.CardAssigned, f.card(t, "002").Status)
	f.requireConsistent(t)

	// the visitor is still inside
	_, err = f.checkin.Checkin(f.ctx, checkinRequest("0911", "010"))
	requireCode(t, err, CodeOngoingSessionExists)

	out, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"002"}, ExitGate: "South"})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{res.SessionID}, out.ClosedSessions)
	assert.Equal(t, "South", *f.session(t, res.SessionID).ExitGate)
	f.requireConsistent(t)
}

func TestCheckoutIgnoresCardsNobodyHolds(t *testing.T) {
	f := newFixture(t)
	_, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "010"))
	require.NoError(t, err)

	out, err := f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"777", "001", "010", "010"}, ExitGate: "North"})
	require.NoError(t, err)
	assert.Equal(t, []string{"010"}, out.Released)
	assert.Equal(t, []string{"777", "001"}, out.Ignored)

	out, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"010"}, ExitGate: "North"})
	require.NoError(t, err)
	assert.Empty(t, out.Released, "a second checkout of the same card is a no-op")
	assert.Equal(t, []string{"010"}, out.Ignored)
	f.requireConsistent(t)
}

func TestReusedCardLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	first := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	f.checkout.now = func() time.Time { return first }

	res1, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "010"))
	require.NoError(t, err)
	_, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"010"}, ExitGate: "North"})
	require.NoError(t, err)

	res2, err := f.checkin.Checkin(f.ctx, checkinRequest("0922", "010", "011"))
	require.NoError(t, err)
	f.checkout.now = func() time.Time { return first.Add(time.Hour) }
	_, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"010", "011"}, ExitGate: "South"})
	require.NoError(t, err)

	old := f.groupOf(t, res1.SessionID).GroupMembers[0]
	assert.Equal(t, first, *old.CheckOutTime)
	assert.Equal(t, "North", *old.ExitGate)
	assert.Equal(t, "North", *f.session(t, res1.SessionID).ExitGate)
	assert.Equal(t, "South", *f.session(t, res2.SessionID).ExitGate)

	history := f.card(t, "010").LastAssigned
	require.Len(t, history, 2)
	assert.Equal(t, old.ID, history[0])
	assert.Equal(t, f.groupOf(t, res2.SessionID).GroupMembers[0].ID, history[1])
	f.requireConsistent(t)
}

func TestCheckoutAcrossGroups(t *testing.T) {
	f := newFixture(t)
	a, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "001", "002"))
	require.NoError(t, err)
	b, err := f.checkin.Checkin(f.ctx, checkinRequest("0922", "010"))
	require.NoError(t, err)

	out, err := f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"002", "010"}, ExitGate: "East"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"002", "010"}, out.Released)
	assert.Equal(t, []primitive.ObjectID{b.SessionID}, out.ClosedSessions)
	assert.True(t, f.session(t, a.SessionID).IsOpen())
	f.requireConsistent(t)
}

func TestCheckoutReopensSessionClosedTooEarly(t *testing.T) {
	f := newFixture(t)
	res, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "001", "002"))
	require.NoError(t, err)

	// a stale closure written while a member is still inside
	gate, at := "North", time.Now()
	require.NoError(t, f.sessions.SetCheckout(f.ctx, res.SessionID, &gate, &at))

	_, err = f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"001"}, ExitGate: "North"})
	require.NoError(t, err)

	session := f.session(t, res.SessionID)
	assert.True(t, session.IsOpen())
	assert.Nil(t, session.ExitGate)
	f.requireConsistent(t)
}

func TestCheckoutOfAnAlreadyReleasedCardIsIgnored(t *testing.T) {
	f := newFixture(t)
	res, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "010"))
	require.NoError(t, err)

	// a concurrent checkout of the same card got to the release first
	member := f.groupOf(t, res.SessionID).GroupMembers[0]
	require.NoError(t, f.cards.Release(f.ctx, "010", member.ID))

	out, err := f.checkout.Checkout(f.ctx, CheckoutRequest{CardIDs: []string{"010"}, ExitGate: "North"})
	require.NoError(t, err)
	assert.Empty(t, out.Released)
	assert.Equal(t, []string{"010"}, out.Ignored)
	assert.Equal(t, []primitive.ObjectID{res.SessionID}, out.ClosedSessions)

	card := f.card(t, "010")
	assert.Equal(t, []primitive.ObjectID{member.ID}, card.LastAssigned, "history is written once")

	f.events.mu.Lock()
	last := f.events.events[len(f.events.events)-1]
	f.events.mu.Unlock()
	require.Equal(t, comm.EventCheckedOut, last.Type)
	event := last.Data.(comm.CheckedOutEvent)
	assert.Empty(t, event.CardIDs, "the card is not announced as released twice")
	assert.Equal(t, []string{res.SessionID.Hex()}, event.ClosedSessions)
	f.requireConsistent(t)
}
