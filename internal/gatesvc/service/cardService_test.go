package service

import (
	"testing"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCards(t *testing.T) {
	f := newFixture(t)
	_, err := f.checkin.Checkin(f.ctx, checkinRequest("0911", "010"))
	require.NoError(t, err)

	ids, err := f.pool.FindAvailable(f.ctx, "^01")
	require.NoError(t, err)
	assert.Equal(t, []string{"011"}, ids)

	ids, err = f.pool.FindAssigned(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"010"}, ids)

	_, err = f.pool.FindAvailable(f.ctx, "0[")
	requireCode(t, err, CodeInvalidPattern)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)

	avail, err := f.pool.CheckAvailability(f.ctx, []string{"010", "011"})
	require.NoError(t, err)
	assert.True(t, avail.OK)
	assert.Empty(t, avail.Unavailable)

	avail, err = f.pool.CheckAvailability(f.ctx, []string{"010", "010", "010", "abc"})
	require.NoError(t, err)
	assert.False(t, avail.OK)
	assert.Equal(t, []string{"010", "abc"}, avail.Unavailable, "each offending id is reported once")
}

func TestProvision(t *testing.T) {
	f := newFixture(t)

	n, err := f.pool.Provision(f.ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	ids, err := f.pool.FindAvailable(f.ctx, "")
	require.NoError(t, err)
	require.Len(t, ids, 12)
	assert.Equal(t, "001", ids[0])
	assert.Equal(t, "012", ids[11])

	n, err = f.pool.Provision(f.ctx, 1200)
	require.NoError(t, err)
	assert.Equal(t, 1200, n)
	ids, err = f.pool.FindAvailable(f.ctx, "^0001$")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, ids, "ids widen with the pool")

	summary, err := f.pool.Summary(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CardSummary{Total: 1200, Available: 1200}, *summary)

	_, err = f.pool.Provision(f.ctx, 0)
	requireCode(t, err, CodeMissingFields)
}
