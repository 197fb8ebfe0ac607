package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stonks-go/src/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, found, err := s.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, found)

	state := models.TrailState{Activated: true, PeakPrice: 110}
	require.NoError(t, s.Put(ctx, "AAPL", state))

	got, found, err := s.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, state, got)

	require.NoError(t, s.Delete(ctx, "AAPL"))
	_, found, err = s.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreDeleteMissingIsNoop(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Delete(context.Background(), "GONE"))
}

func TestMemoryStoreTradeLog(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	pos := models.Position{
		Ticker:       "TSLA",
		Side:         models.SideShort,
		Quantity:     40,
		EntryPrice:   100,
		CurrentPrice: 92,
	}
	closedAt := time.Date(2024, 6, 17, 20, 0, 0, 0, time.UTC)
	require.NoError(t, s.LogClosedTrade(ctx, pos, "trailing_stop", closedAt))

	trades := s.ClosedTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, "TSLA", trades[0].Symbol)
	assert.Equal(t, models.SideShort, trades[0].Side)
	assert.InDelta(t, 92, trades[0].ExitPrice, 1e-9)
	assert.Equal(t, "trailing_stop", trades[0].Reason)
	assert.Equal(t, closedAt, trades[0].ClosedAt)
}
