package poller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainwatch/feed"
	"trainwatch/model"
	"trainwatch/normalize"
)

type stubAdapter struct {
	agency model.Agency
	trains []model.Train
	err    error
	calls  int
}

func (s *stubAdapter) Agency() model.Agency { return s.agency }

func (s *stubAdapter) Poll(context.Context) ([]model.Train, error) {
	s.calls++
	return s.trains, s.err
}

func stubTrain(agency model.Agency, number string, updated time.Time) model.Train {
	return model.Train{
		ID:      model.TrainID(agency, number),
		Agency:  agency,
		Number:  number,
		Updated: &updated,
		Stops:   []model.Stop{{Code: "A"}},
	}
}

func testPoller(store *normalize.Store, adapters ...feed.Adapter) *Poller {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(adapters, store, time.Minute, 5*time.Second, logger, nil)
}

func TestFailingAgencyIsIsolated(t *testing.T) {
	now := time.Now()
	good := &stubAdapter{
		agency: model.AgencyVia,
		trains: []model.Train{stubTrain(model.AgencyVia, "62", now)},
	}
	bad := &stubAdapter{
		agency: model.AgencyAmtrak,
		err:    feed.ErrUpstreamUnavailable,
	}

	store := normalize.NewStore()
	p := testPoller(store, good, bad)
	p.PollOnce(context.Background())

	assert.Equal(t, 1, store.Count())
	_, ok := store.Train("via/62")
	assert.True(t, ok)
	assert.True(t, p.IsReady())
}

func TestFailureKeepsLastGoodBatch(t *testing.T) {
	now := time.Now()
	a := &stubAdapter{
		agency: model.AgencyAmtrak,
		trains: []model.Train{stubTrain(model.AgencyAmtrak, "354", now)},
	}

	store := normalize.NewStore()
	p := testPoller(store, a)
	p.PollOnce(context.Background())
	require.Equal(t, 1, store.Count())

	// Next cycle fails upstream; the held batch must survive.
	a.err = errors.New("503 from upstream")
	a.trains = nil
	p.PollOnce(context.Background())

	assert.Equal(t, 1, store.Count())
	got, ok := store.Train("amtrak/354")
	require.True(t, ok)
	assert.Equal(t, now.Unix(), got.Updated.Unix())
	assert.Equal(t, 2, a.calls)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := &stubAdapter{agency: model.AgencyAmtrak}
	p := testPoller(normalize.NewStore(), a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.GreaterOrEqual(t, a.calls, 1)
}
