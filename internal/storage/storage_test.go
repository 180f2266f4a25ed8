package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tokenpools/internal/model"
)

var (
	_ EventSink     = (*JsonlStorage)(nil)
	_ EventSink     = Multi(nil)
	_ SnapshotStore = (*SnapshotFile)(nil)
)

func sampleEvents() []model.Event {
	poolID := uint64(2)
	lockID := uint64(0)
	return []model.Event{
		{ID: "a", Name: model.EventContributed, PoolID: &poolID, Account: "0x01", Amount: "3000", Timestamp: 10, Height: 1},
		{ID: "b", Name: model.EventLocked, LockID: &lockID, Amount: "50000", Timestamp: 11, Fields: map[string]string{"kind": "wallet"}},
	}
}

func TestJsonlAppendsAcrossBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	s := NewJsonlStorage(path)
	ctx := context.Background()

	events := sampleEvents()
	require.NoError(t, s.PutEventBatch(ctx, events[:1]))
	require.NoError(t, s.PutEventBatch(ctx, nil))
	require.NoError(t, s.PutEventBatch(ctx, events[1:]))

	got, err := ReadEvents(path)
	require.NoError(t, err)
	require.Equal(t, events, got)
}

func TestReadEventsReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"a\"}\n\nnot json\n"), 0o644))
	_, err := ReadEvents(path)
	require.ErrorContains(t, err, "line 3")
}

type failingSink struct{ calls int }

func (f *failingSink) PutEventBatch(context.Context, []model.Event) error {
	f.calls++
	return errors.New("down")
}

func TestMultiStopsAtFirstError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	bad := &failingSink{}
	after := &failingSink{}
	err := Multi{NewJsonlStorage(path), bad, after}.PutEventBatch(context.Background(), sampleEvents())
	require.EqualError(t, err, "down")
	require.Equal(t, 1, bad.calls)
	require.Zero(t, after.calls)

	got, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	f := NewSnapshotFile(path)
	ctx := context.Background()

	_, ok, err := f.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	snap := model.Snapshot{
		Timestamp: 1_700_000_000,
		Height:    42,
		Pools:     []model.Pool{{ID: 0, Variant: "allocation", Price: "1", TotalRaised: "3000"}},
		Contributions: []model.Contribution{
			{PoolID: 0, Account: "0x01", Amount: "3000", RewardReleased: "0", StakeWithdrawn: "0", Refunded: "0"},
		},
		Locks: []model.Lock{{ID: 0, Kind: "linear", Vesting: model.VestingRecord{Cliff: 5}}},
	}
	require.NoError(t, f.SaveSnapshot(ctx, snap))
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	got, ok, err := f.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, got)
}

func TestSnapshotFileRejectsDirectory(t *testing.T) {
	_, _, err := NewSnapshotFile(t.TempDir()).LoadSnapshot(context.Background())
	require.Error(t, err)
}
