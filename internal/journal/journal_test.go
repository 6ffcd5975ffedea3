package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/czone-gateway/internal/broadcast"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/database"
	"github.com/nerrad567/czone-gateway/internal/state"
	"github.com/nerrad567/czone-gateway/migrations"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "alarms.db"),
		BusyTimeout: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func alarm(id string, st czone.AlarmState, activated time.Time) state.Alarm {
	return state.Alarm{
		ID: id, Title: "Low Voltage", Severity: czone.SeverityWarning,
		State: st, ActivatedAt: activated, Things: []string{"battery.1"},
	}
}

func kinds(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.AlarmID+":"+e.Kind)
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		prev state.AlarmList
		next state.AlarmList
		want []string
	}{
		{
			name: "new alarms",
			prev: state.AlarmList{},
			next: state.AlarmList{
				"2": alarm("2", czone.AlarmAcknowledged, t0),
				"1": alarm("1", czone.AlarmEnabled, t0),
			},
			want: []string{"1:activated", "2:acknowledged"},
		},
		{
			name: "unchanged",
			prev: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
			next: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
		},
		{
			name: "acknowledged",
			prev: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
			next: state.AlarmList{"1": alarm("1", czone.AlarmAcknowledged, t0)},
			want: []string{"1:acknowledged"},
		},
		{
			name: "disabled",
			prev: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
			next: state.AlarmList{"1": alarm("1", czone.AlarmDisabled, t0)},
			want: []string{"1:disabled"},
		},
		{
			name: "reactivated",
			prev: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
			next: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t1)},
			want: []string{"1:activated"},
		},
		{
			name: "cleared",
			prev: state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)},
			next: state.AlarmList{},
			want: []string{"1:cleared"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next, SourceBackend, t1)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, kinds(got))
			for _, e := range got {
				assert.Equal(t, SourceBackend, e.Source)
				assert.Equal(t, "Warning", e.Severity)
			}
		})
	}
}

func TestRepository_AppendAndRecent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entries := []Entry{
		{AlarmID: "29", Kind: KindActivated, Source: SourceBackend, Severity: "Warning",
			Title: "Low Voltage", Things: []string{"battery.1", "inverterCharger.258"}, ActivatedAt: t0, RecordedAt: t0},
		{AlarmID: "engine.1.discrete_status1.0", Kind: KindCleared, Source: SourceEngine, Severity: "Warning",
			RecordedAt: t1},
	}
	require.NoError(t, repo.Append(ctx, entries))
	assert.NotZero(t, entries[0].ID)

	got, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "engine.1.discrete_status1.0", got[0].AlarmID)
	assert.True(t, got[0].ActivatedAt.IsZero())
	assert.Nil(t, got[0].Things)

	assert.Equal(t, "29", got[1].AlarmID)
	assert.Equal(t, []string{"battery.1", "inverterCharger.258"}, got[1].Things)
	assert.True(t, got[1].ActivatedAt.Equal(t0))
	assert.True(t, got[1].RecordedAt.Equal(t0))

	got, err = repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRepository_RejectsUnknownKind(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.Append(context.Background(), []Entry{{AlarmID: "1", Kind: "exploded", Source: SourceBackend, Severity: "Warning"}})
	assert.Error(t, err)
}

// MockRepository collects appended entries.
type MockRepository struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MockRepository) Append(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MockRepository) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (m *MockRepository) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return kinds(m.entries)
}

func TestJournal_Watch(t *testing.T) {
	repo := &MockRepository{}
	subject := broadcast.NewWithValue(state.AlarmList{})
	j := New(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Watch(ctx, subject, SourceEngine)
		close(done)
	}()

	subject.Publish(state.AlarmList{"1": alarm("1", czone.AlarmEnabled, t0)})
	require.Eventually(t, func() bool { return len(repo.Kinds()) == 1 }, time.Second, 5*time.Millisecond)

	subject.Publish(state.AlarmList{})
	require.Eventually(t, func() bool { return len(repo.Kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1:activated", "1:cleared"}, repo.Kinds())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
