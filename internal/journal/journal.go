package journal

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/czone-gateway/internal/broadcast"
	"github.com/nerrad567/czone-gateway/internal/czone"
	"github.com/nerrad567/czone-gateway/internal/state"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Journal records the transitions between successive alarm lists.
type Journal struct {
	repo Repository
	now  func() time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Journal writing to repo.
func New(repo Repository, logger Logger) *Journal {
	return &Journal{repo: repo, now: time.Now, logger: logger}
}

// Watch diffs every list published on subject against the previous one and
// appends the transitions, tagged with source. It returns when ctx is done.
//
// The subject keeps only its latest value, so lists published in quick
// succession may be observed as one change.
func (j *Journal) Watch(ctx context.Context, subject *broadcast.Subject[state.AlarmList], source string) {
	updates, cancel := subject.Subscribe()
	defer cancel()

	prev := state.AlarmList{}
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			entries := Diff(prev, next, source, j.now())
			if err := j.repo.Append(ctx, entries); err != nil {
				j.logError("journal append failed", err)
				continue
			}
			if len(entries) > 0 {
				j.logDebug("alarm transitions recorded", "source", source, "count", len(entries))
			}
			prev = next
		}
	}
}

// Diff returns the transitions from prev to next, ordered by alarm id.
//
// A new or changed alarm records its current state (an Enabled alarm as
// activated). An Enabled alarm whose activation time moved is activated
// again. An alarm missing from next is cleared.
func Diff(prev, next state.AlarmList, source string, now time.Time) []Entry {
	var entries []Entry
	for _, id := range next.IDs() {
		a := next[id]
		old, known := prev[id]
		changed := !known ||
			old.State != a.State ||
			(a.State == czone.AlarmEnabled && !old.ActivatedAt.Equal(a.ActivatedAt))
		if !changed {
			continue
		}
		entries = append(entries, entry(a, kindOf(a.State), source, now))
	}
	for _, id := range prev.IDs() {
		if _, ok := next[id]; !ok {
			entries = append(entries, entry(prev[id], KindCleared, source, now))
		}
	}
	return entries
}

func kindOf(s czone.AlarmState) string {
	switch s {
	case czone.AlarmEnabled:
		return KindActivated
	case czone.AlarmAcknowledged:
		return KindAcknowledged
	default:
		return KindDisabled
	}
}

func entry(a state.Alarm, kind, source string, now time.Time) Entry {
	return Entry{
		AlarmID:     a.ID,
		Kind:        kind,
		Source:      source,
		Severity:    a.Severity.String(),
		Title:       a.Title,
		Things:      append([]string(nil), a.Things...),
		ActivatedAt: a.ActivatedAt,
		RecordedAt:  now,
	}
}

// SetLogger sets the logger.
func (j *Journal) SetLogger(logger Logger) {
	j.loggerMu.Lock()
	j.logger = logger
	j.loggerMu.Unlock()
}

func (j *Journal) getLogger() Logger {
	j.loggerMu.RLock()
	defer j.loggerMu.RUnlock()
	return j.logger
}

func (j *Journal) logDebug(msg string, keysAndValues ...any) {
	if logger := j.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (j *Journal) logError(msg string, err error) {
	if logger := j.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
