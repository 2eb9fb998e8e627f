package ledger

import (
	"iter"
	"slices"

	"github.com/persistorai/auditledger/internal/models"
)

// Query returns the sealed and pending events matching opts, oldest first.
// The matching set is captured when Query is called; ranging over the result
// more than once yields the same events. Limit and Offset are not applied.
func (l *Ledger) Query(opts models.QueryOpts) iter.Seq[models.AuditEvent] {
	l.mu.RLock()
	var matched []models.AuditEvent
	for _, b := range l.chain {
		for i := range b.Events {
			if opts.Matches(&b.Events[i]) {
				matched = append(matched, b.Events[i])
			}
		}
	}
	for i := range l.pending {
		if opts.Matches(&l.pending[i]) {
			matched = append(matched, l.pending[i])
		}
	}
	l.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b models.AuditEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return func(yield func(models.AuditEvent) bool) {
		for i := range matched {
			if !yield(matched[i].Clone()) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, skipping offset events and keeping at most
// limit (limit <= 0 keeps everything). The bool reports whether more events
// followed the returned page.
func Collect(seq iter.Seq[models.AuditEvent], offset, limit int) ([]models.AuditEvent, bool) {
	out := []models.AuditEvent{}
	skipped := 0
	more := false

	for ev := range seq {
		if skipped < offset {
			skipped++
			continue
		}

		if limit > 0 && len(out) == limit {
			more = true
			break
		}

		out = append(out, ev)
	}

	return out, more
}
