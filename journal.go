package accounts

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJournalLimit caps how many journal entries are listed at once.
const DefaultJournalLimit = 100

// recordJournal appends a journal line. The journal is an audit aid, so a
// failed write is logged and otherwise ignored.
func recordJournal(ctx context.Context, store JournalStore, now time.Time, accountID, message string) {
	err := store.AddJournalEntry(ctx, &JournalEntry{
		AccountID: accountID,
		Message:   message,
		CreatedAt: now,
	})
	if err != nil {
		slog.Warn("failed to write journal entry", "account_id", accountID, "error", err)
	}
}
