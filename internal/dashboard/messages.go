package dashboard

import "time"

// tickMsg drives the periodic poll of the Executor's Snapshot.
type tickMsg time.Time
