package domain

import "time"

// SyncStats holds statistics about one collection sync run.
type SyncStats struct {
	Total     int // reported by the remote probe
	Fetched   int
	New       int
	Skipped   int
	Merged    int
	Errors    int
	Published int
	Duration  time.Duration
}

// EnrichStats holds statistics about one enrichment pass.
type EnrichStats struct {
	Candidates int
	Succeeded  int
	Failed     int
	ByType     map[FetchErrorType]int
	Duration   time.Duration
}

// ProcessStats holds statistics about one summarization pass.
type ProcessStats struct {
	Candidates int
	Processed  int
	Errors     int
	Duration   time.Duration
}

// PushStats holds statistics about one tag push-back pass.
type PushStats struct {
	Tagged int
	Pushed int
	Errors int
}

// BackfillStats holds statistics about one missing-only backfill run.
type BackfillStats struct {
	Missing       int
	Loaded        int
	FailedBatches int
}

// DeleteStats holds statistics about one bulk deletion run.
type DeleteStats struct {
	Total         int
	RemoteDeleted int
	LocalDeleted  int
	Failed        int
}

// SyncState tracks per-source incremental sync progress.
type SyncState struct {
	ID           int64     `db:"id"`
	SourceID     string    `db:"source_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastSince    int64     `db:"last_since"` // unix timestamp passed as "since"
	TotalSynced  int64     `db:"total_synced"`
}
