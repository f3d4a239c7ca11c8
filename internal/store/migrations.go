package store

// migration is a single schema change.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_sessions",
		SQL: `
			CREATE TABLE sessions (
				id               TEXT PRIMARY KEY,
				paid             INTEGER NOT NULL DEFAULT 0,
				paid_at          TEXT,
				category         TEXT NOT NULL DEFAULT '',
				ready_for_payment INTEGER NOT NULL DEFAULT 0,
				transcript       TEXT NOT NULL DEFAULT '[]',
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "index_sessions_updated",
		SQL:     `CREATE INDEX idx_sessions_updated ON sessions(updated_at DESC);`,
	},
}
