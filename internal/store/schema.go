package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS push_attempts (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    seq                  INTEGER NOT NULL,
    submitted_at         TEXT NOT NULL,
    completed_at         TEXT NOT NULL,
    instance             TEXT NOT NULL,
    sheet                TEXT NOT NULL,
    outcome              TEXT NOT NULL,
    status_code          INTEGER,
    error                TEXT,
    cred_value           REAL,
    tech_value           REAL,
    ideo_value           REAL
);

CREATE INDEX IF NOT EXISTS idx_push_attempts_completed ON push_attempts(completed_at);
`
