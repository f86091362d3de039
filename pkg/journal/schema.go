package journal

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    tick INTEGER NOT NULL,
    pass INTEGER NOT NULL,
    rule_id TEXT,
    event TEXT NOT NULL,
    event_id TEXT,
    phase TEXT,
    error_kind TEXT,
    message TEXT,
    actions TEXT,
    outputs TEXT,
    changed BOOLEAN NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_rule ON records(rule_id);
CREATE INDEX IF NOT EXISTS idx_records_event ON records(event);
CREATE INDEX IF NOT EXISTS idx_records_recorded ON records(recorded_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

const insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

const getSchemaVersion = `SELECT MAX(version) FROM schema_version`

const insertRecord = `
INSERT INTO records (
    id, kind, tick, pass, rule_id, event, event_id, phase, error_kind,
    message, actions, outputs, changed, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `id, kind, tick, pass, rule_id, event, event_id, phase, error_kind,
    message, actions, outputs, changed, recorded_at`
