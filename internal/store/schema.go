package store

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

const sharedSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	last_seen_at BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at);

CREATE TABLE IF NOT EXISTS mood_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	entry_date TEXT NOT NULL,
	mood TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mood_entries_user_date ON mood_entries(user_id, entry_date);

CREATE TABLE IF NOT EXISTS gratitude_entries (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	entry_date TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gratitude_user_created ON gratitude_entries(user_id, created_at);

CREATE TABLE IF NOT EXISTS achievement_baselines (
	user_id TEXT PRIMARY KEY,
	unlocked_json TEXT NOT NULL,
	synced_at BIGINT NOT NULL
);
`

// Chat turns need a strict insertion order, and the auto-increment syntax
// differs between engines.
const sqliteChatSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, seq);
`

const postgresChatSchema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, seq);
`

func schemaFor(driver string) string {
	if driver == driverPostgres {
		return sharedSchema + postgresChatSchema
	}
	return "PRAGMA busy_timeout = 5000;\n" + sharedSchema + sqliteChatSchema
}
