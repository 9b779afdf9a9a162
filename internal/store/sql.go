package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/shared"
)

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// SQLStore implements Repository on top of SQLite or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	s, err := open(driverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgres creates a new PostgreSQL-backed repository.
func NewPostgres(databaseURL string) (Repository, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required for postgres")
	}
	s, err := open(driverPostgres, databaseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func open(driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLStore) initSchema() error {
	if _, err := s.db.Exec(schemaFor(s.driver)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// withRetry retries writes that lose a lock race with exponential backoff:
// 50ms, 100ms, 200ms.
func (s *SQLStore) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(shared.IsRetryableDBError),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("database write conflict, retrying", "op", op, "attempt", n+1, "error", err)
		}),
	)
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.withRetry(ctx, op, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type userRow struct {
	UserID     string `db:"user_id"`
	Username   string `db:"username"`
	LastSeenAt int64  `db:"last_seen_at"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		UserID:     r.UserID,
		Username:   r.Username,
		LastSeenAt: time.Unix(r.LastSeenAt, 0),
		CreatedAt:  time.Unix(r.CreatedAt, 0),
		UpdatedAt:  time.Unix(r.UpdatedAt, 0),
	}
}

// GetUser retrieves a user by their user ID.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return row.toDomain(), nil
}

// UpsertUser creates or updates a user record.
func (s *SQLStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.exec(ctx, "upsert user", query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	return err
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.exec(ctx, "update last_seen", query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// ListInactiveUsers returns users last seen before the given time.
func (s *SQLStore) ListInactiveUsers(ctx context.Context, before time.Time) ([]*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE last_seen_at < ? ORDER BY last_seen_at`

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), before.Unix()); err != nil {
		return nil, fmt.Errorf("query inactive users: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// DeleteUser removes a user and all journal rows in one transaction.
func (s *SQLStore) DeleteUser(ctx context.Context, userID string) error {
	tables := []string{"mood_entries", "chat_messages", "gratitude_entries", "achievement_baselines", "users"}

	return s.withRetry(ctx, "delete user", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete user: %w", err)
		}
		for _, table := range tables {
			query := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", table))
			if _, err := tx.ExecContext(ctx, query, userID); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit delete user: %w", err)
		}
		return nil
	})
}

type moodRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Date      string `db:"entry_date"`
	Mood      string `db:"mood"`
	Note      string `db:"note"`
	CreatedAt int64  `db:"created_at"`
}

func moodsFromRows(rows []moodRow) []domain.MoodEntry {
	out := make([]domain.MoodEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.MoodEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Date:      r.Date,
			Mood:      domain.Mood(r.Mood),
			Note:      r.Note,
			CreatedAt: time.Unix(r.CreatedAt, 0),
		})
	}
	return out
}

// AppendMood stores a new mood check-in. ID and CreatedAt are filled in
// when empty.
func (s *SQLStore) AppendMood(ctx context.Context, entry *domain.MoodEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO mood_entries (id, user_id, entry_date, mood, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, "insert mood entry", query,
		entry.ID, entry.UserID, entry.Date, string(entry.Mood), entry.Note, entry.CreatedAt.Unix(),
	)
	return err
}

// ListMoods returns the complete mood log of a user ordered by date.
func (s *SQLStore) ListMoods(ctx context.Context, userID string) ([]domain.MoodEntry, error) {
	query := `
		SELECT id, user_id, entry_date, mood, note, created_at
		FROM mood_entries WHERE user_id = ?
		ORDER BY entry_date, created_at`

	var rows []moodRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("query mood entries: %w", err)
	}
	return moodsFromRows(rows), nil
}

// ListMoodsInRange returns mood entries with from <= date <= to. Dates are
// stored as YYYY-MM-DD so lexical order matches calendar order.
func (s *SQLStore) ListMoodsInRange(ctx context.Context, userID, from, to string) ([]domain.MoodEntry, error) {
	query := `
		SELECT id, user_id, entry_date, mood, note, created_at
		FROM mood_entries WHERE user_id = ? AND entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date, created_at`

	var rows []moodRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), userID, from, to); err != nil {
		return nil, fmt.Errorf("query mood range: %w", err)
	}
	return moodsFromRows(rows), nil
}

type chatRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Role      string `db:"role"`
	Body      string `db:"body"`
	CreatedAt int64  `db:"created_at"`
}

// AppendChatMessage stores a conversation turn.
func (s *SQLStore) AppendChatMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO chat_messages (id, user_id, role, body, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, "insert chat message", query,
		msg.ID, msg.UserID, string(msg.Role), msg.Text, msg.CreatedAt.Unix(),
	)
	return err
}

// ListChatMessages returns the last limit messages, oldest first.
func (s *SQLStore) ListChatMessages(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	query := `
		SELECT id, user_id, role, body, created_at FROM (
			SELECT seq, id, user_id, role, body, created_at
			FROM chat_messages WHERE user_id = ?
			ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) recent ORDER BY seq ASC`

	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}

	out := make([]domain.ChatMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ChatMessage{
			ID:        r.ID,
			UserID:    r.UserID,
			Role:      domain.Role(r.Role),
			Text:      r.Body,
			CreatedAt: time.Unix(r.CreatedAt, 0),
		})
	}
	return out, nil
}

// CountChatMessages returns the number of stored turns for a user.
func (s *SQLStore) CountChatMessages(ctx context.Context, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), userID); err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return n, nil
}

type gratitudeRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Date      string `db:"entry_date"`
	Body      string `db:"body"`
	CreatedAt int64  `db:"created_at"`
}

// AppendGratitude stores a gratitude diary entry.
func (s *SQLStore) AppendGratitude(ctx context.Context, entry *domain.GratitudeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO gratitude_entries (id, user_id, entry_date, body, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, "insert gratitude entry", query,
		entry.ID, entry.UserID, entry.Date, entry.Text, entry.CreatedAt.Unix(),
	)
	return err
}

// ListGratitude returns the newest limit gratitude entries, newest first.
func (s *SQLStore) ListGratitude(ctx context.Context, userID string, limit int) ([]domain.GratitudeEntry, error) {
	query := `
		SELECT id, user_id, entry_date, body, created_at
		FROM gratitude_entries WHERE user_id = ?
		ORDER BY entry_date DESC, created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []gratitudeRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query gratitude entries: %w", err)
	}

	out := make([]domain.GratitudeEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.GratitudeEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Date:      r.Date,
			Text:      r.Body,
			CreatedAt: time.Unix(r.CreatedAt, 0),
		})
	}
	return out, nil
}

type baselineRow struct {
	UserID       string `db:"user_id"`
	UnlockedJSON string `db:"unlocked_json"`
	SyncedAt     int64  `db:"synced_at"`
}

// GetBaseline returns the last notified unlock set of a user.
func (s *SQLStore) GetBaseline(ctx context.Context, userID string) (*domain.AchievementBaseline, error) {
	query := `SELECT user_id, unlocked_json, synced_at FROM achievement_baselines WHERE user_id = ?`

	var row baselineRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan baseline: %w", err)
	}

	var unlocked []string
	if err := json.Unmarshal([]byte(row.UnlockedJSON), &unlocked); err != nil {
		return nil, fmt.Errorf("decode baseline for %s: %w", userID, err)
	}
	return &domain.AchievementBaseline{
		UserID:   row.UserID,
		Unlocked: unlocked,
		SyncedAt: time.Unix(row.SyncedAt, 0),
	}, nil
}

// SaveBaseline creates or replaces the unlock baseline of a user.
func (s *SQLStore) SaveBaseline(ctx context.Context, baseline *domain.AchievementBaseline) error {
	unlocked := baseline.Unlocked
	if unlocked == nil {
		unlocked = []string{}
	}
	data, err := json.Marshal(unlocked)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}

	query := `
	INSERT INTO achievement_baselines (user_id, unlocked_json, synced_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		unlocked_json = excluded.unlocked_json,
		synced_at = excluded.synced_at`

	_, err = s.exec(ctx, "save baseline", query, baseline.UserID, string(data), baseline.SyncedAt.Unix())
	return err
}
