// Package journal — журнал загрузок в SQLite: сессия на каждый запуск шлюза
// и строка на каждый опубликованный POST-код.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiwa/bpc-gw/internal/postcode"

	_ "modernc.org/sqlite"
)

// Journal — открытая база и текущая сессия.
type Journal struct {
	db      *sql.DB
	session string
	now     func() time.Time
}

// Entry — строка журнала.
type Entry struct {
	Session    string
	RecordedAt time.Time
	Record     postcode.Record
}

// Open открывает (или создаёт) базу по path и начинает новую сессию. ":memory:" — база в памяти.
func Open(ctx context.Context, path string) (*Journal, error) {
	j, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	j.session = uuid.NewString()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, started_at) VALUES (?, ?)`,
		j.session, j.now().UTC().Format(time.RFC3339Nano)); err != nil {
		j.db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return j, nil
}

// OpenHistory открывает базу только для чтения истории, без новой сессии.
func OpenHistory(ctx context.Context, path string) (*Journal, error) {
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// один писатель; для ":memory:" ещё и единственная копия базы
	db.SetMaxOpenConns(1)
	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS post_codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		code INTEGER NOT NULL,
		captured_ms INTEGER NOT NULL,
		delta_ms INTEGER NOT NULL,
		wall_time TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS post_codes_session ON post_codes (session_id, id);`
	if _, err := j.db.ExecContext(ctx, query); err != nil {
		return err
	}
	return j.addColumn(ctx, "post_codes", "device", `TEXT NOT NULL DEFAULT ''`)
}

// addColumn добавляет колонку в таблицу из ранней версии схемы.
func (j *Journal) addColumn(ctx context.Context, table, column, decl string) error {
	rows, err := j.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return err
	}
	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil || found {
		return err
	}
	_, err = j.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// Session — идентификатор текущей сессии; пусто для OpenHistory.
func (j *Journal) Session() string {
	return j.session
}

// WriteRecord добавляет событие в текущую сессию.
func (j *Journal) WriteRecord(ctx context.Context, r postcode.Record) error {
	if j.session == "" {
		return errors.New("journal opened without session")
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO post_codes (
		session_id, device, code, captured_ms, delta_ms, wall_time, description, text, recorded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.session, r.Device, int(r.Event.Code), int64(r.Event.Captured), int64(r.Event.Delta),
		r.Time, r.Description, r.Text, j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert post code: %w", err)
	}
	return nil
}

// LastSession возвращает последнюю сессию, в которой есть коды, кроме текущей.
// Пустая строка — таких сессий нет.
func (j *Journal) LastSession(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `
		SELECT s.session_id FROM sessions s
		WHERE s.session_id != ? AND EXISTS (SELECT 1 FROM post_codes p WHERE p.session_id = s.session_id)
		ORDER BY s.rowid DESC
		LIMIT 1`, j.session).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// Entries возвращает коды сессии в порядке поступления.
func (j *Journal) Entries(ctx context.Context, session string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT device, code, captured_ms, delta_ms, wall_time, description, text, recorded_at
		FROM post_codes
		WHERE session_id = ?
		ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			code            int
			captured, delta int64
			recorded        string
			e               = Entry{Session: session}
		)
		if err := rows.Scan(&e.Record.Device, &code, &captured, &delta, &e.Record.Time, &e.Record.Description, &e.Record.Text, &recorded); err != nil {
			return nil, err
		}
		e.Record.Event = postcode.Event{Code: postcode.Code(code), Captured: uint32(captured), Delta: uint32(delta)}
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close закрывает базу.
func (j *Journal) Close() error {
	return j.db.Close()
}
