package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/fsm"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/hint"
)

// SQLStore persists sessions to PostgreSQL, MySQL, or SQLite through the
// shared connection pool. Queries are written with ? placeholders and
// rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// NewSQLStore opens (or reuses) a pooled connection and bootstraps the
// schema.
func NewSQLStore(pool *config.DBPool, cfg *config.DatabaseConfig) (*SQLStore, error) {
	if pool == nil || cfg == nil {
		return nil, fmt.Errorf("pool and config are required")
	}

	db, err := pool.Get(cfg)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:      db,
		dialect: cfg.Dialect(),
		logger:  slog.Default(),
	}

	if err := s.bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return s, nil
}

func (s *SQLStore) bootstrap() error {
	text := "TEXT"
	if s.dialect == "mysql" {
		// MySQL needs a bounded key type.
		text = "VARCHAR(128)"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sessions (
			id %s PRIMARY KEY,
			student_id %s NOT NULL,
			question_id %s NOT NULL,
			started_at %s NOT NULL,
			ended_at %s,
			final_state %s,
			coverage DOUBLE PRECISION DEFAULT 0
		)`, text, text, text, text, text, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversation_turns (
			session_id %s NOT NULL,
			turn_number INTEGER NOT NULL,
			speaker %s NOT NULL,
			content TEXT NOT NULL,
			fsm_state %s NOT NULL,
			created_at %s NOT NULL,
			audio_duration DOUBLE PRECISION,
			word_count INTEGER,
			pause_count INTEGER,
			total_pause_duration DOUBLE PRECISION,
			PRIMARY KEY (session_id, turn_number)
		)`, text, text, text, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS hint_records (
			session_id %s NOT NULL,
			level INTEGER NOT NULL,
			concept %s NOT NULL,
			created_at %s NOT NULL
		)`, text, text, text),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS metrics_reports (
			id %s PRIMARY KEY,
			session_id %s NOT NULL,
			wpm DOUBLE PRECISION NOT NULL,
			pause_rate DOUBLE PRECISION NOT NULL,
			hint_dependency DOUBLE PRECISION NOT NULL,
			concept_coverage DOUBLE PRECISION NOT NULL,
			focus_duration DOUBLE PRECISION NOT NULL,
			computed_at %s NOT NULL
		)`, text, text, text),
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateSession implements Store.
func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO sessions (id, student_id, question_id, started_at) VALUES (?, ?, ?, ?)`),
		sess.ID, sess.StudentID, sess.QuestionID, sess.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// AppendTurn implements Store.
func (s *SQLStore) AppendTurn(ctx context.Context, sessionID string, t Turn) error {
	var duration, pauseDuration sql.NullFloat64
	var wordCount, pauseCount sql.NullInt64
	if t.Audio != nil {
		duration = sql.NullFloat64{Float64: t.Audio.DurationSeconds, Valid: true}
		pauseDuration = sql.NullFloat64{Float64: t.Audio.TotalPauseDuration, Valid: true}
		wordCount = sql.NullInt64{Int64: int64(t.Audio.WordCount), Valid: true}
		pauseCount = sql.NullInt64{Int64: int64(t.Audio.PauseCount), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conversation_turns
		 (session_id, turn_number, speaker, content, fsm_state, created_at,
		  audio_duration, word_count, pause_count, total_pause_duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sessionID, t.Number, string(t.Speaker), t.Content, string(t.State),
		t.Timestamp.UTC().Format(timeLayout),
		duration, wordCount, pauseCount, pauseDuration)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// FinalizeSession implements Store.
func (s *SQLStore) FinalizeSession(ctx context.Context, sess *Session, finalState string, coverage float64) error {
	endedAt := ""
	if t, ended := sess.EndedAt(); ended {
		endedAt = t.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET ended_at = ?, final_state = ?, coverage = ? WHERE id = ?`),
		endedAt, finalState, coverage, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	return nil
}

// AppendHint implements Store and hint.Store.
func (s *SQLStore) AppendHint(ctx context.Context, rec hint.Record) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO hint_records (session_id, level, concept, created_at) VALUES (?, ?, ?, ?)`),
		rec.SessionID, int(rec.Level), rec.Concept, rec.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert hint record: %w", err)
	}
	return nil
}

// WriteMetricsReport implements Store. Re-writing the same session's report
// replaces it so a retried end-of-session stays idempotent.
func (s *SQLStore) WriteMetricsReport(ctx context.Context, report *MetricsReport) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM metrics_reports WHERE session_id = ?`), report.SessionID); err != nil {
		return fmt.Errorf("failed to clear previous report: %w", err)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO metrics_reports
		 (id, session_id, wpm, pause_rate, hint_dependency, concept_coverage, focus_duration, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		report.ID, report.SessionID, report.WPM, report.PauseRate,
		report.HintDependency, report.ConceptCoverage, report.FocusDurationSeconds,
		report.ComputedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert metrics report: %w", err)
	}
	return nil
}

// LoadSession implements Store.
func (s *SQLStore) LoadSession(ctx context.Context, sessionID string) (*StoredSession, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, student_id, question_id, started_at, ended_at, final_state, coverage
		 FROM sessions WHERE id = ?`), sessionID)

	var stored StoredSession
	var endedAt, finalState sql.NullString
	err := row.Scan(&stored.ID, &stored.StudentID, &stored.QuestionID,
		&stored.StartedAt, &endedAt, &finalState, &stored.Coverage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	stored.EndedAt = endedAt.String
	stored.FinalState = finalState.String
	return &stored, nil
}

// ListConversation implements Store.
func (s *SQLStore) ListConversation(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT turn_number, speaker, content, fsm_state, created_at,
		        audio_duration, word_count, pause_count, total_pause_duration
		 FROM conversation_turns WHERE session_id = ? ORDER BY turn_number`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var speaker, state, createdAt string
		var duration, pauseDuration sql.NullFloat64
		var wordCount, pauseCount sql.NullInt64

		if err := rows.Scan(&t.Number, &speaker, &t.Content, &state, &createdAt,
			&duration, &wordCount, &pauseCount, &pauseDuration); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		t.Speaker = Speaker(speaker)
		t.State = fsm.State(state)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			t.Timestamp = ts
		}
		if duration.Valid {
			t.Audio = &AudioFeatures{
				DurationSeconds:    duration.Float64,
				WordCount:          int(wordCount.Int64),
				PauseCount:         int(pauseCount.Int64),
				TotalPauseDuration: pauseDuration.Float64,
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListStudentSessions implements Store.
func (s *SQLStore) ListStudentSessions(ctx context.Context, studentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id FROM sessions WHERE student_id = ? ORDER BY started_at DESC`), studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadMetricsReport reads a persisted report, nil when absent.
func (s *SQLStore) LoadMetricsReport(ctx context.Context, sessionID string) (*MetricsReport, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, session_id, wpm, pause_rate, hint_dependency, concept_coverage, focus_duration, computed_at
		 FROM metrics_reports WHERE session_id = ?`), sessionID)

	var report MetricsReport
	var computedAt string
	err := row.Scan(&report.ID, &report.SessionID, &report.WPM, &report.PauseRate,
		&report.HintDependency, &report.ConceptCoverage, &report.FocusDurationSeconds, &computedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics report: %w", err)
	}

	if ts, err := time.Parse(timeLayout, computedAt); err == nil {
		report.ComputedAt = ts
	}
	return &report, nil
}

// ListHints reads the persisted hint log for a session in issue order.
func (s *SQLStore) ListHints(ctx context.Context, sessionID string) ([]hint.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT session_id, level, concept, created_at
		 FROM hint_records WHERE session_id = ? ORDER BY created_at`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hints: %w", err)
	}
	defer rows.Close()

	var recs []hint.Record
	for rows.Next() {
		var rec hint.Record
		var level int
		var createdAt string
		if err := rows.Scan(&rec.SessionID, &level, &rec.Concept, &createdAt); err != nil {
			return nil, err
		}
		rec.Level = hint.Level(level)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			rec.Timestamp = ts
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close implements Store. The pooled connection is shared, so closing the
// store does not close the pool.
func (s *SQLStore) Close() error {
	return nil
}

var _ Store = (*SQLStore)(nil)
var _ hint.Store = (*SQLStore)(nil)
