package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sjawhar/interview-room/internal/conversation"
)

const (
	StatusCreated = "created"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

const (
	FeedbackPending   = "pending"
	FeedbackRunning   = "running"
	FeedbackCompleted = "completed"
	FeedbackFailed    = "failed"
)

var ErrNotFound = errors.New("interview not found")

type Interview struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	Role           string     `json:"role"`
	Experience     string     `json:"experience"`
	Difficulty     string     `json:"difficulty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Feedback       string     `json:"feedback"`
	FeedbackStatus string     `json:"feedbackStatus"`
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "interview-room.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS interviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			experience TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT,
			feedback TEXT NOT NULL DEFAULT '',
			feedback_status TEXT NOT NULL DEFAULT 'pending'
		);
	`); err != nil {
		return fmt.Errorf("create interviews table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			interview_id INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			at TEXT NOT NULL,
			FOREIGN KEY(interview_id) REFERENCES interviews(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create turns table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback_requests (
			interview_id INTEGER NOT NULL,
			prompt_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(interview_id, prompt_hash)
		);
	`); err != nil {
		return fmt.Errorf("create feedback_requests table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_interviews_user_id ON interviews(user_id)"); err != nil {
		return fmt.Errorf("create interviews index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_turns_interview_id ON turns(interview_id, seq)"); err != nil {
		return fmt.Errorf("create turns index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateInterview(userID int64, role, experience, difficulty string) (Interview, error) {
	if userID <= 0 {
		return Interview{}, errors.New("user id is required")
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return Interview{}, errors.New("role is required")
	}

	createdAt := s.now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO interviews(user_id, role, experience, difficulty, status, created_at, feedback_status) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		userID,
		role,
		strings.TrimSpace(experience),
		strings.TrimSpace(difficulty),
		StatusCreated,
		createdAt.Format(time.RFC3339Nano),
		FeedbackPending,
	)
	if err != nil {
		return Interview{}, fmt.Errorf("create interview for user %d: %w", userID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Interview{}, fmt.Errorf("create interview last insert id: %w", err)
	}
	return s.GetInterview(id)
}

// MarkStarted moves a created interview to active. Starting an active interview
// again keeps the first start time.
func (s *SQLiteStore) MarkStarted(id int64) error {
	return s.transition(id, "start",
		`UPDATE interviews SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ? AND status != ?`,
		StatusActive, s.now().UTC().Format(time.RFC3339Nano), id, StatusEnded)
}

// MarkEnded is idempotent: ending an ended interview keeps the first end time.
func (s *SQLiteStore) MarkEnded(id int64) error {
	return s.transition(id, "end",
		`UPDATE interviews SET status = ?, ended_at = COALESCE(ended_at, ?) WHERE id = ?`,
		StatusEnded, s.now().UTC().Format(time.RFC3339Nano), id)
}

func (s *SQLiteStore) transition(id int64, op, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s interview %d: %w", op, id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s interview rows affected: %w", op, err)
	}
	if rows == 0 {
		if _, err := s.GetInterview(id); err != nil {
			return err
		}
		return fmt.Errorf("%s interview %d: already ended", op, id)
	}
	return nil
}

func (s *SQLiteStore) GetInterview(id int64) (Interview, error) {
	row := s.db.QueryRow(`SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)

	iv, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interview{}, fmt.Errorf("interview %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Interview{}, fmt.Errorf("query interview %d: %w", id, err)
	}
	return iv, nil
}

func (s *SQLiteStore) ListInterviews(userID int64) ([]Interview, error) {
	rows, err := s.db.Query(
		`SELECT `+interviewColumns+` FROM interviews WHERE user_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query interviews for user %d: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	interviews := make([]Interview, 0, 16)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}
	return interviews, nil
}

// AppendTurn stores one turn. A turn without an id gets a fresh one.
func (s *SQLiteStore) AppendTurn(interviewID int64, turn conversation.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.At.IsZero() {
		turn.At = s.now()
	}

	_, err := s.db.Exec(
		`INSERT INTO turns(id, interview_id, speaker, text, at) VALUES(?, ?, ?, ?, ?)`,
		turn.ID,
		interviewID,
		string(turn.Speaker),
		strings.TrimSpace(turn.Text),
		turn.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append turn for interview %d: %w", interviewID, err)
	}
	return nil
}

func (s *SQLiteStore) Turns(interviewID int64) ([]conversation.Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, speaker, text, at FROM turns WHERE interview_id = ? ORDER BY seq ASC`,
		interviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns for interview %d: %w", interviewID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]conversation.Turn, 0, 32)
	for rows.Next() {
		var turn conversation.Turn
		var speaker, at string
		if err := rows.Scan(&turn.ID, &speaker, &turn.Text, &at); err != nil {
			return nil, fmt.Errorf("scan turn for interview %d: %w", interviewID, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp for interview %d: %w", interviewID, err)
		}
		turn.Speaker = conversation.Speaker(speaker)
		turn.At = parsed
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows for interview %d: %w", interviewID, err)
	}
	return turns, nil
}

func (s *SQLiteStore) UpdateFeedback(interviewID int64, feedback, status string) error {
	res, err := s.db.Exec(
		`UPDATE interviews SET feedback = ?, feedback_status = ? WHERE id = ?`,
		feedback,
		status,
		interviewID,
	)
	if err != nil {
		return fmt.Errorf("update feedback for interview %d: %w", interviewID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update feedback rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("interview %d: %w", interviewID, ErrNotFound)
	}
	return nil
}

// ClaimFeedbackRequest reports whether this caller is the first to request
// feedback for the interview with the given prompt.
func (s *SQLiteStore) ClaimFeedbackRequest(interviewID int64, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO feedback_requests(interview_id, prompt_hash) VALUES(?, ?)`,
		interviewID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim feedback request for interview %d: %w", interviewID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim feedback rows affected: %w", err)
	}
	return rows > 0, nil
}

const interviewColumns = `id, user_id, role, experience, difficulty, status, created_at, started_at, ended_at, feedback, feedback_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (Interview, error) {
	var iv Interview
	var createdAt string
	var startedAt, endedAt sql.NullString
	if err := row.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Experience, &iv.Difficulty, &iv.Status,
		&createdAt, &startedAt, &endedAt, &iv.Feedback, &iv.FeedbackStatus); err != nil {
		return Interview{}, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Interview{}, fmt.Errorf("parse created_at: %w", err)
	}
	iv.CreatedAt = parsed

	if iv.StartedAt, err = parseNullTime(startedAt); err != nil {
		return Interview{}, fmt.Errorf("parse started_at: %w", err)
	}
	if iv.EndedAt, err = parseNullTime(endedAt); err != nil {
		return Interview{}, fmt.Errorf("parse ended_at: %w", err)
	}
	return iv, nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
