package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/classlens/classlens/internal/models"
)

// DescriptorDim is the face embedding dimensionality the schema is
// declared with. SFace produces 128-dim vectors.
const DescriptorDim = 128

// ErrUnknownStudent reports a descriptor lookup for a name that was
// never enrolled.
var ErrUnknownStudent = errors.New("storage: unknown student")

// PostgresConfig holds connection details for PostgreSQL.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c PostgresConfig) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// PostgresStore persists analysis sessions and the face registry.
// Every store instance owns one session row; frame results and the
// summary hang off it.
type PostgresStore struct {
	pool      *pgxpool.Pool
	sessionID uuid.UUID
}

// NewPostgresStore connects and opens a new session for the given
// video and mode ("class", "subject" or "face").
func NewPostgresStore(ctx context.Context, config PostgresConfig, videoName, mode, student string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, config.connString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, sessionID: uuid.New()}
	_, err = pool.Exec(ctx,
		`INSERT INTO sessions (id, video_name, mode, student, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		s.sessionID, videoName, mode, student, time.Now())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return s, nil
}

// SessionID returns the identifier of the session this store writes.
func (s *PostgresStore) SessionID() uuid.UUID { return s.sessionID }

// AddSubjectFrame stores one subject-run frame result.
func (s *PostgresStore) AddSubjectFrame(ctx context.Context, result models.FrameResult) error {
	return s.insertFrame(ctx, result.FrameIndex, result.Timestamp, result)
}

// AddClassFrame stores one class-run frame result.
func (s *PostgresStore) AddClassFrame(ctx context.Context, result models.ClassFrameResult) error {
	return s.insertFrame(ctx, result.FrameIndex, result.Timestamp, result)
}

func (s *PostgresStore) insertFrame(ctx context.Context, frameIndex int, timestamp float64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", frameIndex, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO frame_results (session_id, frame_index, timestamp_s, result, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.sessionID, frameIndex, timestamp, data, time.Now())
	if err != nil {
		return fmt.Errorf("storing frame %d: %w", frameIndex, err)
	}
	return nil
}

// SaveSummary stores the run summary for this session.
func (s *PostgresStore) SaveSummary(ctx context.Context, summary models.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO summaries (session_id, summary, attention_score, created_at)
		 VALUES ($1, $2, $3, $4)`,
		s.sessionID, data, summary.AttentionScore, time.Now())
	if err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}
	return nil
}

// Flush is a no-op; every write goes straight to the database.
func (s *PostgresStore) Flush() error { return nil }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// EnrollStudent registers a student with one or more face descriptors.
// Re-enrolling an existing name adds descriptors to the same student.
func (s *PostgresStore) EnrollStudent(ctx context.Context, name string, descriptors [][]float32) error {
	var studentID int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO students (name, created_at) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name, time.Now()).Scan(&studentID)
	if err != nil {
		return fmt.Errorf("enrolling student %q: %w", name, err)
	}

	for _, d := range descriptors {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO face_descriptors (student_id, embedding, created_at)
			 VALUES ($1, $2, $3)`,
			studentID, pgvector.NewVector(d), time.Now())
		if err != nil {
			return fmt.Errorf("storing descriptor for %q: %w", name, err)
		}
	}
	return nil
}

// StudentDescriptors loads every enrolled descriptor for a student.
func (s *PostgresStore) StudentDescriptors(ctx context.Context, name string) ([][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.embedding
		 FROM face_descriptors d
		 JOIN students st ON d.student_id = st.id
		 WHERE st.name = $1`,
		name)
	if err != nil {
		return nil, fmt.Errorf("loading descriptors for %q: %w", name, err)
	}
	defer rows.Close()

	var descriptors [][]float32
	for rows.Next() {
		var v pgvector.Vector
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning descriptor: %w", err)
		}
		descriptors = append(descriptors, v.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStudent, name)
	}
	return descriptors, nil
}

// NearestStudent finds the enrolled student whose descriptor is most
// similar to the given embedding, with cosine similarity in [0, 1].
func (s *PostgresStore) NearestStudent(ctx context.Context, embedding []float32) (string, float64, error) {
	var name string
	var similarity float64
	err := s.pool.QueryRow(ctx,
		`SELECT st.name, 1 - (d.embedding <=> $1) AS similarity
		 FROM face_descriptors d
		 JOIN students st ON d.student_id = st.id
		 ORDER BY d.embedding <=> $1
		 LIMIT 1`,
		pgvector.NewVector(embedding)).Scan(&name, &similarity)
	if err == pgx.ErrNoRows {
		return "", 0, fmt.Errorf("%w: registry is empty", ErrUnknownStudent)
	}
	if err != nil {
		return "", 0, fmt.Errorf("searching face registry: %w", err)
	}
	return name, similarity, nil
}

// InitSchema creates the database schema if it does not exist.
func InitSchema(ctx context.Context, config PostgresConfig) error {
	conn, err := pgx.Connect(ctx, config.connString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	if _, err := conn.Exec(ctx, schemaSQL()); err != nil {
		return fmt.Errorf("creating database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_frame_results_session ON frame_results(session_id);
		CREATE INDEX IF NOT EXISTS idx_descriptors_student ON face_descriptors(student_id);
		CREATE INDEX IF NOT EXISTS idx_descriptors_embedding ON face_descriptors USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	`)
	if err != nil {
		return fmt.Errorf("creating database indexes: %w", err)
	}
	return nil
}

// schemaSQL returns the table definitions, with the descriptor column
// sized to the recognizer's embedding dimensionality.
func schemaSQL() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			video_name VARCHAR(255) NOT NULL,
			mode VARCHAR(32) NOT NULL,
			student VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS frame_results (
			id SERIAL PRIMARY KEY,
			session_id UUID REFERENCES sessions(id) ON DELETE CASCADE,
			frame_index INTEGER NOT NULL,
			timestamp_s DOUBLE PRECISION NOT NULL,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(session_id, frame_index)
		);

		CREATE TABLE IF NOT EXISTS summaries (
			id SERIAL PRIMARY KEY,
			session_id UUID REFERENCES sessions(id) ON DELETE CASCADE,
			summary JSONB NOT NULL,
			attention_score DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS students (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(name)
		);

		CREATE TABLE IF NOT EXISTS face_descriptors (
			id SERIAL PRIMARY KEY,
			student_id INTEGER REFERENCES students(id) ON DELETE CASCADE,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		);
	`, DescriptorDim)
}
