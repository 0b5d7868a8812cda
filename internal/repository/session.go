package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/eventsnap/facefinder/internal/domain"
)

type SessionRepository struct {
	pool PgxPool
}

func NewSessionRepository(pool PgxPool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, identity, status, progress, current_step, error_message,
			target_indexes, detected_faces, results, threshold, created_at, timeout_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)
		RETURNING created_at
	`

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	faces, err := json.Marshal(session.DetectedFaces)
	if err != nil {
		return fmt.Errorf("marshal detected faces: %w", err)
	}
	results, err := marshalResults(session.ResultsByIndex)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, query,
		session.ID,
		session.Identity,
		session.Status,
		session.Progress,
		session.CurrentStep,
		session.ErrorMessage,
		session.TargetIndexes,
		faces,
		results,
		session.Threshold,
		session.TimeoutAt,
	).Scan(&session.CreatedAt)

	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session with its reference embeddings.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, identity, status, progress, current_step, error_message,
			target_indexes, detected_faces, results, threshold, created_at, timeout_at, completed_at
		FROM sessions
		WHERE id = $1
	`

	var (
		session domain.Session
		faces   []byte
		results []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Identity,
		&session.Status,
		&session.Progress,
		&session.CurrentStep,
		&session.ErrorMessage,
		&session.TargetIndexes,
		&faces,
		&results,
		&session.Threshold,
		&session.CreatedAt,
		&session.TimeoutAt,
		&session.CompletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	if len(faces) > 0 {
		if err := json.Unmarshal(faces, &session.DetectedFaces); err != nil {
			return nil, fmt.Errorf("unmarshal detected faces: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &session.ResultsByIndex); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}

	embeddings, err := r.embeddings(ctx, id)
	if err != nil {
		return nil, err
	}
	session.ReferenceEmbeddings = embeddings

	return &session, nil
}

func (r *SessionRepository) embeddings(ctx context.Context, sessionID uuid.UUID) ([]domain.Embedding, error) {
	query := `
		SELECT embedding
		FROM session_embeddings
		WHERE session_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.Embedding
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan session embedding: %w", err)
		}
		out = append(out, domain.Embedding(vec.Slice()))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session embeddings: %w", err)
	}
	return out, nil
}

// SetEmbeddings replaces the session's reference embeddings.
func (r *SessionRepository) SetEmbeddings(ctx context.Context, sessionID uuid.UUID, embeddings []domain.Embedding) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set embeddings: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM session_embeddings WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session embeddings: %w", err)
	}

	insert := `
		INSERT INTO session_embeddings (session_id, position, embedding)
		VALUES ($1, $2, $3)
	`
	for i, emb := range embeddings {
		if _, err := tx.Exec(ctx, insert, sessionID, i, pgvector.NewVector(emb)); err != nil {
			return fmt.Errorf("insert session embedding %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit set embeddings: %w", err)
	}
	return nil
}

// SetDetectedFaces stores the detection output and parks the session
// awaiting the user's selection, in one write. The faces must round-trip
// through the database; SelectFaces validates the client's ids against
// whatever a fresh read returns.
func (r *SessionRepository) SetDetectedFaces(ctx context.Context, id uuid.UUID, faces []domain.DetectedFace) error {
	query := `
		UPDATE sessions
		SET detected_faces = $2, status = $3, current_step = $4, error_message = ''
		WHERE id = $1 AND status NOT IN ($5, $6, $7)
	`

	data, err := json.Marshal(faces)
	if err != nil {
		return fmt.Errorf("marshal detected faces: %w", err)
	}

	result, err := r.pool.Exec(ctx, query, id, data,
		domain.StatusAwaitingSelection, "awaiting face selection",
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	if err != nil {
		return fmt.Errorf("set detected faces: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.refusedWrite(ctx, id)
	}
	return nil
}

// UpdateStatus moves the session to a new state. current_step and
// error_message are overwritten; progress is left untouched. Sessions
// already in a terminal state are never moved; the sweeper and the
// matching workers race, and the first terminal write wins.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus, step, errorMessage string) error {
	query := `
		UPDATE sessions
		SET status = $2, current_step = $3, error_message = $4
		WHERE id = $1 AND status NOT IN ($5, $6, $7)
	`

	result, err := r.pool.Exec(ctx, query, id, status, step, errorMessage,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.refusedWrite(ctx, id)
	}
	return nil
}

// UpdateProgress records matching progress for polling. Terminal
// sessions are left alone.
func (r *SessionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	query := `
		UPDATE sessions
		SET progress = $2, current_step = $3
		WHERE id = $1 AND status NOT IN ($4, $5, $6)
	`

	result, err := r.pool.Exec(ctx, query, id, progress, step,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.refusedWrite(ctx, id)
	}
	return nil
}

// SetResults stores the per-index match results and marks the session
// completed. Guarded like the other writes: a session the sweeper
// expired mid-job stays expired, the worker's results are dropped.
func (r *SessionRepository) SetResults(ctx context.Context, id uuid.UUID, resultsByIndex map[string][]domain.MatchResult) error {
	query := `
		UPDATE sessions
		SET status = $2, progress = 100, current_step = $3, results = $4, completed_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6, $7)
	`

	results, err := marshalResults(resultsByIndex)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, query, id, domain.StatusCompleted, "done", results,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	if err != nil {
		return fmt.Errorf("set session results: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.refusedWrite(ctx, id)
	}
	return nil
}

// refusedWrite tells a guarded update that matched no rows apart: the
// session is either gone or already terminal.
func (r *SessionRepository) refusedWrite(ctx context.Context, id uuid.UUID) error {
	var status domain.SessionStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect refused session write: %w", err)
	}
	return domain.ErrSessionTerminal.WithError(fmt.Errorf("status %s", status))
}

// FindActiveByIdentity returns the newest non-terminal session for an
// identity, or SessionNotFound when none is live.
func (r *SessionRepository) FindActiveByIdentity(ctx context.Context, identity string) (*domain.Session, error) {
	query := `
		SELECT id
		FROM sessions
		WHERE identity = $1 AND status NOT IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, identity,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active session by identity: %w", err)
	}

	return r.GetByID(ctx, id)
}

// ListByStatus returns the ids of sessions currently in any of the given
// states, oldest first. Used to re-enqueue interrupted work on startup.
func (r *SessionRepository) ListByStatus(ctx context.Context, statuses ...domain.SessionStatus) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM sessions
		WHERE status = ANY($1)
		ORDER BY created_at
	`

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// ExpireTimedOut marks every non-terminal session past its deadline as
// expired and returns how many were affected.
func (r *SessionRepository) ExpireTimedOut(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET status = $1, current_step = 'expired'
		WHERE timeout_at < $2 AND status NOT IN ($3, $4, $5)
	`

	result, err := r.pool.Exec(ctx, query, domain.StatusExpired, now,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired)
	if err != nil {
		return 0, fmt.Errorf("expire timed out sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// PurgeTerminalBefore deletes terminal sessions older than the cutoff.
// Embedding rows go with them via ON DELETE CASCADE.
func (r *SessionRepository) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE status IN ($1, $2, $3) AND created_at < $4
	`

	result, err := r.pool.Exec(ctx, query,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

func marshalResults(resultsByIndex map[string][]domain.MatchResult) ([]byte, error) {
	if resultsByIndex == nil {
		return nil, nil
	}
	data, err := json.Marshal(resultsByIndex)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return data, nil
}
