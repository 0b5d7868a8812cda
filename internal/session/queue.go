package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/matcher"
)

const queueCapacity = 256

// QueueRepository is the persistence slice the matching workers use.
type QueueRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus, step, errorMessage string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	SetResults(ctx context.Context, id uuid.UUID, resultsByIndex map[string][]domain.MatchResult) error
}

// Notifier pushes progress events to connected clients. Implementations
// must not block.
type Notifier interface {
	SessionProgress(sessionID uuid.UUID, status domain.SessionStatus, progress int, step string)
}

// Queue runs matching jobs with a fixed number of workers, so a burst of
// sessions degrades into waiting rather than an overload of the embedding
// backends. FIFO; positions are reported to polling clients.
type Queue struct {
	repo     QueueRepository
	store    IndexStore
	notifier Notifier
	logger   *slog.Logger
	workers  int

	jobs chan uuid.UUID

	mu      sync.Mutex
	waiting []uuid.UUID
}

// NewQueue creates a queue with the given worker count.
func NewQueue(repo QueueRepository, store IndexStore, notifier Notifier, logger *slog.Logger, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		repo:     repo,
		store:    store,
		notifier: notifier,
		logger:   logger,
		workers:  workers,
		jobs:     make(chan uuid.UUID, queueCapacity),
	}
}

// Enqueue adds a session to the matching queue.
func (q *Queue) Enqueue(sessionID uuid.UUID) error {
	q.mu.Lock()
	q.waiting = append(q.waiting, sessionID)
	q.mu.Unlock()

	select {
	case q.jobs <- sessionID:
		return nil
	default:
		q.forget(sessionID)
		return domain.ErrInternal.WithError(fmt.Errorf("matching queue full"))
	}
}

// Position returns the 1-based queue position, or 0 once the session is
// being processed or is unknown.
func (q *Queue) Position(sessionID uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.waiting {
		if id == sessionID {
			return i + 1
		}
	}
	return 0
}

func (q *Queue) forget(sessionID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.waiting {
		if id == sessionID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight jobs have finished.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("matching queue started", slog.Int("workers", q.workers))

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.jobs:
					q.forget(id)
					q.process(ctx, id)
				}
			}
		}()
	}

	wg.Wait()
	q.logger.Info("matching queue stopped")
}

func (q *Queue) process(ctx context.Context, sessionID uuid.UUID) {
	log := q.logger.With(slog.String("session", sessionID.String()))

	session, err := q.repo.GetByID(ctx, sessionID)
	if err != nil {
		log.Error("load queued session", slog.Any("error", err))
		return
	}
	// Resumed sessions arrive already in matching; anything else must
	// have a legal path there.
	if session.Status != domain.StatusMatching && !session.Status.CanTransition(domain.StatusMatching) {
		log.Info("dropping job for finished session", slog.String("status", string(session.Status)))
		return
	}
	if session.ExpiredAt(time.Now()) {
		q.expireJob(ctx, sessionID)
		return
	}

	q.setStatus(ctx, sessionID, domain.StatusMatching, "matching", "")
	q.notify(sessionID, domain.StatusMatching, 0, "matching")

	total := len(session.TargetIndexes)
	resultsByIndex := make(map[string][]domain.MatchResult, total)

	// Progress writes overlap the next index's matching; the group is
	// drained before results are published.
	var writes sync.WaitGroup
	defer writes.Wait()

	for i, model := range session.TargetIndexes {
		if ctx.Err() != nil {
			// Shutdown mid-job: leave the session in matching, Resume
			// re-enqueues it on the next start.
			log.Info("matching interrupted by shutdown", slog.String("model", model))
			return
		}
		if session.ExpiredAt(time.Now()) {
			log.Info("session deadline passed mid-job", slog.String("model", model))
			writes.Wait()
			q.expireJob(ctx, sessionID)
			return
		}

		idx, err := q.store.Load(model)
		if err != nil {
			q.failJob(ctx, sessionID, err, log)
			return
		}

		results, err := matcher.MatchAll(session.ReferenceEmbeddings, idx, session.Threshold)
		if err != nil {
			q.failJob(ctx, sessionID, err, log)
			return
		}
		resultsByIndex[model] = results

		progress := (i + 1) * 100 / total
		step := fmt.Sprintf("matched %d/%d indexes", i+1, total)
		writes.Add(1)
		go func() {
			defer writes.Done()
			if err := q.repo.UpdateProgress(ctx, sessionID, progress, step); err != nil {
				if !errors.Is(err, domain.ErrSessionTerminal) {
					log.Warn("update progress", slog.Any("error", err))
				}
				return
			}
			q.notify(sessionID, domain.StatusMatching, progress, step)
		}()

		log.Info("index matched",
			slog.String("model", model),
			slog.Int("matches", len(results)),
		)
	}

	writes.Wait()
	if err := q.repo.SetResults(ctx, sessionID, resultsByIndex); err != nil {
		if errors.Is(err, domain.ErrSessionTerminal) {
			// The sweeper got there first; the session stays expired or
			// failed and the results are dropped.
			log.Info("session finished elsewhere before results were stored")
			return
		}
		log.Error("store results", slog.Any("error", err))
		return
	}
	q.notify(sessionID, domain.StatusCompleted, 100, "done")
	log.Info("session completed", slog.Int("indexes", total))
}

func (q *Queue) expireJob(ctx context.Context, sessionID uuid.UUID) {
	q.setStatus(ctx, sessionID, domain.StatusExpired, "expired", "")
	q.notify(sessionID, domain.StatusExpired, 0, "expired")
}

func (q *Queue) failJob(ctx context.Context, sessionID uuid.UUID, cause error, log *slog.Logger) {
	log.Error("matching failed", slog.Any("error", cause))

	message := cause.Error()
	var appErr *domain.AppError
	if errors.As(cause, &appErr) {
		message = appErr.Message
	}
	q.setStatus(ctx, sessionID, domain.StatusFailed, "failed", message)
	q.notify(sessionID, domain.StatusFailed, 0, "failed")
}

func (q *Queue) setStatus(ctx context.Context, sessionID uuid.UUID, status domain.SessionStatus, step, message string) {
	if err := q.repo.UpdateStatus(ctx, sessionID, status, step, message); err != nil {
		// A refused write means another writer already ended the session.
		if errors.Is(err, domain.ErrSessionTerminal) {
			return
		}
		q.logger.Error("update session status",
			slog.String("session", sessionID.String()),
			slog.Any("error", err),
		)
	}
}

func (q *Queue) notify(sessionID uuid.UUID, status domain.SessionStatus, progress int, step string) {
	if q.notifier == nil {
		return
	}
	q.notifier.SessionProgress(sessionID, status, progress, step)
}
