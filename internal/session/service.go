// Package session orchestrates the end-to-end matching flow: reference
// upload and detection, face selection, queued matching against corpus
// indexes and result delivery.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/face"
	"github.com/eventsnap/facefinder/internal/index"
)

// Repository is the persistence the service needs.
type Repository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	SetDetectedFaces(ctx context.Context, id uuid.UUID, faces []domain.DetectedFace) error
	SetEmbeddings(ctx context.Context, sessionID uuid.UUID, embeddings []domain.Embedding) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus, step, errorMessage string) error
	FindActiveByIdentity(ctx context.Context, identity string) (*domain.Session, error)
	ListByStatus(ctx context.Context, statuses ...domain.SessionStatus) ([]uuid.UUID, error)
}

// Detector finds candidate faces in reference photos.
type Detector interface {
	Detect(ctx context.Context, img []byte, sourceName string, minConfidence float64) ([]domain.DetectedFace, error)
}

// Extractor embeds selected face crops.
type Extractor interface {
	ExtractCrop(ctx context.Context, crop []byte) (domain.Embedding, error)
}

// IndexStore resolves corpus indexes by model id.
type IndexStore interface {
	Load(modelID string) (*index.Index, error)
}

// Archiver streams the result zip for a completed session.
type Archiver interface {
	Write(w io.Writer, modelID string, results []domain.MatchResult) error
}

// Upload is one reference photo supplied at session creation.
type Upload struct {
	Name string
	Data []byte
}

// Config carries the session-flow tunables.
type Config struct {
	DefaultThreshold float64
	MaxResultPhotos  int
	SessionTimeout   time.Duration
}

// Service implements the session lifecycle. Face crops are held in
// memory between detection and selection; everything a poll needs is
// persisted, so only an unselected session loses state on restart.
type Service struct {
	repo      Repository
	detector  Detector
	extractor Extractor
	store     IndexStore
	archiver  Archiver
	queue     *Queue
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	crops map[uuid.UUID]sessionCrops
}

type sessionCrops struct {
	byFace    map[uuid.UUID][]byte
	timeoutAt time.Time
}

// NewService wires the session service. Resume re-enqueues sessions that
// were queued or mid-matching when the previous process stopped.
func NewService(
	repo Repository,
	detector Detector,
	extractor Extractor,
	store IndexStore,
	archiver Archiver,
	queue *Queue,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		detector:  detector,
		extractor: extractor,
		store:     store,
		archiver:  archiver,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
		crops:     make(map[uuid.UUID]sessionCrops),
	}
}

// Resume re-enqueues sessions interrupted by a restart so their clients
// can keep polling the same id.
func (s *Service) Resume(ctx context.Context) error {
	ids, err := s.repo.ListByStatus(ctx, domain.StatusQueued, domain.StatusMatching)
	if err != nil {
		return fmt.Errorf("list interrupted sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(id); err != nil {
			s.logger.Error("re-enqueue interrupted session failed",
				slog.String("session", id.String()),
				slog.Any("error", err),
			)
			continue
		}
		s.logger.Info("re-enqueued interrupted session", slog.String("session", id.String()))
	}
	return nil
}

// Create starts a new matching session: detects faces in the uploaded
// reference photos and parks the session awaiting the user's selection.
// A live session for the same identity is superseded; the newest request
// wins.
func (s *Service) Create(ctx context.Context, identity string, uploads []Upload, targetIndexes []string, threshold *float64) (*domain.Session, error) {
	if identity == "" || len(uploads) == 0 || len(targetIndexes) == 0 {
		return nil, domain.ErrBadRequest
	}

	th := s.cfg.DefaultThreshold
	if threshold != nil {
		th = *threshold
	}
	if th < -1 || th > 1 {
		return nil, domain.ErrInvalidThreshold
	}

	// Fail fast on unknown corpora instead of at matching time.
	for _, model := range targetIndexes {
		if _, err := s.store.Load(model); err != nil {
			return nil, err
		}
	}

	s.supersede(ctx, identity)

	session := &domain.Session{
		Identity:      identity,
		Status:        domain.StatusDetecting,
		CurrentStep:   "detecting faces",
		TargetIndexes: targetIndexes,
		Threshold:     th,
		TimeoutAt:     time.Now().Add(s.cfg.SessionTimeout),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	detected, crops, err := s.detectUploads(ctx, uploads)
	if err != nil {
		s.fail(ctx, session.ID, err)
		return nil, err
	}
	if len(detected) == 0 {
		s.fail(ctx, session.ID, domain.ErrNoFaceDetected)
		return nil, domain.ErrNoFaceDetected
	}

	s.mu.Lock()
	s.crops[session.ID] = sessionCrops{byFace: crops, timeoutAt: session.TimeoutAt}
	s.mu.Unlock()

	// Faces are persisted with the transition so a status poll or the
	// detections endpoint sees them after any database round trip.
	session.DetectedFaces = detected
	session.Status = domain.StatusAwaitingSelection
	session.CurrentStep = "awaiting face selection"
	if err := s.repo.SetDetectedFaces(ctx, session.ID, detected); err != nil {
		return nil, err
	}
	return session, nil
}

// detectUploads runs detection and quality assessment over every upload.
// Unreadable photos are tolerated; a dead detection chain is not.
func (s *Service) detectUploads(ctx context.Context, uploads []Upload) ([]domain.DetectedFace, map[uuid.UUID][]byte, error) {
	var detected []domain.DetectedFace
	crops := make(map[uuid.UUID][]byte)

	for _, up := range uploads {
		faces, err := s.detector.Detect(ctx, up.Data, up.Name, face.ReferenceConfidenceThreshold)
		if err != nil {
			if errors.Is(err, domain.ErrDetectionUnavailable) {
				return nil, nil, err
			}
			s.logger.Warn("reference photo skipped",
				slog.String("photo", up.Name),
				slog.Any("error", err),
			)
			continue
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(up.Data))
		if err != nil {
			// Detect already decoded it; treat a late failure as a skip.
			s.logger.Warn("reference photo skipped",
				slog.String("photo", up.Name),
				slog.Any("error", err),
			)
			continue
		}

		for _, f := range faces {
			f.Quality = face.Assess(f, cfg.Width, cfg.Height)
			crop, err := face.CropFace(up.Data, f.Box)
			if err != nil {
				s.logger.Warn("face crop failed",
					slog.String("photo", up.Name),
					slog.Any("error", err),
				)
				continue
			}
			crops[f.ID] = crop
			detected = append(detected, f)
		}
	}
	return detected, crops, nil
}

// SelectFaces embeds the chosen faces and queues the session for
// matching. Faces whose crop cannot be embedded are skipped; the session
// fails only when no selection produced a usable embedding.
func (s *Service) SelectFaces(ctx context.Context, sessionID uuid.UUID, faceIDs []uuid.UUID) (*domain.Session, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusAwaitingSelection {
		if session.Status.Terminal() {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrSessionNotCompleted.WithError(fmt.Errorf("status %s", session.Status))
	}
	if len(faceIDs) == 0 {
		return nil, domain.ErrInvalidSelection
	}

	known := make(map[uuid.UUID]bool, len(session.DetectedFaces))
	for _, f := range session.DetectedFaces {
		known[f.ID] = true
	}
	for _, id := range faceIDs {
		if !known[id] {
			return nil, domain.ErrInvalidSelection
		}
	}

	s.mu.Lock()
	cached := s.crops[sessionID]
	s.mu.Unlock()

	var embeddings []domain.Embedding
	for _, id := range faceIDs {
		crop, ok := cached.byFace[id]
		if !ok {
			s.logger.Warn("selected face crop no longer cached",
				slog.String("session", sessionID.String()),
				slog.String("face", id.String()),
			)
			continue
		}
		emb, err := s.extractor.ExtractCrop(ctx, crop)
		if err != nil {
			s.logger.Warn("selected face could not be embedded",
				slog.String("session", sessionID.String()),
				slog.String("face", id.String()),
				slog.Any("error", err),
			)
			continue
		}
		embeddings = append(embeddings, emb)
	}

	if len(embeddings) == 0 {
		s.fail(ctx, sessionID, domain.ErrExtractionFailed)
		return nil, domain.ErrExtractionFailed
	}

	if err := s.repo.SetEmbeddings(ctx, sessionID, embeddings); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, sessionID, domain.StatusQueued, "queued for matching", ""); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(sessionID); err != nil {
		s.fail(ctx, sessionID, err)
		return nil, err
	}

	// Crops are only needed for selection.
	s.dropCrops(sessionID)

	session.Status = domain.StatusQueued
	session.CurrentStep = "queued for matching"
	session.QueuePosition = s.queue.Position(sessionID)
	session.ReferenceEmbeddings = embeddings
	return session, nil
}

// Status is the polling read. Expiry is reported as soon as the deadline
// passes, without waiting for the sweeper; the poll itself writes
// nothing.
func (s *Service) Status(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.ExpiredAt(time.Now()) {
		session.Status = domain.StatusExpired
		session.CurrentStep = "expired"
	}
	if session.Status == domain.StatusQueued {
		session.QueuePosition = s.queue.Position(sessionID)
	}
	return session, nil
}

// Results streams the zip for one target index of a completed session.
func (s *Service) Results(ctx context.Context, sessionID uuid.UUID, modelID string, w io.Writer) error {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusExpired || session.ExpiredAt(time.Now()) {
		return domain.ErrSessionExpired
	}
	if session.Status != domain.StatusCompleted {
		return domain.ErrSessionNotCompleted
	}

	results, ok := session.ResultsByIndex[modelID]
	if !ok {
		return domain.ErrIndexNotFound.WithError(fmt.Errorf("model %s not part of session", modelID))
	}
	if s.cfg.MaxResultPhotos > 0 && len(results) > s.cfg.MaxResultPhotos {
		results = results[:s.cfg.MaxResultPhotos]
	}
	return s.archiver.Write(w, modelID, results)
}

// PruneCrops drops cached crops of sessions past their deadline. Called
// by the sweeper alongside database expiry.
func (s *Service) PruneCrops(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for id, c := range s.crops {
		if now.After(c.timeoutAt) {
			delete(s.crops, id)
			n++
		}
	}
	return n
}

func (s *Service) get(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// supersede fails any live session of the same identity. The newest
// request always wins; losing history here is deliberate.
func (s *Service) supersede(ctx context.Context, identity string) {
	active, err := s.repo.FindActiveByIdentity(ctx, identity)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Error("supersede lookup failed",
				slog.String("identity", identity),
				slog.Any("error", err),
			)
		}
		return
	}

	if err := s.repo.UpdateStatus(ctx, active.ID, domain.StatusFailed, "superseded", "superseded by a newer session"); err != nil {
		s.logger.Error("supersede failed",
			slog.String("session", active.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	s.dropCrops(active.ID)
	s.logger.Info("superseded live session",
		slog.String("identity", identity),
		slog.String("session", active.ID.String()),
	)
}

func (s *Service) fail(ctx context.Context, sessionID uuid.UUID, cause error) {
	s.dropCrops(sessionID)

	var appErr *domain.AppError
	message := cause.Error()
	if errors.As(cause, &appErr) {
		message = appErr.Message
	}
	err := s.repo.UpdateStatus(ctx, sessionID, domain.StatusFailed, "failed", message)
	if err != nil && !errors.Is(err, domain.ErrSessionTerminal) {
		s.logger.Error("mark session failed",
			slog.String("session", sessionID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Service) dropCrops(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.crops, sessionID)
	s.mu.Unlock()
}
