package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/index"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockRepository) SetDetectedFaces(ctx context.Context, id uuid.UUID, faces []domain.DetectedFace) error {
	args := m.Called(ctx, id, faces)
	return args.Error(0)
}

func (m *MockRepository) SetEmbeddings(ctx context.Context, sessionID uuid.UUID, embeddings []domain.Embedding) error {
	args := m.Called(ctx, sessionID, embeddings)
	return args.Error(0)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus, step, errorMessage string) error {
	args := m.Called(ctx, id, status, step, errorMessage)
	return args.Error(0)
}

func (m *MockRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	args := m.Called(ctx, id, progress, step)
	return args.Error(0)
}

func (m *MockRepository) SetResults(ctx context.Context, id uuid.UUID, resultsByIndex map[string][]domain.MatchResult) error {
	args := m.Called(ctx, id, resultsByIndex)
	return args.Error(0)
}

func (m *MockRepository) FindActiveByIdentity(ctx context.Context, identity string) (*domain.Session, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockRepository) ListByStatus(ctx context.Context, statuses ...domain.SessionStatus) ([]uuid.UUID, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, img []byte, sourceName string, minConfidence float64) ([]domain.DetectedFace, error) {
	args := m.Called(ctx, img, sourceName, minConfidence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectedFace), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) ExtractCrop(ctx context.Context, crop []byte) (domain.Embedding, error) {
	args := m.Called(ctx, crop)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Embedding), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(modelID string) (*index.Index, error) {
	args := m.Called(modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*index.Index), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Write(w io.Writer, modelID string, results []domain.MatchResult) error {
	args := m.Called(w, modelID, results)
	return args.Error(0)
}

// recordingNotifier collects progress events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

type notifyEvent struct {
	sessionID uuid.UUID
	status    domain.SessionStatus
	progress  int
	step      string
}

func (n *recordingNotifier) SessionProgress(sessionID uuid.UUID, status domain.SessionStatus, progress int, step string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifyEvent{sessionID, status, progress, step})
}

func (n *recordingNotifier) all() []notifyEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyEvent(nil), n.events...)
}

func testPhoto(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 110, G: 110, B: 110, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func detectedFace(conf float64) domain.DetectedFace {
	return domain.DetectedFace{
		ID:         uuid.New(),
		Box:        domain.BoundingBox{X: 40, Y: 40, Width: 80, Height: 80},
		Confidence: conf,
	}
}

func unitEmbedding(axis int) domain.Embedding {
	vec := make(domain.Embedding, domain.EmbeddingDim)
	vec[axis] = 1
	return vec
}

func testServiceConfig() Config {
	return Config{
		DefaultThreshold: 0.55,
		MaxResultPhotos:  200,
		SessionTimeout:   3 * time.Hour,
	}
}

// sqlShapedRepo persists sessions the way the SQL layer does: every
// write touches only its own columns, and reads rebuild a session from
// what was actually stored. State that only lives on the caller's
// pointer does not survive a round trip through it.
type sqlShapedRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.Session
	vecs map[uuid.UUID][]domain.Embedding
}

func newSQLShapedRepo() *sqlShapedRepo {
	return &sqlShapedRepo{
		rows: make(map[uuid.UUID]domain.Session),
		vecs: make(map[uuid.UUID][]domain.Embedding),
	}
}

func (r *sqlShapedRepo) Create(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	r.rows[session.ID] = snapshotRow(*session)
	return nil
}

func (r *sqlShapedRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := snapshotRow(row)
	out.ReferenceEmbeddings = append([]domain.Embedding(nil), r.vecs[id]...)
	return &out, nil
}

func (r *sqlShapedRepo) SetDetectedFaces(_ context.Context, id uuid.UUID, faces []domain.DetectedFace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if row.Status.Terminal() {
		return domain.ErrSessionTerminal
	}
	row.DetectedFaces = append([]domain.DetectedFace(nil), faces...)
	row.Status = domain.StatusAwaitingSelection
	row.CurrentStep = "awaiting face selection"
	row.ErrorMessage = ""
	r.rows[id] = row
	return nil
}

func (r *sqlShapedRepo) SetEmbeddings(_ context.Context, sessionID uuid.UUID, embeddings []domain.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vecs[sessionID] = append([]domain.Embedding(nil), embeddings...)
	return nil
}

func (r *sqlShapedRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SessionStatus, step, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if row.Status.Terminal() {
		return domain.ErrSessionTerminal
	}
	row.Status = status
	row.CurrentStep = step
	row.ErrorMessage = errorMessage
	r.rows[id] = row
	return nil
}

func (r *sqlShapedRepo) UpdateProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if row.Status.Terminal() {
		return domain.ErrSessionTerminal
	}
	row.Progress = progress
	row.CurrentStep = step
	r.rows[id] = row
	return nil
}

func (r *sqlShapedRepo) SetResults(_ context.Context, id uuid.UUID, resultsByIndex map[string][]domain.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if row.Status.Terminal() {
		return domain.ErrSessionTerminal
	}
	row.Status = domain.StatusCompleted
	row.Progress = 100
	row.CurrentStep = "done"
	row.ResultsByIndex = resultsByIndex
	r.rows[id] = row
	return nil
}

func (r *sqlShapedRepo) FindActiveByIdentity(_ context.Context, identity string) (*domain.Session, error) {
	r.mu.Lock()
	var newest *domain.Session
	for id := range r.rows {
		row := r.rows[id]
		if row.Identity != identity || row.Status.Terminal() {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			copied := row
			newest = &copied
		}
	}
	r.mu.Unlock()
	if newest == nil {
		return nil, domain.ErrSessionNotFound
	}
	return r.GetByID(context.Background(), newest.ID)
}

func (r *sqlShapedRepo) ListByStatus(_ context.Context, statuses ...domain.SessionStatus) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, row := range r.rows {
		for _, s := range statuses {
			if row.Status == s {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func snapshotRow(s domain.Session) domain.Session {
	s.TargetIndexes = append([]string(nil), s.TargetIndexes...)
	s.DetectedFaces = append([]domain.DetectedFace(nil), s.DetectedFaces...)
	s.ReferenceEmbeddings = nil
	return s
}
