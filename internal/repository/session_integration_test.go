//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventsnap/facefinder/internal/database"
	"github.com/eventsnap/facefinder/internal/domain"
)

func setupIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facefinder_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/facefinder_test?sslmode=disable", host, port.Port())
	require.NoError(t, database.MigrateUp(dsn, "facefinder_test"))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestSessionRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool := setupIntegrationTest(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)

	session := &domain.Session{
		Identity:      "12345678901",
		Status:        domain.StatusDetecting,
		CurrentStep:   "detecting faces",
		TargetIndexes: []string{"wedding-2026", "afterparty"},
		Threshold:     0.55,
		TimeoutAt:     time.Now().Add(3 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, session))

	t.Run("embeddings round trip through pgvector", func(t *testing.T) {
		ref := make(domain.Embedding, domain.EmbeddingDim)
		ref[0] = 0.6
		ref[1] = 0.8
		require.NoError(t, repo.SetEmbeddings(ctx, session.ID, []domain.Embedding{ref}))

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, got.ReferenceEmbeddings, 1)
		assert.InDelta(t, 0.6, float64(got.ReferenceEmbeddings[0][0]), 1e-6)
		assert.InDelta(t, 0.8, float64(got.ReferenceEmbeddings[0][1]), 1e-6)
	})

	t.Run("detected faces survive the round trip", func(t *testing.T) {
		faces := []domain.DetectedFace{{
			ID:          uuid.New(),
			SourceImage: "me.png",
			Box:         domain.BoundingBox{X: 40, Y: 40, Width: 80, Height: 80},
			Confidence:  0.97,
			Quality:     domain.QualityGood,
		}}
		require.NoError(t, repo.SetDetectedFaces(ctx, session.ID, faces))

		got, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingSelection, got.Status)
		require.Len(t, got.DetectedFaces, 1)
		assert.Equal(t, faces[0].ID, got.DetectedFaces[0].ID)
		assert.Equal(t, domain.QualityGood, got.DetectedFaces[0].Quality)
	})

	t.Run("active lookup and supersede flow", func(t *testing.T) {
		active, err := repo.FindActiveByIdentity(ctx, "12345678901")
		require.NoError(t, err)
		assert.Equal(t, session.ID, active.ID)

		require.NoError(t, repo.UpdateStatus(ctx, session.ID, domain.StatusFailed, "failed", "superseded"))
		_, err = repo.FindActiveByIdentity(ctx, "12345678901")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("expire and purge", func(t *testing.T) {
		stale := &domain.Session{
			Identity:  "98765432109",
			Status:    domain.StatusQueued,
			Threshold: 0.55,
			TimeoutAt: time.Now().Add(-time.Minute),
		}
		require.NoError(t, repo.Create(ctx, stale))

		n, err := repo.ExpireTimedOut(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, got.Status)

		purged, err := repo.PurgeTerminalBefore(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, purged, int64(1))

		_, err = repo.GetByID(ctx, stale.ID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}
