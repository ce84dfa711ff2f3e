//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/config"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/matcher"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, applied, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}
	if len(applied) == 0 {
		t.Error("expected migrations to be applied on a fresh database")
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestVerdictRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewVerdictRepository(pool)

	matched := audit.NewRecord(identity.Verdict{
		Name:       "John Doe",
		Matched:    true,
		Confidence: 0.91,
		Note:       "n",
		Candidate:  &matcher.Candidate{Entry: gallery.NewEntry("John_Doe_2.jpg", ""), Distance: 0.09},
	}, "fp1", []byte("probe-1"), []float32{0.1, 0.2, 0.3})
	matched.CreatedAt = time.Now().Add(-time.Minute).UTC()

	unknown := audit.NewRecord(identity.Verdict{Name: identity.Unknown, Note: "no candidates / empty gallery"}, "fp2", []byte("probe-2"), nil)

	t.Run("RecordAndRecent", func(t *testing.T) {
		if err := repo.Record(ctx, matched); err != nil {
			t.Fatalf("Failed to record verdict: %v", err)
		}
		if err := repo.Record(ctx, unknown); err != nil {
			t.Fatalf("Failed to record verdict: %v", err)
		}

		records, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to list verdicts: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].ID != unknown.ID {
			t.Error("Expected newest record first")
		}
		if records[1].CandidateKey != "John_Doe_2.jpg" || records[1].Distance == nil {
			t.Errorf("Unexpected matched record: %+v", records[1])
		}
		if records[0].Distance != nil || records[0].CandidateKey != "" {
			t.Errorf("Unexpected unknown record: %+v", records[0])
		}
	})

	t.Run("Limit", func(t *testing.T) {
		records, err := repo.Recent(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record, got %d", len(records))
		}
	})

	t.Run("Embedding", func(t *testing.T) {
		vec, err := repo.Embedding(ctx, matched.ID.String())
		if err != nil {
			t.Fatalf("Failed to load embedding: %v", err)
		}
		if len(vec) != 3 {
			t.Errorf("Expected 3-dim embedding, got %d", len(vec))
		}

		vec, err = repo.Embedding(ctx, unknown.ID.String())
		if err != nil {
			t.Fatal(err)
		}
		if vec != nil {
			t.Errorf("Expected no embedding, got %v", vec)
		}
	})

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		applied, err := pool.Migrate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(applied) != 0 {
			t.Errorf("Expected no pending migrations, got %v", applied)
		}
	})
}
