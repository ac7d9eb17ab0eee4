package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/state"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(id, company string, completed time.Time) *domain.ResearchReport {
	return &domain.ResearchReport{
		ID:          id,
		RequestID:   "req-" + id,
		Target:      domain.Entity{Name: company},
		Synthesis:   domain.Narrative{Text: company + " overview"},
		Plans:       []domain.Plan{{ID: "p-" + id, Variant: domain.PlanGeneric, Content: "plan"}},
		Iterations:  6,
		CompletedAt: completed,
		Steps: []domain.StepRecord{
			{Name: domain.StepNews, Status: domain.StepSucceeded},
			{Name: domain.StepFinancial, Status: domain.StepFailed, Reason: "quota"},
		},
	}
}

// runStoreContract exercises the behavior every ReportStore must share
func runStoreContract(t *testing.T, store domain.ReportStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	older := sampleReport("r-1", "Acme", base)
	newer := sampleReport("r-2", "Globex", base.Add(time.Hour))

	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	loaded, err := store.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", loaded.Target.Name)
	assert.Equal(t, "Acme overview", loaded.Synthesis.Text)
	assert.Equal(t, domain.StepFailed, loaded.Steps[1].Status)
	assert.True(t, loaded.CompletedAt.Equal(base))

	list, err := store.List(ctx, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-2", list[0].ID, "newest report first")
	assert.Equal(t, 1, list[0].PlanCount)

	limited, err := store.List(ctx, domain.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "r-1", limited[0].ID)

	// Saving again replaces the stored copy
	older.Iterations = 8
	require.NoError(t, store.Save(ctx, older))
	loaded, err = store.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Iterations)

	require.NoError(t, store.Delete(ctx, "r-1"))
	_, err = store.Load(ctx, "r-1")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)

	assert.Error(t, store.Save(ctx, &domain.ResearchReport{}), "report without ID")
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, state.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	report := sampleReport("r-1", "Acme", time.Now())
	require.NoError(t, store.Save(ctx, report))

	report.Target.Name = "mutated"
	loaded, err := store.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", loaded.Target.Name)
}

func TestFileStore(t *testing.T) {
	store, err := state.NewFileStore(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store, err := state.NewFileStore(t.TempDir())
	require.NoError(t, err)
	err = store.Save(context.Background(), sampleReport("../escape", "Acme", time.Now()))
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := state.NewRedisStoreFromClient(client, state.WithPrefix("test:report:"))
	defer store.Close()

	runStoreContract(t, store)
}

func TestRedisStore_PrunesExpiredIndexEntries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := state.NewRedisStoreFromClient(client, state.WithTTL(time.Minute))

	require.NoError(t, store.Save(ctx, sampleReport("r-1", "Acme", time.Now())))
	mr.FastForward(2 * time.Minute)

	list, err := store.List(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := client.ZCard(ctx, "cra:report:index").Result()
	require.NoError(t, err)
	assert.Zero(t, members)
}

func TestNewReportStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{"memory", config.StorageConfig{Type: "memory"}, false},
		{"file", config.StorageConfig{Type: "file", Path: filepath.Join(dir, "files")}, false},
		{"database", config.StorageConfig{Type: "database", ConnectionString: filepath.Join(dir, "r.db")}, false},
		{"bad ttl", config.StorageConfig{Type: "redis", TTL: "soon"}, true},
		{"unknown", config.StorageConfig{Type: "s3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closer, err := state.NewReportStore(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
			assert.NoError(t, closer.Close())
		})
	}
}
