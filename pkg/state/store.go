package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

// MemoryStore is an in-memory implementation of ReportStore
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
}

// NewMemoryStore creates a new in-memory report store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string][]byte),
	}
}

// Save stores a copy of the report
func (m *MemoryStore) Save(ctx context.Context, report *domain.ResearchReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	// Keep an encoded copy so callers cannot mutate stored reports
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = data
	return nil
}

// Load returns a copy of the stored report
func (m *MemoryStore) Load(ctx context.Context, id string) (*domain.ResearchReport, error) {
	m.mu.RLock()
	data, exists := m.reports[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, id)
	}
	return decodeReport(data)
}

// List returns summaries of stored reports, newest first
func (m *MemoryStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.ReportSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]domain.ReportSummary, 0, len(m.reports))
	for _, data := range m.reports {
		report, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, report.Summarize())
	}
	return page(summaries, opts), nil
}

// Delete removes a report
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reports, id)
	return nil
}

// FileStore keeps one JSON document per report in a directory
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based report store, creating the directory
// when needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.baseDir, id+".json")
}

// Save writes the report atomically
func (f *FileStore) Save(ctx context.Context, report *domain.ResearchReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if strings.ContainsAny(report.ID, `/\`) {
		return fmt.Errorf("invalid report ID: %s", report.ID)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.baseDir, report.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(report.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

// Load reads a report from disk
func (f *FileStore) Load(ctx context.Context, id string) (*domain.ResearchReport, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return decodeReport(data)
}

// List reads every report in the directory
func (f *FileStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.ReportSummary, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	var summaries []domain.ReportSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.baseDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		report, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, report.Summarize())
	}
	return page(summaries, opts), nil
}

// Delete removes the report file
func (f *FileStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

func decodeReport(data []byte) (*domain.ResearchReport, error) {
	var report domain.ResearchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// page sorts summaries newest first and applies the listing window
func page(summaries []domain.ReportSummary, opts domain.ListOptions) []domain.ReportSummary {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CompletedAt.After(summaries[j].CompletedAt)
	})
	start, end := opts.Window(len(summaries))
	return summaries[start:end]
}
