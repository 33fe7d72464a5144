package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSweepStorage struct {
	recordCutoff time.Time
	accessCutoff time.Time
	eventCutoff  time.Time
	recordCount  int64
	accessCount  int64
	eventCount   int64
	recordErr    error
	recordCalls  int
	accessCalls  int
	eventCalls   int
}

func (s *stubSweepStorage) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.recordCalls++
	s.recordCutoff = cutoff
	return s.recordCount, s.recordErr
}

func (s *stubSweepStorage) DeleteAccessRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.accessCalls++
	s.accessCutoff = cutoff
	return s.accessCount, nil
}

func (s *stubSweepStorage) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.eventCalls++
	s.eventCutoff = cutoff
	return s.eventCount, nil
}

func TestSweepReportsPerClassCounts(t *testing.T) {
	store := &stubSweepStorage{recordCount: 5, accessCount: 12, eventCount: 3}
	sweeper := NewSweeper(store, RetentionConfig{
		AuditRecords:  365 * 24 * time.Hour,
		AccessRecords: 90 * 24 * time.Hour,
		SystemEvents:  180 * 24 * time.Hour,
	}, nil)
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.AuditRecords != 5 || result.AccessRecords != 12 || result.SystemEvents != 3 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if !store.recordCutoff.Equal(now.Add(-365 * 24 * time.Hour)) {
		t.Fatalf("wrong audit cutoff %v", store.recordCutoff)
	}
	if !store.accessCutoff.Equal(now.Add(-90 * 24 * time.Hour)) {
		t.Fatalf("wrong access cutoff %v", store.accessCutoff)
	}
}

func TestSweepSkipsDisabledClasses(t *testing.T) {
	store := &stubSweepStorage{}
	sweeper := NewSweeper(store, RetentionConfig{AuditRecords: 24 * time.Hour}, nil)

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if store.recordCalls != 1 || store.accessCalls != 0 || store.eventCalls != 0 {
		t.Fatalf("disabled classes must be skipped: %+v", store)
	}
}

func TestSweepContinuesPastClassError(t *testing.T) {
	store := &stubSweepStorage{recordErr: errors.New("lock timeout"), accessCount: 7}
	sweeper := NewSweeper(store, RetentionConfig{
		AuditRecords:  24 * time.Hour,
		AccessRecords: 24 * time.Hour,
	}, nil)

	result, err := sweeper.Sweep(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if store.accessCalls != 1 || result.AccessRecords != 7 {
		t.Fatalf("later classes must still run, got %+v", result)
	}
}

func TestSweepIdempotentWhenNothingExpired(t *testing.T) {
	store := &stubSweepStorage{}
	sweeper := NewSweeper(store, RetentionConfig{AuditRecords: 24 * time.Hour}, nil)

	for i := 0; i < 2; i++ {
		result, err := sweeper.Sweep(context.Background())
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if result.AuditRecords != 0 {
			t.Fatalf("expected zero removals, got %d", result.AuditRecords)
		}
	}
}
