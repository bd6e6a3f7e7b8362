package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cadence/internal/model"
)

func TestBackupLifecycle(t *testing.T) {
	db := openTestDB(t)
	s := NewBackupStore(db)
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	b, err := s.Create("cadence/2026-03-10T030000Z.db.enc", true, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != model.BackupStatusPending || !b.Encrypted || b.CompletedAt != nil {
		t.Errorf("created = %+v", b)
	}

	if err := s.MarkCompleted(b.ID, 4096, now.Add(time.Second)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := s.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.BackupStatusCompleted || got.SizeBytes != 4096 || got.CompletedAt == nil {
		t.Errorf("completed = %+v", got)
	}

	failed, _ := s.Create("cadence/2026-03-11T030000Z.db", false, now.AddDate(0, 0, 1))
	if err := s.MarkFailed(failed.ID, "bucket unreachable"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ = s.GetByID(failed.ID)
	if got.Status != model.BackupStatusFailed || got.ErrorMessage != "bucket unreachable" {
		t.Errorf("failed = %+v", got)
	}

	missing, err := s.GetByID(999)
	if err != nil || missing != nil {
		t.Errorf("missing = %+v, %v", missing, err)
	}
}

func TestBackupListAndPrune(t *testing.T) {
	db := openTestDB(t)
	s := NewBackupStore(db)
	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if _, err := s.Create("key-"+string(rune('a'+i)), false, base.AddDate(0, 0, i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	list, err := s.List(3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ObjectKey != "key-d" {
		t.Errorf("list = %+v", list)
	}

	keys, err := s.DeleteOlderThan(base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(keys) != 2 || keys[0] != "key-a" || keys[1] != "key-b" {
		t.Errorf("pruned keys = %v", keys)
	}
	list, _ = s.List(10)
	if len(list) != 2 {
		t.Errorf("remaining = %d, want 2", len(list))
	}
}
