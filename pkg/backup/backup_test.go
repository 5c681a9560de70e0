package backup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"amanhealth/pkg/domain"
	"amanhealth/pkg/drive"
	"amanhealth/pkg/store"
)

type fakeDrive struct {
	files map[string][]byte
	names map[string]string
	seq   int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: map[string][]byte{}, names: map[string]string{}}
}

func (f *fakeDrive) FindFileByName(ctx context.Context, name, folderID string) (string, error) {
	id, ok := f.names[name]
	if !ok {
		return "", drive.ErrFileNotFound
	}
	return id, nil
}

func (f *fakeDrive) Upload(ctx context.Context, name, folderID, contentType string, data []byte) (string, error) {
	f.seq++
	id := "file-" + name
	f.names[name] = id
	f.files[id] = append([]byte(nil), data...)
	return id, nil
}

func (f *fakeDrive) Update(ctx context.Context, fileID, contentType string, data []byte) error {
	if _, ok := f.files[fileID]; !ok {
		return drive.ErrFileNotFound
	}
	f.files[fileID] = append([]byte(nil), data...)
	return nil
}

func (f *fakeDrive) Download(ctx context.Context, fileID string) ([]byte, error) {
	data, ok := f.files[fileID]
	if !ok {
		return nil, drive.ErrFileNotFound
	}
	return data, nil
}

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.MedicalRecord{
		{ID: "r1", Kind: domain.KindVisit, Title: "مراجعة قلب", Date: "2026-02-20", Currency: "JOD",
			Attachments: []domain.Attachment{}, Payments: []domain.Payment{}, Source: domain.SourceManual,
			CreatedAt: now, UpdatedAt: now},
		{ID: "r2", Kind: domain.KindLab, Title: "تحليل دم", Date: "2026-02-25", Currency: "JOD",
			Attachments: []domain.Attachment{}, Payments: []domain.Payment{{ID: "p1", Payer: "خليل", Amount: 20, Currency: "JOD", Date: "2026-02-25"}},
			Source:      domain.SourceManual, CreatedAt: now, UpdatedAt: now},
	}
	meds := []domain.Medication{
		{ID: "m1", NameAr: "كونكور", Dosage: "5mg", Time: "صباحاً", Status: domain.MedicationActive,
			Attachments: []domain.Attachment{}, Payments: []domain.Payment{}, Source: domain.SourceManual,
			CreatedAt: now, UpdatedAt: now},
	}
	for _, r := range records {
		if err := st.SaveRecord(r); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
	for _, m := range meds {
		if err := st.SaveMedication(m); err != nil {
			t.Fatalf("seed medication: %v", err)
		}
	}
	if err := st.PutProfile(domain.UserProfile{Name: "الوالدة", DietaryRestrictions: []string{"ملح"}}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return st
}

func TestBackupCreatesThenUpdatesFile(t *testing.T) {
	st := seedStore(t)
	fd := newFakeDrive()
	m := New(st, fd, nil, "folder-1", "")
	m.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	info, err := m.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if info.FileName != "gem_backup.json" {
		t.Fatalf("fileName = %q", info.FileName)
	}
	if info.BackupDate != "2026-03-02T08:00:00Z" {
		t.Fatalf("backupDate = %q", info.BackupDate)
	}
	if len(fd.files) != 1 {
		t.Fatalf("got %d files, want 1", len(fd.files))
	}

	again, err := m.Backup(ctx)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if again.FileID != info.FileID {
		t.Fatalf("second backup created a new file: %q vs %q", again.FileID, info.FileID)
	}
	if len(fd.files) != 1 {
		t.Fatalf("got %d files after second backup, want 1", len(fd.files))
	}
}

func TestBackupRestoreRoundTripIsLossless(t *testing.T) {
	st := seedStore(t)
	fd := newFakeDrive()
	m := New(st, fd, nil, "", "")
	m.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	info, err := m.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	first := append([]byte(nil), fd.files[info.FileID]...)

	snapshot, err := m.Restore(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(snapshot.Records) != 2 || len(snapshot.Meds) != 1 {
		t.Fatalf("snapshot sizes: %d records, %d meds", len(snapshot.Records), len(snapshot.Meds))
	}
	if snapshot.Profile == nil || snapshot.Profile.Name != "الوالدة" {
		t.Fatalf("profile = %+v", snapshot.Profile)
	}

	if _, err := m.Backup(ctx); err != nil {
		t.Fatalf("backup after restore: %v", err)
	}
	second := fd.files[info.FileID]
	if string(first) != string(second) {
		t.Fatal("backup after restore differs from original backup")
	}
}

func TestRestoreWithoutBackupFile(t *testing.T) {
	st := store.NewMemoryStore()
	m := New(st, newFakeDrive(), nil, "", "")

	if _, err := m.Restore(context.Background()); !errors.Is(err, ErrNoBackup) {
		t.Fatalf("err = %v, want ErrNoBackup", err)
	}
}

func TestRestoreRejectsCorruptBackupWithoutTouchingStore(t *testing.T) {
	st := seedStore(t)
	fd := newFakeDrive()
	if _, err := fd.Upload(context.Background(), "gem_backup.json", "", "application/json", []byte("{broken")); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	m := New(st, fd, nil, "", "")

	if _, err := m.Restore(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	records, err := st.ListRecords()
	if err != nil || len(records) != 2 {
		t.Fatalf("local data changed after failed restore: %v, %d records", err, len(records))
	}
}

func TestSnapshotFieldNamesAreStable(t *testing.T) {
	st := seedStore(t)
	fd := newFakeDrive()
	m := New(st, fd, nil, "", "")
	info, err := m.Backup(context.Background())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(fd.files[info.FileID], &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"records", "meds", "profile", "backupDate"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("backup file missing %q key", key)
		}
	}
}
