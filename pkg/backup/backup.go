// Package backup snapshots the whole data set to a single JSON file on
// Google Drive and restores from it.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"amanhealth/internal/notify"
	"amanhealth/pkg/domain"
	"amanhealth/pkg/drive"
	"amanhealth/pkg/store"
)

// ErrNoBackup is returned by Restore when no backup file exists yet.
var ErrNoBackup = errors.New("backup: no backup file found")

// DriveClient is the slice of the Drive API the manager needs.
type DriveClient interface {
	FindFileByName(ctx context.Context, name, folderID string) (string, error)
	Upload(ctx context.Context, name, folderID, contentType string, data []byte) (string, error)
	Update(ctx context.Context, fileID, contentType string, data []byte) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Snapshot is the backup file payload. Field names are part of the on-Drive
// format and must stay stable across versions.
type Snapshot struct {
	Records    []domain.MedicalRecord `json:"records"`
	Meds       []domain.Medication    `json:"meds"`
	Profile    *domain.UserProfile    `json:"profile"`
	BackupDate string                 `json:"backupDate"`
}

// Info describes a completed backup.
type Info struct {
	FileID     string `json:"fileId"`
	FileName   string `json:"fileName"`
	Size       int    `json:"size"`
	BackupDate string `json:"backupDate"`
}

// Manager runs the backup and restore flows.
type Manager struct {
	store    store.Store
	drive    DriveClient
	notifier *notify.Publisher
	folderID string
	fileName string
	now      func() time.Time
}

// New builds a manager. fileName defaults to gem_backup.json.
func New(st store.Store, dc DriveClient, notifier *notify.Publisher, folderID, fileName string) *Manager {
	if fileName == "" {
		fileName = "gem_backup.json"
	}
	return &Manager{
		store:    st,
		drive:    dc,
		notifier: notifier,
		folderID: folderID,
		fileName: fileName,
		now:      time.Now,
	}
}

// Backup serializes the data set and writes it to Drive, updating the
// existing backup file in place when one exists.
func (m *Manager) Backup(ctx context.Context) (Info, error) {
	snapshot, err := m.snapshot()
	if err != nil {
		return Info{}, err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	fileID, err := m.drive.FindFileByName(ctx, m.fileName, m.folderID)
	switch {
	case err == nil:
		if err := m.drive.Update(ctx, fileID, "application/json", data); err != nil {
			return Info{}, fmt.Errorf("update backup file: %w", err)
		}
	case errors.Is(err, drive.ErrFileNotFound):
		fileID, err = m.drive.Upload(ctx, m.fileName, m.folderID, "application/json", data)
		if err != nil {
			return Info{}, fmt.Errorf("create backup file: %w", err)
		}
	default:
		return Info{}, fmt.Errorf("locate backup file: %w", err)
	}

	slog.Info("backup completed", "fileId", fileID, "bytes", len(data))
	m.notifier.Publish(ctx, notify.EventBackupCompleted, fileID)
	return Info{
		FileID:     fileID,
		FileName:   m.fileName,
		Size:       len(data),
		BackupDate: snapshot.BackupDate,
	}, nil
}

// Restore downloads the backup and replaces the local data set with it. The
// download and decode both complete before the store is touched, so a bad
// backup file never destroys local data.
func (m *Manager) Restore(ctx context.Context) (Snapshot, error) {
	fileID, err := m.drive.FindFileByName(ctx, m.fileName, m.folderID)
	if err != nil {
		if errors.Is(err, drive.ErrFileNotFound) {
			return Snapshot{}, ErrNoBackup
		}
		return Snapshot{}, fmt.Errorf("locate backup file: %w", err)
	}
	data, err := m.drive.Download(ctx, fileID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("download backup: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode backup: %w", err)
	}
	if snapshot.Records == nil {
		snapshot.Records = []domain.MedicalRecord{}
	}
	if snapshot.Meds == nil {
		snapshot.Meds = []domain.Medication{}
	}
	var profile domain.UserProfile
	if snapshot.Profile != nil {
		profile = *snapshot.Profile
	}
	if err := m.store.ReplaceAll(snapshot.Records, snapshot.Meds, profile); err != nil {
		return Snapshot{}, fmt.Errorf("replace data set: %w", err)
	}

	slog.Info("restore completed", "fileId", fileID, "records", len(snapshot.Records), "meds", len(snapshot.Meds))
	m.notifier.Publish(ctx, notify.EventRestoreCompleted, fileID)
	return snapshot, nil
}

func (m *Manager) snapshot() (Snapshot, error) {
	records, err := m.store.ListRecords()
	if err != nil {
		return Snapshot{}, err
	}
	meds, err := m.store.ListMedications()
	if err != nil {
		return Snapshot{}, err
	}
	snapshot := Snapshot{
		Records:    records,
		Meds:       meds,
		BackupDate: m.now().UTC().Format(time.RFC3339),
	}
	if profile, ok, err := m.store.GetProfile(); err != nil {
		return Snapshot{}, err
	} else if ok {
		p := profile
		snapshot.Profile = &p
	}
	if snapshot.Records == nil {
		snapshot.Records = []domain.MedicalRecord{}
	}
	if snapshot.Meds == nil {
		snapshot.Meds = []domain.Medication{}
	}
	return snapshot, nil
}
