package store

import (
	"errors"

	"amanhealth/pkg/domain"
)

// ErrNotFound is returned when a record or medication id does not exist.
var ErrNotFound = errors.New("not found")

// Store defines persistence for the three collections: medical records,
// medications, and the singleton user profile. Implementations must keep
// list order stable so a backup/restore cycle reproduces the same snapshot.
type Store interface {
	// records
	SaveRecord(domain.MedicalRecord) error
	GetRecord(id string) (domain.MedicalRecord, bool, error)
	ListRecords() ([]domain.MedicalRecord, error)
	DeleteRecord(id string) error

	// medications
	SaveMedication(domain.Medication) error
	GetMedication(id string) (domain.Medication, bool, error)
	ListMedications() ([]domain.Medication, error)
	DeleteMedication(id string) error

	// profile
	GetProfile() (domain.UserProfile, bool, error)
	PutProfile(domain.UserProfile) error

	// ReplaceAll atomically overwrites every collection. Used by restore.
	ReplaceAll(records []domain.MedicalRecord, meds []domain.Medication, profile domain.UserProfile) error
}
