package store

import (
	"sync"

	"amanhealth/pkg/domain"
)

// MemoryStore keeps all collections in-process. It is the default backend
// when no database is configured and the fixture store in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]domain.MedicalRecord
	recordIDs  []string
	meds       map[string]domain.Medication
	medIDs     []string
	profile    domain.UserProfile
	hasProfile bool
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.MedicalRecord),
		meds:    make(map[string]domain.Medication),
	}
}

// SaveRecord stores or replaces a medical record, tracking insertion order.
func (m *MemoryStore) SaveRecord(r domain.MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[r.ID]; !exists {
		m.recordIDs = append(m.recordIDs, r.ID)
	}
	m.records[r.ID] = r
	return nil
}

// GetRecord retrieves a medical record by id.
func (m *MemoryStore) GetRecord(id string) (domain.MedicalRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok, nil
}

// ListRecords returns records in insertion order.
func (m *MemoryStore) ListRecords() ([]domain.MedicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MedicalRecord, 0, len(m.recordIDs))
	for _, id := range m.recordIDs {
		if r, ok := m.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteRecord removes a medical record.
func (m *MemoryStore) DeleteRecord(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	m.recordIDs = removeID(m.recordIDs, id)
	return nil
}

// SaveMedication stores or replaces a medication.
func (m *MemoryStore) SaveMedication(med domain.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.meds[med.ID]; !exists {
		m.medIDs = append(m.medIDs, med.ID)
	}
	m.meds[med.ID] = med
	return nil
}

// GetMedication retrieves a medication by id.
func (m *MemoryStore) GetMedication(id string) (domain.Medication, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.meds[id]
	return med, ok, nil
}

// ListMedications returns medications in insertion order.
func (m *MemoryStore) ListMedications() ([]domain.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Medication, 0, len(m.medIDs))
	for _, id := range m.medIDs {
		if med, ok := m.meds[id]; ok {
			out = append(out, med)
		}
	}
	return out, nil
}

// DeleteMedication removes a medication.
func (m *MemoryStore) DeleteMedication(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meds[id]; !ok {
		return ErrNotFound
	}
	delete(m.meds, id)
	m.medIDs = removeID(m.medIDs, id)
	return nil
}

// GetProfile returns the stored profile, if any.
func (m *MemoryStore) GetProfile() (domain.UserProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile, m.hasProfile, nil
}

// PutProfile replaces the profile object.
func (m *MemoryStore) PutProfile(p domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = p
	m.hasProfile = true
	return nil
}

// ReplaceAll overwrites every collection with the given snapshot.
func (m *MemoryStore) ReplaceAll(records []domain.MedicalRecord, meds []domain.Medication, profile domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]domain.MedicalRecord, len(records))
	m.recordIDs = m.recordIDs[:0]
	for _, r := range records {
		if _, exists := m.records[r.ID]; !exists {
			m.recordIDs = append(m.recordIDs, r.ID)
		}
		m.records[r.ID] = r
	}
	m.meds = make(map[string]domain.Medication, len(meds))
	m.medIDs = m.medIDs[:0]
	for _, med := range meds {
		if _, exists := m.meds[med.ID]; !exists {
			m.medIDs = append(m.medIDs, med.ID)
		}
		m.meds[med.ID] = med
	}
	m.profile = profile
	m.hasProfile = true
	return nil
}

func removeID(ids []string, id string) []string {
	filtered := ids[:0]
	for _, item := range ids {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
