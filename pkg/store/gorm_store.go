package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"amanhealth/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&RecordModel{}, &MedicationModel{}, &ProfileModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveRecord inserts or replaces a medical record.
func (s *GormStore) SaveRecord(r domain.MedicalRecord) error {
	model, err := recordToModel(r)
	if err != nil {
		return err
	}
	var existing RecordModel
	err = s.db.Select("position").First(&existing, "id = ?", r.ID).Error
	switch {
	case err == nil:
		model.Position = existing.Position
	case errors.Is(err, gorm.ErrRecordNotFound):
		model.Position = time.Now().UnixNano()
	default:
		return fmt.Errorf("load record position: %w", err)
	}
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// GetRecord retrieves a medical record by id.
func (s *GormStore) GetRecord(id string) (domain.MedicalRecord, bool, error) {
	var model RecordModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.MedicalRecord{}, false, nil
	}
	if err != nil {
		return domain.MedicalRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	record, err := modelToRecord(model)
	if err != nil {
		return domain.MedicalRecord{}, false, err
	}
	return record, true, nil
}

// ListRecords returns records in insertion order.
func (s *GormStore) ListRecords() ([]domain.MedicalRecord, error) {
	var models []RecordModel
	if err := s.db.Order("position asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]domain.MedicalRecord, 0, len(models))
	for _, model := range models {
		record, err := modelToRecord(model)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// DeleteRecord removes a medical record.
func (s *GormStore) DeleteRecord(id string) error {
	res := s.db.Delete(&RecordModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMedication inserts or replaces a medication.
func (s *GormStore) SaveMedication(med domain.Medication) error {
	model, err := medicationToModel(med)
	if err != nil {
		return err
	}
	var existing MedicationModel
	err = s.db.Select("position").First(&existing, "id = ?", med.ID).Error
	switch {
	case err == nil:
		model.Position = existing.Position
	case errors.Is(err, gorm.ErrRecordNotFound):
		model.Position = time.Now().UnixNano()
	default:
		return fmt.Errorf("load medication position: %w", err)
	}
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save medication: %w", err)
	}
	return nil
}

// GetMedication retrieves a medication by id.
func (s *GormStore) GetMedication(id string) (domain.Medication, bool, error) {
	var model MedicationModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Medication{}, false, nil
	}
	if err != nil {
		return domain.Medication{}, false, fmt.Errorf("get medication: %w", err)
	}
	med, err := modelToMedication(model)
	if err != nil {
		return domain.Medication{}, false, err
	}
	return med, true, nil
}

// ListMedications returns medications in insertion order.
func (s *GormStore) ListMedications() ([]domain.Medication, error) {
	var models []MedicationModel
	if err := s.db.Order("position asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	out := make([]domain.Medication, 0, len(models))
	for _, model := range models {
		med, err := modelToMedication(model)
		if err != nil {
			return nil, err
		}
		out = append(out, med)
	}
	return out, nil
}

// DeleteMedication removes a medication.
func (s *GormStore) DeleteMedication(id string) error {
	res := s.db.Delete(&MedicationModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete medication: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile returns the stored singleton profile.
func (s *GormStore) GetProfile() (domain.UserProfile, bool, error) {
	var model ProfileModel
	err := s.db.First(&model, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserProfile{}, false, nil
	}
	if err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("get profile: %w", err)
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(model.Data, &profile); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return profile, true, nil
}

// PutProfile replaces the singleton profile row.
func (s *GormStore) PutProfile(p domain.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	model := ProfileModel{ID: 1, Data: data, UpdatedAt: time.Now().UTC()}
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ReplaceAll overwrites every collection inside one transaction.
func (s *GormStore) ReplaceAll(records []domain.MedicalRecord, meds []domain.Medication, profile domain.UserProfile) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&RecordModel{}).Error; err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&MedicationModel{}).Error; err != nil {
			return fmt.Errorf("clear medications: %w", err)
		}
		for i, r := range records {
			model, err := recordToModel(r)
			if err != nil {
				return err
			}
			model.Position = int64(i)
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("restore record %s: %w", r.ID, err)
			}
		}
		for i, med := range meds {
			model, err := medicationToModel(med)
			if err != nil {
				return err
			}
			model.Position = int64(i)
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("restore medication %s: %w", med.ID, err)
			}
		}
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		model := ProfileModel{ID: 1, Data: data, UpdatedAt: time.Now().UTC()}
		if err := tx.Save(&model).Error; err != nil {
			return fmt.Errorf("restore profile: %w", err)
		}
		return nil
	})
}

func recordToModel(r domain.MedicalRecord) (RecordModel, error) {
	attachments, err := marshalJSON(r.Attachments)
	if err != nil {
		return RecordModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	payments, err := marshalJSON(r.Payments)
	if err != nil {
		return RecordModel{}, fmt.Errorf("encode payments: %w", err)
	}
	return RecordModel{
		ID:               r.ID,
		Kind:             string(r.Kind),
		Title:            r.Title,
		Date:             r.Date,
		Time:             r.Time,
		Place:            r.Place,
		DoctorSpecialty:  r.DoctorSpecialty,
		DoctorPhone:      r.DoctorPhone,
		ExpectedCost:     r.ExpectedCost,
		ActualCost:       r.ActualCost,
		Currency:         r.Currency,
		PreVisitNote:     r.PreVisitNote,
		PostVisitNote:    r.PostVisitNote,
		AfterReviewNotes: r.AfterReviewNotes,
		Recommendations:  r.Recommendations,
		Attachments:      attachments,
		Payments:         payments,
		Completed:        r.Completed,
		AIAnalyzed:       r.AIAnalyzed,
		Source:           string(r.Source),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

func modelToRecord(m RecordModel) (domain.MedicalRecord, error) {
	var attachments []domain.Attachment
	if err := unmarshalJSON(m.Attachments, &attachments); err != nil {
		return domain.MedicalRecord{}, fmt.Errorf("decode attachments: %w", err)
	}
	var payments []domain.Payment
	if err := unmarshalJSON(m.Payments, &payments); err != nil {
		return domain.MedicalRecord{}, fmt.Errorf("decode payments: %w", err)
	}
	return domain.MedicalRecord{
		ID:               m.ID,
		Kind:             domain.RecordKind(m.Kind),
		Title:            m.Title,
		Date:             m.Date,
		Time:             m.Time,
		Place:            m.Place,
		DoctorSpecialty:  m.DoctorSpecialty,
		DoctorPhone:      m.DoctorPhone,
		ExpectedCost:     m.ExpectedCost,
		ActualCost:       m.ActualCost,
		Currency:         m.Currency,
		PreVisitNote:     m.PreVisitNote,
		PostVisitNote:    m.PostVisitNote,
		AfterReviewNotes: m.AfterReviewNotes,
		Recommendations:  m.Recommendations,
		Attachments:      attachments,
		Payments:         payments,
		Completed:        m.Completed,
		AIAnalyzed:       m.AIAnalyzed,
		Source:           domain.Source(m.Source),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

func medicationToModel(med domain.Medication) (MedicationModel, error) {
	attachments, err := marshalJSON(med.Attachments)
	if err != nil {
		return MedicationModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	payments, err := marshalJSON(med.Payments)
	if err != nil {
		return MedicationModel{}, fmt.Errorf("encode payments: %w", err)
	}
	return MedicationModel{
		ID:             med.ID,
		NameAr:         med.NameAr,
		NameEn:         med.NameEn,
		ScientificName: med.ScientificName,
		Dosage:         med.Dosage,
		Time:           med.Time,
		DosageSchedule: med.DosageSchedule,
		Purpose:        med.Purpose,
		CategoryAr:     med.CategoryAr,
		Status:         string(med.Status),
		StopReason:     med.StopReason,
		Price:          med.Price,
		PaidBy:         med.PaidBy,
		Attachments:    attachments,
		Payments:       payments,
		Source:         string(med.Source),
		CreatedAt:      med.CreatedAt,
		UpdatedAt:      med.UpdatedAt,
	}, nil
}

func modelToMedication(m MedicationModel) (domain.Medication, error) {
	var attachments []domain.Attachment
	if err := unmarshalJSON(m.Attachments, &attachments); err != nil {
		return domain.Medication{}, fmt.Errorf("decode attachments: %w", err)
	}
	var payments []domain.Payment
	if err := unmarshalJSON(m.Payments, &payments); err != nil {
		return domain.Medication{}, fmt.Errorf("decode payments: %w", err)
	}
	return domain.Medication{
		ID:             m.ID,
		NameAr:         m.NameAr,
		NameEn:         m.NameEn,
		ScientificName: m.ScientificName,
		Dosage:         m.Dosage,
		Time:           m.Time,
		DosageSchedule: m.DosageSchedule,
		Purpose:        m.Purpose,
		CategoryAr:     m.CategoryAr,
		Status:         domain.MedicationStatus(m.Status),
		StopReason:     m.StopReason,
		Price:          m.Price,
		PaidBy:         m.PaidBy,
		Attachments:    attachments,
		Payments:       payments,
		Source:         domain.Source(m.Source),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func unmarshalJSON(data datatypes.JSON, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
