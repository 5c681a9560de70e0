package app

import (
	"errors"
	"sort"
	"strings"

	"amanhealth/pkg/domain"
	"amanhealth/pkg/store"
)

// RecordPatch is a partial update; nil fields are left untouched.
type RecordPatch struct {
	Title            *string  `json:"title"`
	Date             *string  `json:"date"`
	Time             *string  `json:"time"`
	Place            *string  `json:"place"`
	DoctorSpecialty  *string  `json:"doctorSpecialty"`
	DoctorPhone      *string  `json:"doctorPhone"`
	ExpectedCost     *float64 `json:"expectedCost"`
	ActualCost       *float64 `json:"actualCost"`
	PreVisitNote     *string  `json:"preVisitNote"`
	PostVisitNote    *string  `json:"postVisitNote"`
	AfterReviewNotes *string  `json:"afterReviewNotes"`
	Recommendations  *string  `json:"recommendations"`
	Completed        *bool    `json:"completed"`
	Payer            *string  `json:"payer"`
}

func (p RecordPatch) empty() bool {
	return p.Title == nil && p.Date == nil && p.Time == nil && p.Place == nil &&
		p.DoctorSpecialty == nil && p.DoctorPhone == nil && p.ExpectedCost == nil &&
		p.ActualCost == nil && p.PreVisitNote == nil && p.PostVisitNote == nil &&
		p.AfterReviewNotes == nil && p.Recommendations == nil && p.Completed == nil &&
		p.Payer == nil
}

// UpdateRecord shallow-merges the patch into the stored record. When the
// patch touches cost or payer, the primary payment is upserted so it keeps
// matching the record's cost attribution. An empty patch changes nothing.
func (a *App) UpdateRecord(id string, patch RecordPatch) (domain.MedicalRecord, error) {
	record, ok, err := a.store.GetRecord(id)
	if err != nil {
		return domain.MedicalRecord{}, err
	}
	if !ok {
		return domain.MedicalRecord{}, ErrNotFound
	}
	if patch.empty() {
		return record, nil
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Date != nil {
		record.Date = *patch.Date
	}
	if patch.Time != nil {
		record.Time = *patch.Time
	}
	if patch.Place != nil {
		record.Place = *patch.Place
	}
	if patch.DoctorSpecialty != nil {
		record.DoctorSpecialty = *patch.DoctorSpecialty
	}
	if patch.DoctorPhone != nil {
		record.DoctorPhone = *patch.DoctorPhone
	}
	if patch.ExpectedCost != nil {
		record.ExpectedCost = *patch.ExpectedCost
	}
	if patch.ActualCost != nil {
		cost := *patch.ActualCost
		record.ActualCost = &cost
	}
	if patch.PreVisitNote != nil {
		record.PreVisitNote = *patch.PreVisitNote
	}
	if patch.PostVisitNote != nil {
		record.PostVisitNote = *patch.PostVisitNote
	}
	if patch.AfterReviewNotes != nil {
		record.AfterReviewNotes = *patch.AfterReviewNotes
	}
	if patch.Recommendations != nil {
		record.Recommendations = *patch.Recommendations
	}
	if patch.Completed != nil {
		record.Completed = *patch.Completed
	}
	if patch.ActualCost != nil || patch.ExpectedCost != nil || patch.Payer != nil {
		payer := primaryPayer(record.Payments)
		if patch.Payer != nil {
			payer = *patch.Payer
		}
		if payer != "" {
			record.Payments = upsertPrimaryPayment(record.Payments, payer, record.Cost(), record.Currency, record.Date, paymentKindLabel(record.Kind))
		}
	}
	record.UpdatedAt = a.now().UTC()
	if err := a.store.SaveRecord(record); err != nil {
		return domain.MedicalRecord{}, err
	}
	return record, nil
}

// MedicationPatch is a partial medication update; nil fields stay untouched.
type MedicationPatch struct {
	NameAr         *string  `json:"nameAr"`
	NameEn         *string  `json:"nameEn"`
	ScientificName *string  `json:"scientificName"`
	Dosage         *string  `json:"dosage"`
	Time           *string  `json:"time"`
	DosageSchedule *string  `json:"dosageSchedule"`
	Purpose        *string  `json:"purpose"`
	CategoryAr     *string  `json:"categoryAr"`
	Price          *float64 `json:"price"`
	Payer          *string  `json:"payer"`
}

func (p MedicationPatch) empty() bool {
	return p.NameAr == nil && p.NameEn == nil && p.ScientificName == nil &&
		p.Dosage == nil && p.Time == nil && p.DosageSchedule == nil &&
		p.Purpose == nil && p.CategoryAr == nil && p.Price == nil && p.Payer == nil
}

// UpdateMedication shallow-merges the patch into the stored medication.
func (a *App) UpdateMedication(id string, patch MedicationPatch) (domain.Medication, error) {
	med, ok, err := a.store.GetMedication(id)
	if err != nil {
		return domain.Medication{}, err
	}
	if !ok {
		return domain.Medication{}, ErrNotFound
	}
	if patch.empty() {
		return med, nil
	}
	if patch.NameAr != nil {
		med.NameAr = *patch.NameAr
	}
	if patch.NameEn != nil {
		med.NameEn = *patch.NameEn
	}
	if patch.ScientificName != nil {
		med.ScientificName = *patch.ScientificName
	}
	if patch.Dosage != nil {
		med.Dosage = *patch.Dosage
	}
	if patch.Time != nil {
		med.Time = *patch.Time
	}
	if patch.DosageSchedule != nil {
		med.DosageSchedule = *patch.DosageSchedule
	}
	if patch.Purpose != nil {
		med.Purpose = *patch.Purpose
	}
	if patch.CategoryAr != nil {
		med.CategoryAr = *patch.CategoryAr
	}
	if patch.Price != nil {
		med.Price = *patch.Price
	}
	if patch.Payer != nil {
		med.PaidBy = *patch.Payer
	}
	if patch.Price != nil || patch.Payer != nil {
		if med.PaidBy != "" {
			med.Payments = upsertPrimaryPayment(med.Payments, med.PaidBy, med.Price, a.currency, a.now().UTC().Format("2006-01-02"), paymentKindLabels[domain.KindMeds])
		}
	}
	med.UpdatedAt = a.now().UTC()
	if err := a.store.SaveMedication(med); err != nil {
		return domain.Medication{}, err
	}
	return med, nil
}

// ToggleMedicationStatus flips active/stopped. Stopping requires a non-empty
// reason and stores it; reactivating clears it.
func (a *App) ToggleMedicationStatus(id, reason string) (domain.Medication, error) {
	med, ok, err := a.store.GetMedication(id)
	if err != nil {
		return domain.Medication{}, err
	}
	if !ok {
		return domain.Medication{}, ErrNotFound
	}
	switch med.Status {
	case domain.MedicationActive:
		if strings.TrimSpace(reason) == "" {
			return domain.Medication{}, ErrStopReasonRequired
		}
		med.Status = domain.MedicationStopped
		med.StopReason = reason
	default:
		med.Status = domain.MedicationActive
		med.StopReason = ""
	}
	med.UpdatedAt = a.now().UTC()
	if err := a.store.SaveMedication(med); err != nil {
		return domain.Medication{}, err
	}
	return med, nil
}

// ListRecords returns records of a kind (or all), newest date first.
func (a *App) ListRecords(kind domain.RecordKind) ([]domain.MedicalRecord, error) {
	records, err := a.store.ListRecords()
	if err != nil {
		return nil, err
	}
	if kind != "" && kind != domain.KindCost {
		filtered := records[:0]
		for _, r := range records {
			if r.Kind == kind {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	return records, nil
}

// GetRecord retrieves one record.
func (a *App) GetRecord(id string) (domain.MedicalRecord, error) {
	record, ok, err := a.store.GetRecord(id)
	if err != nil {
		return domain.MedicalRecord{}, err
	}
	if !ok {
		return domain.MedicalRecord{}, ErrNotFound
	}
	return record, nil
}

// DeleteRecord removes a record by id.
func (a *App) DeleteRecord(id string) error {
	if err := a.store.DeleteRecord(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteMedication removes a medication by id.
func (a *App) DeleteMedication(id string) error {
	if err := a.store.DeleteMedication(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ListMedications returns the medications, optionally only active ones.
func (a *App) ListMedications(activeOnly bool) ([]domain.Medication, error) {
	meds, err := a.store.ListMedications()
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return meds, nil
	}
	filtered := meds[:0]
	for _, med := range meds {
		if med.Status == domain.MedicationActive {
			filtered = append(filtered, med)
		}
	}
	return filtered, nil
}

// Profile returns the stored profile, seeding defaults on first load.
func (a *App) Profile() (domain.UserProfile, error) {
	profile, ok, err := a.store.GetProfile()
	if err != nil {
		return domain.UserProfile{}, err
	}
	if !ok {
		profile = domain.UserProfile{
			Name:                "الوالدة",
			DietaryRestrictions: []string{},
		}
		if err := a.store.PutProfile(profile); err != nil {
			return domain.UserProfile{}, err
		}
	}
	return profile, nil
}

// PutProfile fully replaces the settings object.
func (a *App) PutProfile(profile domain.UserProfile) error {
	return a.store.PutProfile(profile)
}

// AttachFile appends an attachment reference to a record.
func (a *App) AttachFile(recordID string, att domain.Attachment) (domain.MedicalRecord, error) {
	record, ok, err := a.store.GetRecord(recordID)
	if err != nil {
		return domain.MedicalRecord{}, err
	}
	if !ok {
		return domain.MedicalRecord{}, ErrNotFound
	}
	record.Attachments = append(record.Attachments, att)
	record.UpdatedAt = a.now().UTC()
	if err := a.store.SaveRecord(record); err != nil {
		return domain.MedicalRecord{}, err
	}
	return record, nil
}

// FindAttachment looks up one attachment of a record.
func (a *App) FindAttachment(recordID, attachmentID string) (domain.Attachment, error) {
	record, ok, err := a.store.GetRecord(recordID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if !ok {
		return domain.Attachment{}, ErrNotFound
	}
	for _, att := range record.Attachments {
		if att.ID == attachmentID {
			return att, nil
		}
	}
	return domain.Attachment{}, ErrNotFound
}

func primaryPayer(payments []domain.Payment) string {
	if len(payments) == 0 {
		return ""
	}
	return payments[0].Payer
}
