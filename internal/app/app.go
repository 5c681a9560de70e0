// Package app holds the reconciliation core: it turns AI classifications and
// manual form entries into stored records, enforces the medication
// duplicate-suppression rule, and computes the per-payer cost split.
package app

import (
	"strings"
	"time"

	"amanhealth/internal/util"
	"amanhealth/pkg/ai"
	"amanhealth/pkg/domain"
	"amanhealth/pkg/store"
)

// UnassignedPayer buckets costs that carry no payment entry.
const UnassignedPayer = "غير محدد"

const (
	defaultRecordTitle    = "سجل جديد"
	defaultMedicationName = "دواء جديد"
	defaultMedicationTime = "صباحاً"
	defaultCategory       = "أخرى"
)

// DefaultPayers is the family roster used when config lists none.
var DefaultPayers = []string{"عبدالرحمن", "عبدالرؤوف", "مصطفى", "خليل"}

// paymentKindLabels names the payment kind per record kind.
var paymentKindLabels = map[domain.RecordKind]string{
	domain.KindVisit: "زيارة طبيب",
	domain.KindMeds:  "شراء أدوية",
	domain.KindLab:   "فحوصات مخبرية",
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store    store.Store
	Payers   []string
	Currency string
}

// App wires storage to the reconciliation logic.
type App struct {
	store    store.Store
	payers   []string
	currency string
	now      func() time.Time
}

// New constructs the application core.
func New(cfg Config) *App {
	payers := cfg.Payers
	if len(payers) == 0 {
		payers = DefaultPayers
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "JOD"
	}
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	return &App{store: st, payers: payers, currency: currency, now: time.Now}
}

// Store exposes the underlying store (backup manager needs it).
func (a *App) Store() store.Store { return a.store }

// Payers returns the configured payer roster.
func (a *App) Payers() []string { return a.payers }

// normalizeName canonicalizes a medication name for duplicate matching:
// case-insensitive with collapsed whitespace.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// MergeResult reports what a classified document produced.
type MergeResult struct {
	Record       domain.MedicalRecord `json:"record"`
	AddedMeds    []domain.Medication  `json:"addedMedications"`
	AddedCount   int                  `json:"addedCount"`
	SkippedCount int                  `json:"skippedCount"`
}

// MergeClassifiedDocument builds a medical record from an AI analysis and,
// for medication documents, inserts each detected drug that is not already
// active under the same name. Detected duplicates are counted, not inserted.
func (a *App) MergeClassifiedDocument(analysis ai.Analysis, targetKind domain.RecordKind, payer string) (MergeResult, error) {
	kind := targetKind
	if !domain.IsValidKind(kind) {
		if analysisKind, ok := analysis.Kind(); ok {
			kind = analysisKind
		} else {
			kind = domain.KindVisit
		}
	}
	now := a.now().UTC()
	record := domain.MedicalRecord{
		ID:               util.NewID(),
		Kind:             kind,
		Title:            analysis.Title,
		Date:             analysis.Date,
		Place:            analysis.Place,
		Currency:         a.currency,
		AfterReviewNotes: analysis.Summary,
		Recommendations:  analysis.Advice,
		Attachments:      []domain.Attachment{},
		Payments:         []domain.Payment{},
		Completed:        true,
		AIAnalyzed:       true,
		Source:           domain.SourceManual,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.Title == "" {
		record.Title = defaultRecordTitle
	}
	if record.Date == "" {
		record.Date = now.Format("2006-01-02")
	}
	if analysis.ActualCost > 0 {
		cost := analysis.ActualCost
		record.ActualCost = &cost
	}
	if payer != "" && analysis.ActualCost > 0 {
		record.Payments = upsertPrimaryPayment(record.Payments, payer, analysis.ActualCost, a.currency, record.Date, paymentKindLabel(kind))
	}
	if err := a.store.SaveRecord(record); err != nil {
		return MergeResult{}, err
	}

	result := MergeResult{Record: record, AddedMeds: []domain.Medication{}}
	if kind != domain.KindMeds {
		return result, nil
	}
	active, err := a.activeNameSet()
	if err != nil {
		return MergeResult{}, err
	}
	for _, detected := range analysis.Medications {
		name := detected.NameAr
		if name == "" {
			name = defaultMedicationName
		}
		if _, dup := active[normalizeName(name)]; dup {
			result.SkippedCount++
			continue
		}
		med := domain.Medication{
			ID:          util.NewID(),
			NameAr:      name,
			Dosage:      detected.Dosage,
			Time:        defaultMedicationTime,
			Purpose:     detected.Purpose,
			CategoryAr:  detected.CategoryAr,
			Status:      domain.MedicationActive,
			PaidBy:      payer,
			Attachments: []domain.Attachment{},
			Payments:    []domain.Payment{},
			Source:      domain.SourceManual,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if med.CategoryAr == "" {
			med.CategoryAr = defaultCategory
		}
		if err := a.store.SaveMedication(med); err != nil {
			return MergeResult{}, err
		}
		active[normalizeName(name)] = struct{}{}
		result.AddedMeds = append(result.AddedMeds, med)
		result.AddedCount++
	}
	return result, nil
}

// RecordInput is a manual record entry form.
type RecordInput struct {
	Kind            domain.RecordKind `json:"kind"`
	Title           string            `json:"title"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	Place           string            `json:"place"`
	DoctorSpecialty string            `json:"doctorSpecialty"`
	DoctorPhone     string            `json:"doctorPhone"`
	ExpectedCost    float64           `json:"expectedCost"`
	ActualCost      *float64          `json:"actualCost"`
	PreVisitNote    string            `json:"preVisitNote"`
	PostVisitNote   string            `json:"postVisitNote"`
	Recommendations string            `json:"recommendations"`
	Payer           string            `json:"payer"`
	Completed       bool              `json:"completed"`
}

// RecordManualEntry creates a record from form fields, filling defaults the
// same way the classification path does.
func (a *App) RecordManualEntry(input RecordInput) (domain.MedicalRecord, error) {
	if strings.TrimSpace(input.Title) == "" {
		return domain.MedicalRecord{}, ErrTitleRequired
	}
	kind := input.Kind
	if !domain.IsValidKind(kind) {
		kind = domain.KindVisit
	}
	now := a.now().UTC()
	record := domain.MedicalRecord{
		ID:              util.NewID(),
		Kind:            kind,
		Title:           input.Title,
		Date:            input.Date,
		Time:            input.Time,
		Place:           input.Place,
		DoctorSpecialty: input.DoctorSpecialty,
		DoctorPhone:     input.DoctorPhone,
		ExpectedCost:    input.ExpectedCost,
		ActualCost:      input.ActualCost,
		Currency:        a.currency,
		PreVisitNote:    input.PreVisitNote,
		PostVisitNote:   input.PostVisitNote,
		Recommendations: input.Recommendations,
		Attachments:     []domain.Attachment{},
		Payments:        []domain.Payment{},
		Completed:       input.Completed,
		Source:          domain.SourceManual,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if record.Date == "" {
		record.Date = now.Format("2006-01-02")
	}
	if input.Payer != "" && record.Cost() > 0 {
		record.Payments = upsertPrimaryPayment(record.Payments, input.Payer, record.Cost(), a.currency, record.Date, paymentKindLabel(kind))
	}
	if err := a.store.SaveRecord(record); err != nil {
		return domain.MedicalRecord{}, err
	}
	return record, nil
}

// MedicationInput is a manual medication entry form.
type MedicationInput struct {
	NameAr         string  `json:"nameAr"`
	NameEn         string  `json:"nameEn"`
	ScientificName string  `json:"scientificName"`
	Dosage         string  `json:"dosage"`
	Time           string  `json:"time"`
	DosageSchedule string  `json:"dosageSchedule"`
	Purpose        string  `json:"purpose"`
	CategoryAr     string  `json:"categoryAr"`
	Price          float64 `json:"price"`
	Payer          string  `json:"payer"`
}

// SaveMedicationEntry creates an active medication, rejecting a name that is
// already active (case/whitespace-insensitive).
func (a *App) SaveMedicationEntry(input MedicationInput) (domain.Medication, error) {
	if strings.TrimSpace(input.NameAr) == "" {
		return domain.Medication{}, ErrNameRequired
	}
	active, err := a.activeNameSet()
	if err != nil {
		return domain.Medication{}, err
	}
	if _, dup := active[normalizeName(input.NameAr)]; dup {
		return domain.Medication{}, ErrDuplicateMedication
	}
	now := a.now().UTC()
	med := domain.Medication{
		ID:             util.NewID(),
		NameAr:         input.NameAr,
		NameEn:         input.NameEn,
		ScientificName: input.ScientificName,
		Dosage:         input.Dosage,
		Time:           input.Time,
		DosageSchedule: input.DosageSchedule,
		Purpose:        input.Purpose,
		CategoryAr:     input.CategoryAr,
		Status:         domain.MedicationActive,
		Price:          input.Price,
		PaidBy:         input.Payer,
		Attachments:    []domain.Attachment{},
		Payments:       []domain.Payment{},
		Source:         domain.SourceManual,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if med.Time == "" {
		med.Time = defaultMedicationTime
	}
	if med.CategoryAr == "" {
		med.CategoryAr = defaultCategory
	}
	if input.Payer != "" && input.Price > 0 {
		med.Payments = upsertPrimaryPayment(med.Payments, input.Payer, input.Price, a.currency, now.Format("2006-01-02"), paymentKindLabels[domain.KindMeds])
	}
	if err := a.store.SaveMedication(med); err != nil {
		return domain.Medication{}, err
	}
	return med, nil
}

func (a *App) activeNameSet() (map[string]struct{}, error) {
	meds, err := a.store.ListMedications()
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{}, len(meds))
	for _, med := range meds {
		if med.Status == domain.MedicationActive {
			active[normalizeName(med.NameAr)] = struct{}{}
		}
	}
	return active, nil
}

func paymentKindLabel(kind domain.RecordKind) string {
	if label, ok := paymentKindLabels[kind]; ok {
		return label
	}
	return string(kind)
}

// upsertPrimaryPayment replaces only the first payment, preserving any later
// entries.
func upsertPrimaryPayment(payments []domain.Payment, payer string, amount float64, currency, date, kindLabel string) []domain.Payment {
	payment := domain.Payment{
		ID:       util.NewID(),
		Payer:    payer,
		Kind:     kindLabel,
		Amount:   amount,
		Currency: currency,
		Date:     date,
	}
	if len(payments) == 0 {
		return []domain.Payment{payment}
	}
	payment.ID = payments[0].ID
	out := make([]domain.Payment, len(payments))
	copy(out, payments)
	out[0] = payment
	return out
}
