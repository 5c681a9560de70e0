package domain

import "time"

// RecordKind partitions the medical timeline.
type RecordKind string

const (
	KindVisit     RecordKind = "visits"
	KindLab       RecordKind = "labs"
	KindMeds      RecordKind = "meds"
	KindEmergency RecordKind = "er"
	KindHospital  RecordKind = "hospital"
	KindCost      RecordKind = "costs"
	KindPlan      RecordKind = "plan"
)

// KnownKinds lists every valid record kind.
var KnownKinds = []RecordKind{KindVisit, KindLab, KindMeds, KindEmergency, KindHospital, KindCost, KindPlan}

// IsValidKind reports whether k names a known record kind.
func IsValidKind(k RecordKind) bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Source tags where a record came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceDrive  Source = "drive"
)

// MedicationStatus is the two-valued medication lifecycle state.
type MedicationStatus string

const (
	MedicationActive  MedicationStatus = "active"
	MedicationStopped MedicationStatus = "stopped"
)

// Payment is one monetary contribution, owned by exactly one parent record.
type Payment struct {
	ID       string  `json:"id"`
	Payer    string  `json:"payer"`
	Kind     string  `json:"kind"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Date     string  `json:"date"`
}

// Attachment is a file reference owned by its parent record. Content lives
// either inline (base64) or in object storage (StorageKey).
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MIME       string `json:"mime"`
	AddedAt    int64  `json:"addedAt"`
	Base64     string `json:"base64,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
}

// MedicalRecord is one medical event: a clinic visit, lab panel, hospital or
// ER encounter, or a standalone cost entry.
type MedicalRecord struct {
	ID               string       `json:"id"`
	Kind             RecordKind   `json:"kind"`
	Title            string       `json:"title"`
	Date             string       `json:"date"`
	Time             string       `json:"time,omitempty"`
	Place            string       `json:"place"`
	DoctorSpecialty  string       `json:"doctorSpecialty,omitempty"`
	DoctorPhone      string       `json:"doctorPhone,omitempty"`
	ExpectedCost     float64      `json:"expectedCost"`
	ActualCost       *float64     `json:"actualCost,omitempty"`
	Currency         string       `json:"currency"`
	PreVisitNote     string       `json:"preVisitNote,omitempty"`
	PostVisitNote    string       `json:"postVisitNote,omitempty"`
	AfterReviewNotes string       `json:"afterReviewNotes,omitempty"`
	Recommendations  string       `json:"recommendations,omitempty"`
	Attachments      []Attachment `json:"attachments"`
	Payments         []Payment    `json:"payments"`
	Completed        bool         `json:"completed"`
	AIAnalyzed       bool         `json:"isAiAnalyzed,omitempty"`
	Source           Source       `json:"source"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Cost returns the actual cost when recorded, otherwise the expected cost.
func (r MedicalRecord) Cost() float64 {
	if r.ActualCost != nil {
		return *r.ActualCost
	}
	return r.ExpectedCost
}

// Medication is one prescribed or tracked drug.
type Medication struct {
	ID             string           `json:"id"`
	NameAr         string           `json:"nameAr"`
	NameEn         string           `json:"nameEn,omitempty"`
	ScientificName string           `json:"scientificName,omitempty"`
	Dosage         string           `json:"dosage"`
	Time           string           `json:"time"`
	DosageSchedule string           `json:"dosageSchedule,omitempty"`
	Purpose        string           `json:"purpose"`
	CategoryAr     string           `json:"categoryAr,omitempty"`
	Status         MedicationStatus `json:"status"`
	StopReason     string           `json:"stopReason,omitempty"`
	Price          float64          `json:"price"`
	PaidBy         string           `json:"paidBy,omitempty"`
	Attachments    []Attachment     `json:"attachments"`
	Payments       []Payment        `json:"payments"`
	Source         Source           `json:"source"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// UserProfile is the singleton settings object for the installation.
type UserProfile struct {
	Name                string   `json:"name"`
	Age                 int      `json:"age,omitempty"`
	Conditions          []string `json:"conditions,omitempty"`
	DietaryRestrictions []string `json:"dietaryRestrictions"`
	Stage               string   `json:"stage,omitempty"`
	Goals               []string `json:"goals,omitempty"`
	DriveFolderID       string   `json:"driveFolderId,omitempty"`
}

// MealPlan is one day of the assistant-generated meal program.
type MealPlan struct {
	Day       string `json:"day"`
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
	Snack     string `json:"snack"`
}
