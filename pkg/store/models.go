package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Payments and attachments live as JSONB
// sub-documents because they are exclusively owned by their parent row.
type RecordModel struct {
	ID               string `gorm:"primaryKey"`
	Kind             string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	Date             string `gorm:"not null;index"`
	Time             string
	Place            string
	DoctorSpecialty  string
	DoctorPhone      string
	ExpectedCost     float64
	ActualCost       *float64
	Currency         string
	PreVisitNote     string `gorm:"type:text"`
	PostVisitNote    string `gorm:"type:text"`
	AfterReviewNotes string `gorm:"type:text"`
	Recommendations  string `gorm:"type:text"`
	Attachments      datatypes.JSON `gorm:"type:jsonb"`
	Payments         datatypes.JSON `gorm:"type:jsonb"`
	Completed        bool
	AIAnalyzed       bool
	Source           string
	Position         int64     `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time
}

type MedicationModel struct {
	ID             string `gorm:"primaryKey"`
	NameAr         string `gorm:"not null;index"`
	NameEn         string
	ScientificName string
	Dosage         string
	Time           string
	DosageSchedule string
	Purpose        string `gorm:"type:text"`
	CategoryAr     string
	Status         string `gorm:"not null;index"`
	StopReason     string
	Price          float64
	PaidBy         string
	Attachments    datatypes.JSON `gorm:"type:jsonb"`
	Payments       datatypes.JSON `gorm:"type:jsonb"`
	Source         string
	Position       int64     `gorm:"not null;index"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

// ProfileModel holds the singleton profile as one JSONB row.
type ProfileModel struct {
	ID        int            `gorm:"primaryKey"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}
