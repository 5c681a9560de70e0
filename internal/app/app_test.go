package app

import (
	"errors"
	"testing"

	"amanhealth/pkg/ai"
	"amanhealth/pkg/domain"
	"amanhealth/pkg/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return New(Config{Store: store.NewMemoryStore()})
}

func TestMergeClassifiedDocumentSkipsActiveDuplicates(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور", Dosage: "5mg"}); err != nil {
		t.Fatalf("seed medication: %v", err)
	}

	analysis := ai.Analysis{
		Category: "أدوية",
		Title:    "وصفة طبية",
		Medications: []ai.DetectedMedication{
			{NameAr: "كونكور ", Dosage: "5mg"},
			{NameAr: "بنادول", Dosage: "500mg"},
		},
	}
	result, err := a.MergeClassifiedDocument(analysis, domain.KindMeds, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.AddedCount != 1 || result.SkippedCount != 1 {
		t.Fatalf("added=%d skipped=%d, want 1/1", result.AddedCount, result.SkippedCount)
	}
	if result.AddedMeds[0].NameAr != "بنادول" {
		t.Fatalf("added %q, want بنادول", result.AddedMeds[0].NameAr)
	}

	meds, err := a.ListMedications(false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(meds) != 2 {
		t.Fatalf("got %d medications, want 2", len(meds))
	}
}

func TestMergeClassifiedDocumentStoppedNameIsNotDuplicate(t *testing.T) {
	a := newTestApp(t)
	med, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := a.ToggleMedicationStatus(med.ID, "انتهى العلاج"); err != nil {
		t.Fatalf("stop: %v", err)
	}

	analysis := ai.Analysis{
		Category:    "أدوية",
		Medications: []ai.DetectedMedication{{NameAr: "كونكور"}},
	}
	result, err := a.MergeClassifiedDocument(analysis, domain.KindMeds, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.AddedCount != 1 || result.SkippedCount != 0 {
		t.Fatalf("added=%d skipped=%d, want 1/0", result.AddedCount, result.SkippedCount)
	}
}

func TestMergeClassifiedDocumentNoDetectedMedications(t *testing.T) {
	a := newTestApp(t)
	analysis := ai.Analysis{Category: "أدوية", Title: "وصفة فارغة"}
	result, err := a.MergeClassifiedDocument(analysis, domain.KindMeds, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.AddedCount != 0 || result.SkippedCount != 0 {
		t.Fatalf("added=%d skipped=%d, want 0/0", result.AddedCount, result.SkippedCount)
	}
	records, err := a.ListRecords(domain.KindMeds)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 || records[0].Title != "وصفة فارغة" {
		t.Fatalf("records = %+v, want the parent record", records)
	}
}

func TestMergeClassifiedDocumentNonMedsKindAddsNoMedications(t *testing.T) {
	a := newTestApp(t)
	analysis := ai.Analysis{
		Category:    "زيارة طبيب",
		Title:       "مراجعة قلب",
		Medications: []ai.DetectedMedication{{NameAr: "كونكور"}},
	}
	result, err := a.MergeClassifiedDocument(analysis, "", "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Record.Kind != domain.KindVisit {
		t.Fatalf("kind = %s, want visits", result.Record.Kind)
	}
	if result.AddedCount != 0 || result.SkippedCount != 0 {
		t.Fatalf("added=%d skipped=%d, want 0/0", result.AddedCount, result.SkippedCount)
	}
	meds, _ := a.ListMedications(false)
	if len(meds) != 0 {
		t.Fatalf("got %d medications, want 0", len(meds))
	}
}

func TestMergeClassifiedDocumentFillsDefaults(t *testing.T) {
	a := newTestApp(t)
	result, err := a.MergeClassifiedDocument(ai.Analysis{}, domain.KindLab, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.Record.Title == "" {
		t.Fatal("title not defaulted")
	}
	if result.Record.Date == "" {
		t.Fatal("date not defaulted")
	}
	if !result.Record.Completed || !result.Record.AIAnalyzed {
		t.Fatalf("completed=%v aiAnalyzed=%v, want true/true", result.Record.Completed, result.Record.AIAnalyzed)
	}
}

func TestMergeClassifiedDocumentAttachesPayer(t *testing.T) {
	a := newTestApp(t)
	analysis := ai.Analysis{Category: "فحوصات مخبرية", Title: "تحليل دم", ActualCost: 25}
	result, err := a.MergeClassifiedDocument(analysis, "", "مصطفى")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(result.Record.Payments) != 1 {
		t.Fatalf("got %d payments, want 1", len(result.Record.Payments))
	}
	p := result.Record.Payments[0]
	if p.Payer != "مصطفى" || p.Amount != 25 {
		t.Fatalf("payment = %+v", p)
	}
}

func TestRecordManualEntryRequiresTitle(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.RecordManualEntry(RecordInput{Title: "  "}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("err = %v, want ErrTitleRequired", err)
	}
}

func TestSaveMedicationEntryRejectsDuplicate(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := a.SaveMedicationEntry(MedicationInput{NameAr: "  كونكور "}); !errors.Is(err, ErrDuplicateMedication) {
		t.Fatalf("err = %v, want ErrDuplicateMedication", err)
	}
}

func TestUpdateRecordEmptyPatchIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	record, err := a.RecordManualEntry(RecordInput{Kind: domain.KindVisit, Title: "مراجعة", Date: "2026-03-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := a.UpdateRecord(record.ID, RecordPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt != record.UpdatedAt {
		t.Fatal("empty patch changed updatedAt")
	}
	if updated.Title != record.Title || updated.Date != record.Date {
		t.Fatalf("empty patch changed fields: %+v", updated)
	}
}

func TestUpdateMedicationEmptyPatchIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	med, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور", Dosage: "5mg", Price: 7.5, Payer: "خليل"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := a.UpdateMedication(med.ID, MedicationPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UpdatedAt != med.UpdatedAt {
		t.Fatal("empty patch changed updatedAt")
	}
	if updated.NameAr != med.NameAr || updated.Dosage != med.Dosage || updated.Price != med.Price {
		t.Fatalf("empty patch changed fields: %+v", updated)
	}
	if len(updated.Payments) != len(med.Payments) {
		t.Fatalf("empty patch changed payments: %+v", updated.Payments)
	}
}

func TestUpdateRecordPayerPatchRewritesPrimaryPayment(t *testing.T) {
	a := newTestApp(t)
	record, err := a.RecordManualEntry(RecordInput{
		Kind: domain.KindVisit, Title: "مراجعة", ExpectedCost: 40, Payer: "خليل",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	secondary := domain.Payment{ID: "p2", Payer: "مصطفى", Amount: 10, Currency: "JOD"}
	record.Payments = append(record.Payments, secondary)
	if err := a.Store().SaveRecord(record); err != nil {
		t.Fatalf("save: %v", err)
	}

	cost := 55.0
	payer := "عبدالرحمن"
	updated, err := a.UpdateRecord(record.ID, RecordPatch{ActualCost: &cost, Payer: &payer})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Payments) != 2 {
		t.Fatalf("got %d payments, want 2", len(updated.Payments))
	}
	if updated.Payments[0].Payer != "عبدالرحمن" || updated.Payments[0].Amount != 55 {
		t.Fatalf("primary payment = %+v", updated.Payments[0])
	}
	if updated.Payments[0].ID != record.Payments[0].ID {
		t.Fatal("primary payment id changed")
	}
	if updated.Payments[1] != secondary {
		t.Fatalf("secondary payment changed: %+v", updated.Payments[1])
	}
}

func TestToggleMedicationStatusRequiresStopReason(t *testing.T) {
	a := newTestApp(t)
	med, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := a.ToggleMedicationStatus(med.ID, "  "); !errors.Is(err, ErrStopReasonRequired) {
		t.Fatalf("err = %v, want ErrStopReasonRequired", err)
	}
	got, err := a.ListMedications(true)
	if err != nil || len(got) != 1 {
		t.Fatalf("medication state changed after rejected stop: %v %d", err, len(got))
	}

	stopped, err := a.ToggleMedicationStatus(med.ID, "أعراض جانبية")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != domain.MedicationStopped || stopped.StopReason != "أعراض جانبية" {
		t.Fatalf("stopped = %+v", stopped)
	}

	active, err := a.ToggleMedicationStatus(med.ID, "")
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if active.Status != domain.MedicationActive || active.StopReason != "" {
		t.Fatalf("reactivated = %+v", active)
	}
}

func TestAggregateCostsByPayer(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.RecordManualEntry(RecordInput{Kind: domain.KindVisit, Title: "زيارة", ExpectedCost: 10, Payer: "خليل"}); err != nil {
		t.Fatalf("record 1: %v", err)
	}
	if _, err := a.RecordManualEntry(RecordInput{Kind: domain.KindLab, Title: "تحليل", ExpectedCost: 20, Payer: "خليل"}); err != nil {
		t.Fatalf("record 2: %v", err)
	}
	if _, err := a.RecordManualEntry(RecordInput{Kind: domain.KindVisit, Title: "طوارئ", ExpectedCost: 30}); err != nil {
		t.Fatalf("record 3: %v", err)
	}

	report, err := a.AggregateCostsByPayer()
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if report.Total != 60 {
		t.Fatalf("total = %v, want 60", report.Total)
	}
	byPayer := map[string]PayerBucket{}
	for _, b := range report.Payers {
		byPayer[b.Payer] = b
	}
	if got := byPayer["خليل"]; got.Total != 30 || len(got.Items) != 2 {
		t.Fatalf("خليل bucket = %+v", got)
	}
	if got := byPayer[UnassignedPayer]; got.Total != 30 || len(got.Items) != 1 {
		t.Fatalf("unassigned bucket = %+v", got)
	}
	if last := report.Payers[len(report.Payers)-1]; last.Payer != UnassignedPayer {
		t.Fatalf("last bucket = %s, want unassigned", last.Payer)
	}
}

func TestDashboardCounts(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.RecordManualEntry(RecordInput{Kind: domain.KindVisit, Title: "قادمة", Date: "2026-12-01"}); err != nil {
		t.Fatalf("visit: %v", err)
	}
	if _, err := a.RecordManualEntry(RecordInput{Kind: domain.KindLab, Title: "تحليل", ExpectedCost: 15, Completed: true}); err != nil {
		t.Fatalf("lab: %v", err)
	}
	if _, err := a.SaveMedicationEntry(MedicationInput{NameAr: "كونكور", Price: 5}); err != nil {
		t.Fatalf("med: %v", err)
	}

	summary, err := a.Dashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.RecordCounts["visits"] != 1 || summary.RecordCounts["labs"] != 1 {
		t.Fatalf("counts = %v", summary.RecordCounts)
	}
	if summary.ActiveMedications != 1 {
		t.Fatalf("active meds = %d, want 1", summary.ActiveMedications)
	}
	if summary.TotalCost != 20 {
		t.Fatalf("total = %v, want 20", summary.TotalCost)
	}
	if len(summary.UpcomingVisits) != 1 || summary.UpcomingVisits[0].Title != "قادمة" {
		t.Fatalf("upcoming = %+v", summary.UpcomingVisits)
	}
}

func TestDeleteRecordNotFound(t *testing.T) {
	a := newTestApp(t)
	if err := a.DeleteRecord("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
