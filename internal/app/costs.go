package app

import (
	"sort"

	"amanhealth/pkg/domain"
)

// CostItem is one line in a payer's contribution list.
type CostItem struct {
	RecordID string  `json:"recordId"`
	Title    string  `json:"title"`
	Kind     string  `json:"kind"`
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
}

// PayerBucket totals one payer's contributions.
type PayerBucket struct {
	Payer string     `json:"payer"`
	Total float64    `json:"total"`
	Items []CostItem `json:"items"`
}

// CostReport is the full per-payer cost split.
type CostReport struct {
	Currency string        `json:"currency"`
	Total    float64       `json:"total"`
	Payers   []PayerBucket `json:"payers"`
}

// AggregateCostsByPayer attributes each record's and medication's cost to the
// payer of its first payment. Entries without payments land in the unassigned
// bucket. Configured payers appear first, then any ad hoc payers by name, with
// the unassigned bucket last.
func (a *App) AggregateCostsByPayer() (CostReport, error) {
	records, err := a.store.ListRecords()
	if err != nil {
		return CostReport{}, err
	}
	meds, err := a.store.ListMedications()
	if err != nil {
		return CostReport{}, err
	}

	buckets := map[string]*PayerBucket{}
	bucket := func(payer string) *PayerBucket {
		if payer == "" {
			payer = UnassignedPayer
		}
		if b, ok := buckets[payer]; ok {
			return b
		}
		b := &PayerBucket{Payer: payer, Items: []CostItem{}}
		buckets[payer] = b
		return b
	}

	report := CostReport{Currency: a.currency, Payers: []PayerBucket{}}
	for _, record := range records {
		cost := record.Cost()
		if cost <= 0 {
			continue
		}
		b := bucket(primaryPayer(record.Payments))
		b.Total += cost
		b.Items = append(b.Items, CostItem{
			RecordID: record.ID,
			Title:    record.Title,
			Kind:     string(record.Kind),
			Date:     record.Date,
			Amount:   cost,
		})
		report.Total += cost
	}
	for _, med := range meds {
		if med.Price <= 0 {
			continue
		}
		payer := primaryPayer(med.Payments)
		if payer == "" {
			payer = med.PaidBy
		}
		b := bucket(payer)
		b.Total += med.Price
		b.Items = append(b.Items, CostItem{
			RecordID: med.ID,
			Title:    med.NameAr,
			Kind:     string(domain.KindMeds),
			Date:     med.CreatedAt.UTC().Format("2006-01-02"),
			Amount:   med.Price,
		})
		report.Total += med.Price
	}

	seen := map[string]bool{}
	appendBucket := func(payer string) {
		if b, ok := buckets[payer]; ok && !seen[payer] {
			report.Payers = append(report.Payers, *b)
			seen[payer] = true
		}
	}
	for _, payer := range a.payers {
		appendBucket(payer)
	}
	extra := make([]string, 0, len(buckets))
	for payer := range buckets {
		if !seen[payer] && payer != UnassignedPayer {
			extra = append(extra, payer)
		}
	}
	sort.Strings(extra)
	for _, payer := range extra {
		appendBucket(payer)
	}
	appendBucket(UnassignedPayer)
	return report, nil
}

// DashboardSummary is the landing-page overview.
type DashboardSummary struct {
	RecordCounts      map[string]int         `json:"recordCounts"`
	ActiveMedications int                    `json:"activeMedications"`
	TotalCost         float64                `json:"totalCost"`
	Currency          string                 `json:"currency"`
	UpcomingVisits    []domain.MedicalRecord `json:"upcomingVisits"`
}

// Dashboard computes the overview counters and the list of not-yet-completed
// visits ordered soonest first.
func (a *App) Dashboard() (DashboardSummary, error) {
	records, err := a.store.ListRecords()
	if err != nil {
		return DashboardSummary{}, err
	}
	meds, err := a.store.ListMedications()
	if err != nil {
		return DashboardSummary{}, err
	}
	summary := DashboardSummary{
		RecordCounts:   map[string]int{},
		Currency:       a.currency,
		UpcomingVisits: []domain.MedicalRecord{},
	}
	for _, record := range records {
		summary.RecordCounts[string(record.Kind)]++
		summary.TotalCost += record.Cost()
		if record.Kind == domain.KindVisit && !record.Completed {
			summary.UpcomingVisits = append(summary.UpcomingVisits, record)
		}
	}
	for _, med := range meds {
		if med.Status == domain.MedicationActive {
			summary.ActiveMedications++
		}
		summary.TotalCost += med.Price
	}
	sort.SliceStable(summary.UpcomingVisits, func(i, j int) bool {
		return summary.UpcomingVisits[i].Date < summary.UpcomingVisits[j].Date
	})
	return summary, nil
}
