package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestClassifyDocument(t *testing.T) {
	analysis := Analysis{
		Category:   "meds",
		Title:      "وصفة طبية",
		Date:       "2026-02-10",
		Place:      "صيدلية الشفاء",
		Summary:    "وصفة تحتوي على دوائين",
		ActualCost: 12.5,
		Medications: []DetectedMedication{
			{NameAr: "كونكور", Dosage: "5mg", Purpose: "ضغط", CategoryAr: "قلب"},
		},
	}
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		text, _ := json.Marshal(analysis)
		json.NewEncoder(w).Encode(textResponse(string(text)))
	})
	classifier, err := NewClassifier(client, "gemini-2.5-flash", 0)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	got, err := classifier.ClassifyDocument(context.Background(), DocumentPayload{Text: "وصفة"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Title != analysis.Title || got.ActualCost != 12.5 {
		t.Fatalf("analysis = %+v", got)
	}
	kind, ok := got.Kind()
	if !ok || string(kind) != "meds" {
		t.Fatalf("kind = %q ok=%v", kind, ok)
	}
	if len(got.Medications) != 1 || got.Medications[0].NameAr != "كونكور" {
		t.Fatalf("medications = %+v", got.Medications)
	}
}

func TestClassifierDefaultsThinkingBudget(t *testing.T) {
	var req generateRequest
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(textResponse(`{"category":"labs","title":"تحليل"}`))
	})
	classifier, err := NewClassifier(client, "gemini-2.5-flash", 0)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	if _, err := classifier.ClassifyDocument(context.Background(), DocumentPayload{Text: "تقرير"}); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if req.GenerationConfig == nil || req.GenerationConfig.ThinkingConfig == nil {
		t.Fatalf("generationConfig = %+v, want thinkingConfig set", req.GenerationConfig)
	}
	if got := req.GenerationConfig.ThinkingConfig.ThinkingBudget; got != DocumentThinkingBudget {
		t.Fatalf("thinkingBudget = %d, want %d", got, DocumentThinkingBudget)
	}
}

func TestClassifyDocumentUnknownCategory(t *testing.T) {
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(textResponse(`{"category":"groceries","title":"x"}`))
	})
	classifier, _ := NewClassifier(client, "gemini-2.5-flash", 0)

	_, err := classifier.ClassifyDocument(context.Background(), DocumentPayload{Text: "x"})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("err = %v, want SchemaError", err)
	}
}

func TestClassifyBulkSingleRequest(t *testing.T) {
	requests := 0
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(textResponse(`[{"category":"labs","title":"تحليل"},{"category":"visits","title":"زيارة"}]`))
	})
	classifier, _ := NewClassifier(client, "gemini-2.5-flash", 0)

	payloads := []DocumentPayload{
		{Text: "تقرير مختبر"},
		{Base64: "aGVsbG8=", MIME: "application/pdf"},
	}
	analyses, err := classifier.ClassifyBulk(context.Background(), payloads)
	if err != nil {
		t.Fatalf("classify bulk: %v", err)
	}
	if len(analyses) != 2 {
		t.Fatalf("got %d analyses, want 2", len(analyses))
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 combined call", requests)
	}
}

func TestClassifyBulkEmptyInput(t *testing.T) {
	client := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})
	classifier, _ := NewClassifier(client, "gemini-2.5-flash", 0)
	analyses, err := classifier.ClassifyBulk(context.Background(), nil)
	if err != nil || analyses != nil {
		t.Fatalf("got %v, %v", analyses, err)
	}
}
