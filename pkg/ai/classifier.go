package ai

import (
	"context"
	"fmt"

	"amanhealth/pkg/domain"
)

const classifyInstruction = `أنت خبير طبي متخصص. حلل هذا المستند بدقة.
إذا كان تقريراً مخبرياً: استخرج النتائج والقيم غير الطبيعية وقارنها بالمرجع.
إذا كان دواءً: استخرج الاسم العلمي والتجاري والجرعة والغرض.
صنف المستند (labs, meds, visits, hospital, er, costs).
يجب أن تكون الإجابة بتنسيق JSON حصراً.`

const classifyBulkInstruction = `قم بفحص هذه الملفات الطبية جميعاً. صنف كل ملف (دواء، مختبر، زيارة، فاتورة) واستخرج البيانات الأساسية لكل منها. أرجع قائمة JSON.`

// DocumentPayload is an encoded file ready for classification: either plain
// text or base64 bytes with a MIME type.
type DocumentPayload struct {
	Text   string
	Base64 string
	MIME   string
}

func (p DocumentPayload) part() Part {
	if p.Text != "" {
		return TextPart(p.Text)
	}
	return FilePart(p.Base64, p.MIME)
}

// DetectedMedication is one drug the model found in a document.
type DetectedMedication struct {
	NameAr     string `json:"nameAr"`
	Dosage     string `json:"dosage"`
	Purpose    string `json:"purpose"`
	CategoryAr string `json:"categoryAr"`
}

// Analysis is the structured classification of one document.
type Analysis struct {
	Category    string               `json:"category"`
	Title       string               `json:"title"`
	Date        string               `json:"date"`
	Place       string               `json:"place"`
	Summary     string               `json:"summary"`
	ActualCost  float64              `json:"actualCost"`
	Advice      string               `json:"advice"`
	Medications []DetectedMedication `json:"medications"`
}

// Kind maps the model's category string onto a record kind, or false when it
// names no known kind.
func (a Analysis) Kind() (domain.RecordKind, bool) {
	kind := domain.RecordKind(a.Category)
	if domain.IsValidKind(kind) {
		return kind, true
	}
	return "", false
}

// DocumentThinkingBudget is the reasoning budget for classification calls.
// Medical documents are dense and the category decision drives everything
// downstream, so classification always thinks at full budget.
const DocumentThinkingBudget = 32768

// Classifier drives document classification against the AI endpoint.
type Classifier struct {
	client         *GeminiClient
	model          string
	thinkingBudget int
}

// NewClassifier wires a classifier for the given model. A non-positive
// thinkingBudget falls back to DocumentThinkingBudget.
func NewClassifier(client *GeminiClient, model string, thinkingBudget int) (*Classifier, error) {
	if client == nil {
		return nil, fmt.Errorf("gemini client required")
	}
	if model == "" {
		return nil, fmt.Errorf("classification model required")
	}
	if thinkingBudget <= 0 {
		thinkingBudget = DocumentThinkingBudget
	}
	return &Classifier{client: client, model: model, thinkingBudget: thinkingBudget}, nil
}

// ClassifyDocument sends one document and decodes the structured result.
// Single-shot: no retry. A category outside the known kinds is a *SchemaError.
func (c *Classifier) ClassifyDocument(ctx context.Context, payload DocumentPayload) (Analysis, error) {
	parts := []Part{payload.part(), TextPart(classifyInstruction)}
	var analysis Analysis
	if err := c.client.GenerateJSON(ctx, c.model, parts, analysisSchema(), c.thinkingBudget, &analysis); err != nil {
		return Analysis{}, err
	}
	if analysis.Category != "" {
		if _, ok := analysis.Kind(); !ok {
			return Analysis{}, &SchemaError{Reason: fmt.Sprintf("unknown category %q", analysis.Category)}
		}
	}
	return analysis, nil
}

// ClassifyBulk sends every payload in a single combined request and returns
// one classification per file. Files are not classified concurrently.
func (c *Classifier) ClassifyBulk(ctx context.Context, payloads []DocumentPayload) ([]Analysis, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	parts := make([]Part, 0, len(payloads)+1)
	for _, payload := range payloads {
		parts = append(parts, payload.part())
	}
	parts = append(parts, TextPart(classifyBulkInstruction))
	var analyses []Analysis
	schema := &Schema{Type: TypeArray, Items: analysisSchema()}
	if err := c.client.GenerateJSON(ctx, c.model, parts, schema, c.thinkingBudget, &analyses); err != nil {
		return nil, err
	}
	for _, analysis := range analyses {
		if analysis.Category == "" {
			continue
		}
		if _, ok := analysis.Kind(); !ok {
			return nil, &SchemaError{Reason: fmt.Sprintf("unknown category %q", analysis.Category)}
		}
	}
	return analyses, nil
}

func analysisSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"category":   {Type: TypeString, Description: "labs, meds, visits, hospital, er, costs"},
			"title":      {Type: TypeString},
			"date":       {Type: TypeString},
			"place":      {Type: TypeString},
			"summary":    {Type: TypeString, Description: "Detailed summary of findings"},
			"actualCost": {Type: TypeNumber},
			"advice":     {Type: TypeString},
			"medications": {
				Type: TypeArray,
				Items: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"nameAr":     {Type: TypeString},
						"dosage":     {Type: TypeString},
						"purpose":    {Type: TypeString},
						"categoryAr": {Type: TypeString},
					},
				},
			},
		},
	}
}
