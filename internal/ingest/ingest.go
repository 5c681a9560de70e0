// Package ingest converts user-selected files into payloads the AI
// classifier accepts: flattened CSV text for spreadsheets, extracted text
// for PDF and HTML reports, and base64 bytes for everything else.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"amanhealth/pkg/ai"
)

// FallbackMIME is the canonical fallback when neither the reported type nor
// the extension identifies the file.
const FallbackMIME = "application/octet-stream"

// File is one user-selected file.
type File struct {
	Name string
	MIME string // as reported by the uploader, may be empty
	Data []byte
}

var extensionMIME = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

var spreadsheetExtensions = map[string]struct{}{
	".xlsx": {},
	".xlsm": {},
	".xltx": {},
}

// ResolveMIME picks the MIME type for a file: the reported type wins when
// non-empty, then the extension map, then FallbackMIME.
func ResolveMIME(name, reported string) string {
	if strings.TrimSpace(reported) != "" {
		return reported
	}
	if mime, ok := extensionMIME[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return FallbackMIME
}

// ErrLegacySpreadsheet rejects the old OLE-based .xls container, which the
// xlsx parser cannot open.
var ErrLegacySpreadsheet = errors.New("legacy .xls files are not supported, save the file as .xlsx and retry")

// Encode converts a file into a classification payload. Spreadsheets become
// one text blob with every sheet serialized as CSV under a sheet-name
// header; anything else is carried as base64 with its MIME type.
func Encode(f File) (ai.DocumentPayload, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if ext == ".xls" {
		return ai.DocumentPayload{}, fmt.Errorf("%s: %w", f.Name, ErrLegacySpreadsheet)
	}
	if _, ok := spreadsheetExtensions[ext]; ok {
		text, err := flattenSpreadsheet(f.Data)
		if err != nil {
			return ai.DocumentPayload{}, fmt.Errorf("parse spreadsheet %s: %w", f.Name, err)
		}
		return ai.DocumentPayload{Text: text}, nil
	}
	if ext == ".csv" || ext == ".txt" {
		return ai.DocumentPayload{Text: string(f.Data)}, nil
	}
	return ai.DocumentPayload{
		Base64: base64.StdEncoding.EncodeToString(f.Data),
		MIME:   ResolveMIME(f.Name, f.MIME),
	}, nil
}

// EncodeAll encodes many files, fanning the purely local work out with a
// bounded group. Result order matches input order; the AI call that follows
// stays a single combined request.
func EncodeAll(ctx context.Context, files []File, concurrency int) ([]ai.DocumentPayload, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	payloads := make([]ai.DocumentPayload, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, f := range files {
		g.Go(func() error {
			payload, err := Encode(f)
			if err != nil {
				return err
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// ExtractText pulls plain text out of PDF or HTML files so callers can run
// text-mode classification; ok is false when the format has no text path.
func ExtractText(f File) (string, bool, error) {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		text, err := pdfText(f.Data)
		if err != nil {
			return "", true, fmt.Errorf("extract pdf text %s: %w", f.Name, err)
		}
		return text, true, nil
	case ".html", ".htm":
		doc, err := html.Parse(bytes.NewReader(f.Data))
		if err != nil {
			return "", true, fmt.Errorf("parse html %s: %w", f.Name, err)
		}
		return normalizeText(htmlText(doc)), true, nil
	default:
		return "", false, nil
	}
}

func flattenSpreadsheet(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer book.Close()
	var sb strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		sb.WriteString("### ")
		sb.WriteString(sheet)
		sb.WriteString("\n")
		w := csv.NewWriter(&sb)
		for _, row := range rows {
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("serialize sheet %s: %w", sheet, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("serialize sheet %s: %w", sheet, err)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip problematic pages instead of failing entirely
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	text := normalizeText(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return text, nil
}

func htmlText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(htmlText(child))
		sb.WriteString(" ")
	}
	return sb.String()
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
