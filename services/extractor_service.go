package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/xuri/excelize/v2"

	"github/itish2003/docbot/logging"
)

// ConfigurePDFLicense registers the UniDoc metered key. Without it PDF
// extraction fails while every other format keeps working.
func ConfigurePDFLicense(key string) {
	if key == "" {
		logging.For("extractor").Warn("UNIDOC_LICENSE_KEY not set, PDF files cannot be ingested")
		return
	}
	if err := license.SetMeteredKey(key); err != nil {
		logging.For("extractor").WithError(err).Error("failed to set UniDoc license key, PDF processing will fail")
	}
}

// ExtractTextFromFile reads a file and returns its text content, picking a
// reader by extension. Unknown extensions are read as UTF-8 text.
func ExtractTextFromFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".pdf":
		return extractTextFromPDF(path)
	case ".html", ".htm", ".xhtml":
		return extractTextFromHTML(path)
	case ".csv":
		return extractTextFromCSV(path)
	case ".xlsx", ".xlsm":
		return extractTextFromXLSX(path)
	default:
		return extractPlainText(path)
	}
}

func extractPlainText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupportedContent, filepath.Base(path))
	}
	return string(content), nil
}

// extractTextFromPDF uses UniPDF to get all text from a PDF file.
func extractTextFromPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}
	// Page errors below are blamed on the file, so a missing license has to
	// be reported before reaching them.
	if key := license.GetLicenseKey(); key == nil || !key.IsLicensed() {
		return "", errors.New("pdf extraction unavailable: UniDoc license key not configured")
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		text, err := extractPDFPage(pdfReader, i)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrUnsupportedContent, i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}

func extractPDFPage(r *model.PdfReader, num int) (string, error) {
	page, err := r.GetPage(num)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}

// extractTextFromHTML keeps the title, headings, paragraphs and list items.
func extractTextFromHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	sel.Find("h1, h2, h3, h4, p, li, td, pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		parts = append(parts, strings.TrimSpace(sel.Text()))
	}
	return strings.Join(parts, "\n"), nil
}

// extractTextFromCSV renders each record as a comma separated line.
func extractTextFromCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
		}
		sb.WriteString(strings.Join(record, ", "))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractTextFromXLSX renders every sheet row by row.
func extractTextFromXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			continue
		}
		sb.WriteString(sheet)
		sb.WriteString("\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, ", "))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
