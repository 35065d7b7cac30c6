package chunker

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/ragserve/core/internal/domain/rag"
)

// InferContentType maps a filename suffix to a ContentType, case
// insensitively, per spec.md §4.1.
func InferContentType(filename string) (rag.ContentType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return rag.ContentTypePDF, nil
	case ".docx":
		return rag.ContentTypeDOCX, nil
	case ".htm", ".html":
		return rag.ContentTypeHTML, nil
	case ".txt", "":
		return rag.ContentTypeTXT, nil
	default:
		return "", fmt.Errorf("unsupported file extension for %q", filename)
	}
}

// extractText turns the raw bytes of a document into a plain-text string,
// ready for chunking. Unicode normalization and whitespace collapsing are
// applied by the caller (normalizeText), not here.
func extractText(data []byte, contentType rag.ContentType) (string, error) {
	switch contentType {
	case rag.ContentTypePDF:
		return extractPDF(data)
	case rag.ContentTypeDOCX:
		return extractDOCX(data)
	case rag.ContentTypeHTML:
		return extractHTML(data)
	case rag.ContentTypeTXT:
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDOCX walks the OOXML zip container for word/document.xml and
// concatenates every <w:t> run, separating paragraphs with newlines. DOCX
// has no dedicated reader in the retrieval pack (excelize only reads
// spreadsheets), so this walks stdlib archive/zip + encoding/xml directly
// against the WordprocessingML schema.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func extractHTML(data []byte) (string, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	skip := map[string]bool{"script": true, "style": true}
	skipping := ""
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return sb.String(), nil
			}
			return "", fmt.Errorf("tokenize html: %w", tokenizer.Err())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skip[string(name)] {
				skipping = string(name)
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == skipping {
				skipping = ""
			}
		case html.TextToken:
			if skipping == "" {
				sb.Write(tokenizer.Text())
				sb.WriteString(" ")
			}
		}
	}
}

// normalizeText drops control characters, collapses every whitespace run
// (newlines included) to a single space, and trims the result. It applies
// no Unicode normalization form (NFC/NFKC): composed and decomposed
// spellings of the same character stay distinct.
func normalizeText(s string) string {
	var sb strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			sb.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		sb.WriteRune(r)
	}
	return strings.TrimSpace(sb.String())
}
