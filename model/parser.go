package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"docufi/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Page is one page of extracted document text. Tables carries the table
// regions the converter detected on the page, already rendered as text;
// they must never be split by the chunker.
type Page struct {
	Number int      `json:"number"`
	Text   string   `json:"text"`
	Tables []string `json:"tables,omitempty"`
}

// ParseResult is the converter output for a whole document.
type ParseResult struct {
	Pages     []Page `json:"pages"`
	PageCount int    `json:"page_count"`
	WordCount int    `json:"word_count"`
}

// DocumentParser extracts page-structured text from the raw upload.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, filename string) (*ParseResult, error)
}

// ConvertClient talks to a docling-style converter service over HTTP.
type ConvertClient struct {
	url    string
	client *http.Client
}

func NewConvertClient(timeout time.Duration) *ConvertClient {
	url := os.Getenv("CONVERT_URL")
	if url == "" {
		url = "http://localhost:5001/v1/convert/file"
	}
	return &ConvertClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ConvertClient) Parse(ctx context.Context, data []byte, filename string) (*ParseResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return nil, types.ParseError{Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, types.ParseError{Err: err}
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, &buf)
	if err != nil {
		return nil, types.ParseError{Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.ParseError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.ParseError{Err: fmt.Errorf("converter returned status %d: %s", resp.StatusCode, body)}
	}

	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.ParseError{Err: fmt.Errorf("decode converter response: %w", err)}
	}

	if result.PageCount == 0 {
		result.PageCount = len(result.Pages)
	}
	if result.WordCount == 0 {
		for _, p := range result.Pages {
			result.WordCount += countWords(p.Text)
		}
	}
	return &result, nil
}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// ValidatePDF checks that data is a readable PDF and returns its page
// count without invoking the converter.
func ValidatePDF(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), api.LoadConfiguration())
	if err != nil {
		return 0, fmt.Errorf("not a valid PDF: %w", err)
	}
	return count, nil
}
