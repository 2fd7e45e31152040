package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits HTML input to 10MB to prevent memory exhaustion
const MaxHTMLSize = 10 * 1024 * 1024

var ErrEmptyHTML = errors.New("html content required")

// ValidateHTML checks HTML size and returns error if too large
func ValidateHTML(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyHTML
	}
	if len(data) > MaxHTMLSize {
		return fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return nil
}

// DetectCharset detects and returns charset from HTML bytes
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// LoadHTML loads HTML with automatic charset detection
func LoadHTML(data []byte) (*goquery.Document, error) {
	if err := ValidateHTML(data); err != nil {
		return nil, err
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(data), DetectCharset(data))
	if err != nil {
		return goquery.NewDocumentFromReader(bytes.NewReader(data))
	}
	return goquery.NewDocumentFromReader(utf8Reader)
}

// LoadHTMLNode loads HTML into xpath-compatible node
func LoadHTMLNode(data []byte) (*html.Node, error) {
	if err := ValidateHTML(data); err != nil {
		return nil, err
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(data), DetectCharset(data))
	if err != nil {
		return htmlquery.Parse(bytes.NewReader(data))
	}
	return htmlquery.Parse(utf8Reader)
}

// NormalizeWhitespace collapses multiple spaces into one
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateText truncates text to max runes with ellipsis
func TruncateText(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
