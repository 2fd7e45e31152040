package scraper

import (
	"errors"
	"fmt"

	"github.com/antchfx/htmlquery"
)

var ErrNoMatch = errors.New("xpath matched no element")

// NonceXPath selects the login form's anti-replay field.
const NonceXPath = `//form//input[@name="nonce"]`

// XPathAttr returns attribute attr of the first node matching expr.
func XPathAttr(data []byte, expr, attr string) (string, error) {
	doc, err := LoadHTMLNode(data)
	if err != nil {
		return "", fmt.Errorf("parse failed: %w", err)
	}

	node, err := htmlquery.Query(doc, expr)
	if err != nil {
		return "", fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, expr)
	}
	return htmlquery.SelectAttr(node, attr), nil
}

// XPathText returns the trimmed inner text of the first node matching expr.
func XPathText(data []byte, expr string) (string, error) {
	doc, err := LoadHTMLNode(data)
	if err != nil {
		return "", fmt.Errorf("parse failed: %w", err)
	}

	node, err := htmlquery.Query(doc, expr)
	if err != nil {
		return "", fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return "", fmt.Errorf("%w: %s", ErrNoMatch, expr)
	}
	return NormalizeWhitespace(htmlquery.InnerText(node)), nil
}

// Nonce extracts the login nonce, or "" when the form has none.
func Nonce(data []byte) string {
	v, err := XPathAttr(data, NonceXPath, "value")
	if err != nil {
		return ""
	}
	return v
}
