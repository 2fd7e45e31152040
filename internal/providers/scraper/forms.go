package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MissingFieldsError lists requested element ids absent from the page.
type MissingFieldsError struct {
	IDs []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("fields not found: %s", strings.Join(e.IDs, ", "))
}

// Field is one named control of a form.
type Field struct {
	Name  string
	ID    string
	Type  string
	Value string
}

// Form is a parsed <form> element.
type Form struct {
	Action  string
	Method  string
	Enctype string
	Fields  []Field
}

// Values returns name → value for every named field; later duplicates win.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		if field.Name == "" {
			continue
		}
		out[field.Name] = field.Value
	}
	return out
}

// Hidden returns the hidden fields only.
func (f *Form) Hidden() map[string]string {
	out := make(map[string]string)
	for _, field := range f.Fields {
		if field.Name != "" && field.Type == "hidden" {
			out[field.Name] = field.Value
		}
	}
	return out
}

// FindForm returns the first form matching selector ("form" when empty).
func FindForm(data []byte, selector string) (*Form, error) {
	doc, err := LoadHTML(data)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	if selector == "" {
		selector = "form"
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("form not found: %s", selector)
	}

	form := &Form{
		Action:  sel.AttrOr("action", ""),
		Method:  strings.ToUpper(sel.AttrOr("method", "GET")),
		Enctype: sel.AttrOr("enctype", "application/x-www-form-urlencoded"),
	}

	sel.Find("input, textarea, select").Each(func(i int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		id := s.AttrOr("id", "")
		if name == "" && id == "" {
			return
		}

		field := Field{
			Name:  name,
			ID:    id,
			Type:  strings.ToLower(s.AttrOr("type", "text")),
			Value: s.AttrOr("value", ""),
		}
		switch {
		case s.Is("textarea"):
			field.Type = "textarea"
			field.Value = s.Text()
		case s.Is("select"):
			field.Type = "select"
			field.Value = s.Find("option[selected]").First().AttrOr("value", "")
		}
		form.Fields = append(form.Fields, field)
	})

	return form, nil
}

// HiddenValues reads the value attribute of the input with each given id.
// An id with no element is reported in *MissingFieldsError alongside the
// values that were found; an element with an empty value is returned as "".
func HiddenValues(data []byte, ids []string) (map[string]string, error) {
	doc, err := LoadHTML(data)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	values := make(map[string]string, len(ids))
	var missing []string
	for _, id := range ids {
		sel := doc.Find(fmt.Sprintf("input[id=%q]", id)).First()
		if sel.Length() == 0 {
			missing = append(missing, id)
			continue
		}
		values[id] = sel.AttrOr("value", "")
	}

	if len(missing) > 0 {
		return values, &MissingFieldsError{IDs: missing}
	}
	return values, nil
}

// AllHiddenValues returns every hidden input on the page keyed by id, or by
// name when the id is absent.
func AllHiddenValues(data []byte) (map[string]string, error) {
	doc, err := LoadHTML(data)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	values := make(map[string]string)
	doc.Find(`input[type="hidden"]`).Each(func(i int, s *goquery.Selection) {
		key := s.AttrOr("id", "")
		if key == "" {
			key = s.AttrOr("name", "")
		}
		if key != "" {
			values[key] = s.AttrOr("value", "")
		}
	})
	return values, nil
}
