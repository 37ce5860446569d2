package htmlutil

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// MalformedPageError reports a structurally required element missing
// from a fetched page.
type MalformedPageError struct {
	Page    string
	Missing string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %s: missing %s", e.Page, e.Missing)
}

type Button struct {
	Name  string
	Value string
}

// Form is a scraped <form>, seeded with the defaults a browser would
// submit: hidden/text/password values, checked boxes, selected options
// and textarea bodies. Buttons and file inputs are collected separately
// and only included once chosen at submit time.
type Form struct {
	Action  string
	Method  string
	Values  url.Values
	Buttons []Button

	names          []string
	checkboxValues map[string]string
	fileFields     []string
	pageUrl        string
}

func pageUrl(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}

// FindForm locates the first <form> whose action attribute matches the
// given pattern.
func FindForm(doc *goquery.Document, action *regexp.Regexp) (*Form, error) {
	var found *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if action.MatchString(s.AttrOr("action", "")) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return nil, &MalformedPageError{
			Page:    pageUrl(doc),
			Missing: fmt.Sprintf("form with action matching %q", action),
		}
	}
	return parseForm(doc, found), nil
}

func parseForm(doc *goquery.Document, sel *goquery.Selection) *Form {
	f := &Form{
		Action:         Resolve(doc, sel.AttrOr("action", "")),
		Method:         strings.ToUpper(sel.AttrOr("method", "GET")),
		Values:         url.Values{},
		checkboxValues: map[string]string{},
		pageUrl:        pageUrl(doc),
	}

	sel.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}

		switch goquery.NodeName(s) {
		case "input":
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "submit", "image":
				f.Buttons = append(f.Buttons, Button{Name: name, Value: s.AttrOr("value", "")})
			case "button", "reset":
			case "file":
				f.fileFields = append(f.fileFields, name)
			case "checkbox", "radio":
				f.names = append(f.names, name)
				value := s.AttrOr("value", "on")
				f.checkboxValues[name] = value
				if _, checked := s.Attr("checked"); checked {
					f.Values.Add(name, value)
				}
			default:
				f.names = append(f.names, name)
				f.Values.Add(name, s.AttrOr("value", ""))
			}
		case "select":
			f.names = append(f.names, name)
			option := s.Find("option[selected]").First()
			if option.Length() == 0 {
				option = s.Find("option").First()
			}
			if option.Length() > 0 {
				f.Values.Add(name, option.AttrOr("value", option.Text()))
			}
		case "textarea":
			f.names = append(f.names, name)
			f.Values.Add(name, s.Text())
		case "button":
			if strings.ToLower(s.AttrOr("type", "submit")) == "submit" {
				f.Buttons = append(f.Buttons, Button{Name: name, Value: s.AttrOr("value", "")})
			}
		}
	})

	return f
}

// SetField sets the first field whose name matches the pattern.
func (f *Form) SetField(name *regexp.Regexp, value string) error {
	for _, key := range f.names {
		if name.MatchString(key) {
			f.Values.Set(key, value)
			return nil
		}
	}
	return &MalformedPageError{
		Page:    f.pageUrl,
		Missing: fmt.Sprintf("form field matching %q", name),
	}
}

// SetAll sets every field whose name matches the pattern. Some portal
// forms carry a raw and a rendered variant of the same field that must
// stay in sync.
func (f *Form) SetAll(name *regexp.Regexp, value string) error {
	matched := false
	for _, key := range f.names {
		if name.MatchString(key) {
			f.Values.Set(key, value)
			matched = true
		}
	}
	if !matched {
		return &MalformedPageError{
			Page:    f.pageUrl,
			Missing: fmt.Sprintf("form field matching %q", name),
		}
	}
	return nil
}

// Check ticks the first checkbox whose name matches the pattern.
func (f *Form) Check(name *regexp.Regexp) error {
	for _, key := range f.names {
		if !name.MatchString(key) {
			continue
		}
		if value, ok := f.checkboxValues[key]; ok {
			f.Values.Set(key, value)
			return nil
		}
	}
	return &MalformedPageError{
		Page:    f.pageUrl,
		Missing: fmt.Sprintf("checkbox matching %q", name),
	}
}

// button picks the submit button to include in the payload. A nil
// pattern selects the form's first button; a form without buttons still
// submits, carrying no button pair.
func (f *Form) button(pattern *regexp.Regexp) (Button, error) {
	if pattern == nil {
		if len(f.Buttons) == 0 {
			return Button{}, nil
		}
		return f.Buttons[0], nil
	}
	for _, b := range f.Buttons {
		if pattern.MatchString(b.Name) {
			return b, nil
		}
	}
	return Button{}, &MalformedPageError{
		Page:    f.pageUrl,
		Missing: fmt.Sprintf("form button matching %q", pattern),
	}
}

func (f *Form) payload(button *regexp.Regexp) (url.Values, error) {
	btn, err := f.button(button)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	for key, vals := range f.Values {
		values[key] = append([]string(nil), vals...)
	}
	if btn.Name != "" {
		values.Set(btn.Name, btn.Value)
	}
	return values, nil
}

// Submit replays the form through the client, urlencoded, using the
// form's own method and resolved action.
func (f *Form) Submit(ctx context.Context, client *resty.Client, button *regexp.Regexp) (*resty.Response, error) {
	values, err := f.payload(button)
	if err != nil {
		return nil, err
	}

	req := client.R().SetContext(ctx)
	if f.Method == "GET" {
		return req.SetQueryParamsFromValues(values).Get(f.Action)
	}
	return req.SetFormDataFromValues(values).Post(f.Action)
}

// SubmitMultipart posts the form as multipart/form-data with one file
// attached to the form's first file input.
func (f *Form) SubmitMultipart(ctx context.Context, client *resty.Client, button *regexp.Regexp, fileName, mimeType string, data []byte) (*resty.Response, error) {
	if len(f.fileFields) == 0 {
		return nil, &MalformedPageError{Page: f.pageUrl, Missing: "file upload field"}
	}
	values, err := f.payload(button)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	for key := range values {
		fields[key] = values.Get(key)
	}
	return client.R().
		SetContext(ctx).
		SetMultipartFormData(fields).
		SetMultipartField(f.fileFields[0], fileName, mimeType, bytes.NewReader(data)).
		Post(f.Action)
}
