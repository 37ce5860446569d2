package gradebook

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/textutil"
)

// UnknownAssignmentError reports a grade update keyed by an assignment
// name that has no input field on the student's page.
type UnknownAssignmentError struct {
	Name string
}

func (e *UnknownAssignmentError) Error() string {
	return fmt.Sprintf("no grade input for assignment %q", e.Name)
}

var (
	// the roster is embedded in a script tag as a nested array literal
	rosterArrayRegex  = regexp.MustCompile(`(?s)\[\s*\[.*\]\s*\]`)
	editActionRegex   = regexp.MustCompile(`(?i)edit`)
	commentFieldRegex = regexp.MustCompile(`(?i)comment`)
)

// StudentList is the gradebook's roster.
type StudentList struct {
	url      string
	client   *core.Client
	students []*Student
}

// Reload re-extracts the roster array from the page's script tag. Rows
// that don't look like student tuples are dropped.
func (l *StudentList) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "students:Reload")
	defer span.End()

	doc, err := l.client.GetDocument(ctx, l.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the roster page")
		return err
	}

	raw := ""
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		if match := rosterArrayRegex.FindString(script.Text()); match != "" {
			raw = match
			return false
		}
		return true
	})
	if raw == "" {
		span.SetStatus(codes.Error, "page has no embedded roster")
		return &htmlutil.MalformedPageError{Page: l.url, Missing: "embedded student roster"}
	}

	rows, err := parseRoster(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse the embedded roster")
		return &htmlutil.MalformedPageError{Page: l.url, Missing: "parseable student roster"}
	}

	var students []*Student
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		email, href, name := row[0], row[1], row[2]
		if !strings.Contains(email, "@") || href == "" || name == "" {
			continue
		}
		students = append(students, &Student{
			Name:   textutil.FlipName(name),
			Email:  email,
			Url:    htmlutil.Resolve(doc, href),
			client: l.client,
		})
	}

	l.students = students
	return nil
}

// parseRoster decodes the script tag's array literal, which uses single
// quotes in some portal revisions.
func parseRoster(raw string) ([][]string, error) {
	var rows [][]string
	if err := json.Unmarshal([]byte(raw), &rows); err == nil {
		return rows, nil
	}
	normalized := strings.ReplaceAll(raw, `'`, `"`)
	if err := json.Unmarshal([]byte(normalized), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *StudentList) All() []*Student {
	return l.students
}

func (l *StudentList) Named(name string) *Student {
	for _, s := range l.students {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (l *StudentList) WithEmail(email string) *Student {
	for _, s := range l.students {
		if s.Email == email {
			return s
		}
	}
	return nil
}

// Closest returns the student whose name best matches the query by
// Jaro-Winkler similarity, or nil for an empty roster.
func (l *StudentList) Closest(name string) *Student {
	target := textutil.NormalizeName(name)
	var best *Student
	bestScore := -1.0
	for _, s := range l.students {
		score := matchr.JaroWinkler(target, textutil.NormalizeName(s.Name), false)
		if score > bestScore {
			best = s
			bestScore = score
		}
	}
	return best
}

// Student is one roster entry. Grades and the staff comment live on the
// student's own editing page and are scraped on first access.
type Student struct {
	Name  string
	Email string
	// absolute URL of the student's grade editing page
	Url string

	client *core.Client
	loaded bool
	// assignment name -> score, nil for an empty input
	grades map[string]*float64
	// assignment name -> the input field that submits its score
	inputNames   map[string]string
	comment      string
	commentField string
}

// Grades returns the assignment name to score mapping, scraping the
// student's page on first access. A nil score is an empty grade input.
func (s *Student) Grades(ctx context.Context) (map[string]*float64, error) {
	if !s.loaded {
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
	}
	return s.grades, nil
}

// Comment returns the staff comment, scraping the student's page on
// first access.
func (s *Student) Comment(ctx context.Context) (string, error) {
	if !s.loaded {
		if err := s.Reload(ctx); err != nil {
			return "", err
		}
	}
	return s.comment, nil
}

// Reload re-scrapes the grade inputs and comment textarea, caching the
// input field names later grade submissions need. State is replaced
// only after the whole page parses.
func (s *Student) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "student:Reload")
	defer span.End()
	span.SetAttributes(attribute.String("email", s.Email))

	doc, err := s.client.GetDocument(ctx, s.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the student page")
		return err
	}

	grades := map[string]*float64{}
	inputNames := map[string]string{}
	doc.Find("table.gradesTable tbody tr").Each(func(_ int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("th, td").First().Text())
		input := row.Find(`input[type="text"]`).First()
		if name == "" || input.Length() == 0 || input.AttrOr("name", "") == "" {
			return
		}
		inputNames[name] = input.AttrOr("name", "")

		value := strings.TrimSpace(input.AttrOr("value", ""))
		if value == "" {
			grades[name] = nil
			return
		}
		score, err := strconv.ParseFloat(value, 64)
		if err != nil {
			grades[name] = nil
			return
		}
		grades[name] = &score
	})

	textarea := doc.Find("textarea").First()
	if textarea.Length() == 0 || textarea.AttrOr("name", "") == "" {
		span.SetStatus(codes.Error, "student page has no comment field")
		return &htmlutil.MalformedPageError{Page: s.Url, Missing: "comment textarea"}
	}

	s.grades = grades
	s.inputNames = inputNames
	s.comment = strings.TrimSpace(textarea.Text())
	s.commentField = textarea.AttrOr("name", "")
	s.loaded = true
	return nil
}

// UpdateGrades submits new scores for the named assignments in one form
// post, then reloads. Every name must have a known grade input.
func (s *Student) UpdateGrades(ctx context.Context, grades map[string]float64) error {
	ctx, span := tracer.Start(ctx, "student:UpdateGrades")
	defer span.End()
	span.SetAttributes(attribute.String("email", s.Email))

	if !s.loaded {
		if err := s.Reload(ctx); err != nil {
			return err
		}
	}
	for name := range grades {
		if _, ok := s.inputNames[name]; !ok {
			return &UnknownAssignmentError{Name: name}
		}
	}

	doc, err := s.client.GetDocument(ctx, s.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the student page")
		return err
	}
	form, err := htmlutil.FindForm(doc, editActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the grade editing form")
		return err
	}
	for name, score := range grades {
		form.Values.Set(s.inputNames[name], strconv.FormatFloat(score, 'f', -1, 64))
	}
	if _, err := form.Submit(ctx, s.client.Http, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the grade update")
		return err
	}

	return s.Reload(ctx)
}

// UpdateComment replaces the staff comment, then reloads.
func (s *Student) UpdateComment(ctx context.Context, text string) error {
	ctx, span := tracer.Start(ctx, "student:UpdateComment")
	defer span.End()
	span.SetAttributes(attribute.String("email", s.Email))

	if !s.loaded {
		if err := s.Reload(ctx); err != nil {
			return err
		}
	}

	doc, err := s.client.GetDocument(ctx, s.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the student page")
		return err
	}
	form, err := htmlutil.FindForm(doc, editActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the grade editing form")
		return err
	}
	if err := form.SetField(commentFieldRegex, text); err != nil {
		return err
	}
	if _, err := form.Submit(ctx, s.client.Http, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the comment update")
		return err
	}

	return s.Reload(ctx)
}
