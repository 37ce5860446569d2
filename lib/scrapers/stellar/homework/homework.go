// Package homework scrapes a course's Homework module: the posted
// assignments and the student submissions under each one.
package homework

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/scrapers/stellar/submission"
)

var tracer = otel.Tracer("scrapers/stellar/homework")

var submissionNumberRegex = regexp.MustCompile(`^\s*\d+\s*$`)

// List is a client scoped to a course's Homework module.
type List struct {
	url         string
	client      *core.Client
	assignments []*Assignment
}

// New follows the course's Homework navigation link and loads the
// assignment listing.
func New(ctx context.Context, c *course.Course) (*List, error) {
	url, err := c.NavigationUrl("Homework")
	if err != nil {
		return nil, err
	}
	l := &List{url: url, client: c.Client}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-scrapes the assignment listing. Links that don't resolve
// to an assignment page are dropped.
func (l *List) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "homework:Reload")
	defer span.End()

	doc, err := l.client.GetDocument(ctx, l.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the homework listing")
		return err
	}

	var assignments []*Assignment
	var firstErr error
	doc.Find(`#content a[href*="assignment"]`).Each(func(_ int, link *goquery.Selection) {
		if firstErr != nil {
			return
		}
		name := strings.TrimSpace(link.Text())
		a, err := NewAssignment(ctx, l.client, htmlutil.Resolve(doc, link.AttrOr("href", "")), name)
		if err != nil {
			var malformed *htmlutil.MalformedPageError
			if errors.As(err, &malformed) {
				return
			}
			firstErr = err
			return
		}
		assignments = append(assignments, a)
	})
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "failed to load an assignment")
		return firstErr
	}

	l.assignments = assignments
	return nil
}

func (l *List) All() []*Assignment {
	return l.assignments
}

func (l *List) Named(name string) *Assignment {
	for _, a := range l.assignments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Assignment is one entry in the Homework module.
type Assignment struct {
	Name string
	Url  string

	client      *core.Client
	submissions []*submission.Submission
}

// NewAssignment validates that the page at url really is the named
// assignment's page before wrapping it.
func NewAssignment(ctx context.Context, client *core.Client, url, name string) (*Assignment, error) {
	ctx, span := tracer.Start(ctx, "homework:NewAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("name", name), attribute.String("url", url))

	doc, err := client.GetDocument(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the assignment page")
		return nil, err
	}
	if !hasMarker(doc, name) {
		span.SetStatus(codes.Error, "page is not an assignment page")
		return nil, &htmlutil.MalformedPageError{Page: url, Missing: "assignment name marker"}
	}

	return &Assignment{Name: name, Url: url, client: client}, nil
}

func hasMarker(doc *goquery.Document, name string) bool {
	found := false
	doc.Find("#content p b").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if strings.TrimSpace(b.Text()) == name {
			found = true
			return false
		}
		return true
	})
	return found
}

// Submissions lists the student submissions for the assignment,
// scraping on first use.
func (a *Assignment) Submissions(ctx context.Context) ([]*submission.Submission, error) {
	if a.submissions != nil {
		return a.submissions, nil
	}
	return a.ReloadSubmissions(ctx)
}

// ReloadSubmissions re-scrapes the submission table. Rows that don't
// hold a submission are dropped.
func (a *Assignment) ReloadSubmissions(ctx context.Context) ([]*submission.Submission, error) {
	ctx, span := tracer.Start(ctx, "homework:ReloadSubmissions")
	defer span.End()

	doc, err := a.client.GetDocument(ctx, a.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the assignment page")
		return nil, err
	}

	var submissions []*submission.Submission
	var firstErr error
	doc.Find(".gradeTable tbody tr").Each(func(_ int, row *goquery.Selection) {
		if firstErr != nil {
			return
		}
		href := submissionLink(row)
		if href == "" {
			return
		}
		s, err := submission.New(ctx, a.client, htmlutil.Resolve(doc, href), a.Name, submission.Options{ParseTime: true})
		if err != nil {
			var malformed *htmlutil.MalformedPageError
			if errors.As(err, &malformed) {
				return
			}
			firstErr = err
			return
		}
		submissions = append(submissions, s)
	})
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "failed to load a submission")
		return nil, firstErr
	}

	a.submissions = submissions
	return submissions, nil
}

// submissionLink finds the numbered detail link in a submission row,
// skipping the grade-editing link that shares the row.
func submissionLink(row *goquery.Selection) string {
	href := ""
	row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if !submissionNumberRegex.MatchString(link.Text()) {
			return true
		}
		if strings.Contains(link.AttrOr("href", ""), "grade") {
			return true
		}
		href = link.AttrOr("href", "")
		return false
	})
	return href
}
