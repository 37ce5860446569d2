package gradebook

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/submission"
)

var (
	newAssignmentActionRegex = regexp.MustCompile(`(?i)new`)
	longNameFieldRegex       = regexp.MustCompile(`(?i)long`)
	shortNameFieldRegex      = regexp.MustCompile(`(?i)short`)
	pointsFieldRegex         = regexp.MustCompile(`(?i)points`)
	dueFieldRegex            = regexp.MustCompile(`(?i)due`)
	weightFieldRegex         = regexp.MustCompile(`(?i)weight`)
	deleteActionRegex        = regexp.MustCompile(`(?i)delete`)
	submissionDetailRegex    = regexp.MustCompile(`(?i)submission\s+details`)
)

// AssignmentList is the gradebook's assignment table. Mutations go
// through the portal and are observed by a full Reload, never by local
// list surgery.
type AssignmentList struct {
	url         string
	addUrl      string
	client      *core.Client
	assignments []*Assignment
}

// Reload re-scrapes the assignment table. Rows without a valid
// assignment link are dropped.
func (l *AssignmentList) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "assignments:Reload")
	defer span.End()

	doc, err := l.client.GetDocument(ctx, l.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the assignment table")
		return err
	}

	var assignments []*Assignment
	var firstErr error
	doc.Find("table.gradesTable tbody tr").Each(func(_ int, row *goquery.Selection) {
		if firstErr != nil {
			return
		}
		link := row.Find(`a[href*="assignment"]`).First()
		if link.Length() == 0 {
			return
		}
		a, err := NewAssignment(ctx, l.client, htmlutil.Resolve(doc, link.AttrOr("href", "")), strings.TrimSpace(link.Text()))
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

func (l *AssignmentList) All() []*Assignment {
	return l.assignments
}

func (l *AssignmentList) Named(name string) *Assignment {
	for _, a := range l.assignments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Add creates an assignment through the "Add Assignment" form and
// reloads the whole table, which is how the addition becomes visible.
func (l *AssignmentList) Add(ctx context.Context, longName, shortName string, maxPoints float64, due time.Time, weight float64) error {
	ctx, span := tracer.Start(ctx, "assignments:Add")
	defer span.End()
	span.SetAttributes(attribute.String("name", longName))

	doc, err := l.client.GetDocument(ctx, l.addUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the add-assignment page")
		return err
	}
	form, err := htmlutil.FindForm(doc, newAssignmentActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the add-assignment form")
		return err
	}

	if err := form.SetField(longNameFieldRegex, longName); err != nil {
		return err
	}
	if err := form.SetField(shortNameFieldRegex, shortName); err != nil {
		return err
	}
	if err := form.SetField(pointsFieldRegex, strconv.FormatFloat(maxPoints, 'f', -1, 64)); err != nil {
		return err
	}
	if err := form.SetField(dueFieldRegex, due.Format("01/02/2006")); err != nil {
		return err
	}
	if err := form.SetField(weightFieldRegex, strconv.FormatFloat(weight, 'f', -1, 64)); err != nil {
		return err
	}

	if _, err := form.Submit(ctx, l.client.Http, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the add-assignment form")
		return err
	}
	return l.Reload(ctx)
}

// Assignment is one row of the gradebook's assignment table.
type Assignment struct {
	Name string
	Url  string

	client      *core.Client
	deleted     bool
	submissions []*submission.Submission
}

// NewAssignment validates that the page at url really is the named
// assignment's page before wrapping it.
func NewAssignment(ctx context.Context, client *core.Client, url, name string) (*Assignment, error) {
	ctx, span := tracer.Start(ctx, "NewAssignment")
	defer span.End()
	span.SetAttributes(attribute.String("name", name), attribute.String("url", url))

	doc, err := client.GetDocument(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the assignment page")
		return nil, err
	}
	marker := false
	doc.Find("#content p b").EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if strings.TrimSpace(b.Text()) == name {
			marker = true
			return false
		}
		return true
	})
	if !marker {
		span.SetStatus(codes.Error, "page is not an assignment page")
		return nil, &htmlutil.MalformedPageError{Page: url, Missing: "assignment name marker"}
	}

	return &Assignment{Name: name, Url: url, client: client}, nil
}

func (a *Assignment) Deleted() bool {
	return a.deleted
}

// Delete removes the assignment through its confirmation form and sets
// a local tombstone. Calling it again is a no-op; the owning list only
// observes the removal on its next Reload.
func (a *Assignment) Delete(ctx context.Context) error {
	if a.deleted {
		return nil
	}

	ctx, span := tracer.Start(ctx, "assignment:Delete")
	defer span.End()
	span.SetAttributes(attribute.String("name", a.Name))

	doc, err := a.client.GetDocument(ctx, a.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the assignment page")
		return err
	}
	deleteLink := doc.Find(`a[href*="delete"]`).First()
	if deleteLink.Length() == 0 {
		span.SetStatus(codes.Error, "assignment page has no delete link")
		return &htmlutil.MalformedPageError{Page: a.Url, Missing: "assignment delete link"}
	}

	confirm, err := a.client.GetDocument(ctx, htmlutil.Resolve(doc, deleteLink.AttrOr("href", "")))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the delete confirmation page")
		return err
	}
	form, err := htmlutil.FindForm(confirm, deleteActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the delete confirmation form")
		return err
	}
	if _, err := form.Submit(ctx, a.client.Http, deleteActionRegex); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the delete confirmation")
		return err
	}

	a.deleted = true
	return nil
}

// Submissions lists the student submissions for the assignment,
// scraping on first use. Gradebook submission pages carry no
// timestamp.
func (a *Assignment) Submissions(ctx context.Context) ([]*submission.Submission, error) {
	if a.submissions != nil {
		return a.submissions, nil
	}
	return a.ReloadSubmissions(ctx)
}

// ReloadSubmissions re-scrapes the submission table. Rows without a
// detail link or with an unparseable detail page are dropped.
func (a *Assignment) ReloadSubmissions(ctx context.Context) ([]*submission.Submission, error) {
	ctx, span := tracer.Start(ctx, "assignment:ReloadSubmissions")
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
		href := ""
		row.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			if submissionDetailRegex.MatchString(link.Text()) {
				href = link.AttrOr("href", "")
				return false
			}
			return true
		})
		if href == "" {
			return
		}
		s, err := submission.New(ctx, a.client, htmlutil.Resolve(doc, href), a.Name, submission.Options{})
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
