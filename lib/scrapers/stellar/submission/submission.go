// Package submission scrapes the per-student submission pages shared
// by the homework and gradebook modules: the authoring student, the
// latest submitted file and the comment thread below it.
package submission

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
)

var tracer = otel.Tracer("scrapers/stellar/submission")

var (
	addCommentActionRegex = regexp.MustCompile(`(?i)addcomment`)
	commentFieldRegex     = regexp.MustCompile(`(?i)newcomment`)
	privateCommentRegex   = regexp.MustCompile(`(?i)privatecomment`)
	submitButtonRegex     = regexp.MustCompile(`(?i)submit`)
	dateLabelRegex        = regexp.MustCompile(`(?i)date`)
)

// The portal renders submission timestamps in US eastern daylight time
// without naming the zone.
var portalZone = time.FixedZone("GMT-4", -4*60*60)

var timestampLayouts = []string{
	"Jan 2, 2006 3:04 PM",
	"Jan 2 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"1/2/2006 3:04 PM",
	"2006-01-02 15:04",
}

// Submission is one student's submission for an assignment, identified
// by the author's e-mail within that assignment.
type Submission struct {
	// author, from the page's mailto link
	Name  string
	Email string
	// URL of the last file the student submitted, empty when the page
	// lists none for this assignment
	FileUrl string
	// submission time, zero unless the module records one
	SubmittedAt time.Time
	// absolute URL of the submission's detail page
	Url string

	AssignmentName string

	addCommentUrl string
	comments      []*Comment
	client        *core.Client
}

type Options struct {
	// parse the labeled submission timestamp (homework pages only)
	ParseTime bool
}

// New fetches a submission detail page and validates its structure. A
// page without an author link or a comment anchor is not a submission
// page.
func New(ctx context.Context, client *core.Client, submissionUrl, assignmentName string, opts Options) (*Submission, error) {
	ctx, span := tracer.Start(ctx, "New")
	defer span.End()
	span.SetAttributes(attribute.String("url", submissionUrl))

	doc, err := client.GetDocument(ctx, submissionUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the submission page")
		return nil, err
	}

	author := doc.Find(`#content h4 a[href^="mailto:"]`).First()
	if author.Length() == 0 {
		span.SetStatus(codes.Error, "page has no author link")
		return nil, &htmlutil.MalformedPageError{Page: submissionUrl, Missing: "author mailto link"}
	}

	s := &Submission{
		Name:           strings.TrimSpace(author.Text()),
		Email:          strings.TrimPrefix(author.AttrOr("href", ""), "mailto:"),
		Url:            submissionUrl,
		AssignmentName: assignmentName,
		client:         client,
	}

	doc.Find(`#rosterBox a[href*="studentWork"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if strings.TrimSpace(link.Text()) != assignmentName {
			return true
		}
		s.FileUrl = htmlutil.Resolve(doc, link.AttrOr("href", ""))
		return false
	})

	if opts.ParseTime {
		s.SubmittedAt = parseSubmittedAt(doc)
	}

	addLink := doc.Find(`#comments a[href*="add"]`).First()
	if addLink.Length() == 0 {
		span.SetStatus(codes.Error, "page has no add-comment link")
		return nil, &htmlutil.MalformedPageError{Page: submissionUrl, Missing: "add-comment link"}
	}
	s.addCommentUrl = htmlutil.Resolve(doc, addLink.AttrOr("href", ""))

	if err := s.reloadComments(doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse the comment thread")
		return nil, err
	}
	return s, nil
}

func parseSubmittedAt(doc *goquery.Document) time.Time {
	var submittedAt time.Time
	doc.Find("#rosterBox .instruction").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		labeled := false
		span.Find("strong").Each(func(_ int, strong *goquery.Selection) {
			if dateLabelRegex.MatchString(strong.Text()) {
				labeled = true
			}
		})
		if !labeled {
			return true
		}

		_, value, found := strings.Cut(span.Text(), ":")
		if !found {
			return true
		}
		value = strings.TrimSpace(value)
		for _, layout := range timestampLayouts {
			t, err := time.ParseInLocation(layout, value, portalZone)
			if err == nil {
				submittedAt = t
				return false
			}
		}
		return true
	})
	return submittedAt
}

// FileData fetches the raw contents of the submitted file.
func (s *Submission) FileData(ctx context.Context) ([]byte, error) {
	return s.client.GetBytes(ctx, s.FileUrl)
}

// Attachment is an optional file posted along with a comment.
type Attachment struct {
	Data     []byte
	MimeType string
	FileName string
}

// AddComment posts a staff comment on the submission, optionally
// attaching one file. The comment thread is not refreshed; call
// ReloadComments to observe the new comment.
func (s *Submission) AddComment(ctx context.Context, text string, attachment *Attachment) error {
	ctx, span := tracer.Start(ctx, "submission:AddComment")
	defer span.End()

	doc, err := s.client.GetDocument(ctx, s.addCommentUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the add-comment page")
		return err
	}

	form, err := htmlutil.FindForm(doc, addCommentActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the add-comment form")
		return err
	}
	if err := form.SetAll(commentFieldRegex, text); err != nil {
		return err
	}
	if err := form.Check(privateCommentRegex); err != nil {
		return err
	}

	if attachment != nil {
		mimeType := attachment.MimeType
		if mimeType == "" {
			mimeType = "text/plain"
		}
		fileName := attachment.FileName
		if fileName == "" {
			fileName = "attachment.txt"
		}
		_, err = form.SubmitMultipart(ctx, s.client.Http, submitButtonRegex, fileName, mimeType, attachment.Data)
	} else {
		_, err = form.Submit(ctx, s.client.Http, submitButtonRegex)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the comment")
	}
	return err
}

// Comments returns the thread as of the last page load.
func (s *Submission) Comments() []*Comment {
	return s.comments
}

// ReloadComments re-fetches the submission page and re-scrapes the
// comment thread.
func (s *Submission) ReloadComments(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "submission:ReloadComments")
	defer span.End()

	doc, err := s.client.GetDocument(ctx, s.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the submission page")
		return err
	}
	return s.reloadComments(doc)
}

func (s *Submission) reloadComments(doc *goquery.Document) error {
	var comments []*Comment
	var firstErr error
	doc.Find("#comments ~ table.dataTable").Each(func(_ int, table *goquery.Selection) {
		if firstErr != nil {
			return
		}
		comment, err := parseComment(doc, table, s.client)
		if err != nil {
			firstErr = err
			return
		}
		comments = append(comments, comment)
	})
	if firstErr != nil {
		return firstErr
	}
	s.comments = comments
	return nil
}
