// Package course resolves a course's scoped portal page, either from
// the authenticated user's course listing or from (number, year,
// semester) coordinates.
package course

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
)

var tracer = otel.Tracer("scrapers/stellar/course")

type Semester int

const (
	Fall Semester = iota
	Spring
	Summer
	IAP
)

// Code is the two-letter term prefix used in course URLs.
func (s Semester) Code() string {
	switch s {
	case Fall:
		return "fa"
	case Spring:
		return "sp"
	case Summer:
		return "su"
	case IAP:
		return "ia"
	}
	return ""
}

var coursePathRegex = regexp.MustCompile(`/S/course/`)

// Course is a client scoped to one course's portal page.
type Course struct {
	// official course ID, e.g. "6.006"
	Number string
	// absolute URL of the course's main page
	Url string
	// navigation label -> absolute URL, scraped once at construction
	Navigation map[string]string
	// whether the session has administrative rights for the course
	IsAdmin bool

	Client *core.Client
}

// Mine lists the courses linked from the authenticated user's entry
// page. Links that don't resolve to a course page are skipped.
func Mine(ctx context.Context, client *core.Client) ([]*Course, error) {
	ctx, span := tracer.Start(ctx, "Mine")
	defer span.End()

	doc, err := client.GetDocument(ctx, "/atstellar")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the course listing")
		return nil, err
	}

	var courses []*Course
	var firstErr error
	doc.Find(`a[href*="/S/course/"]`).Each(func(_ int, link *goquery.Selection) {
		if firstErr != nil {
			return
		}
		c, err := FromLink(ctx, client, doc, link)
		if err != nil {
			firstErr = err
			return
		}
		if c != nil {
			courses = append(courses, c)
		}
	})
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "failed to construct a listed course")
		return nil, firstErr
	}
	return courses, nil
}

// FromLink builds a scoped course client from a listing link. A link
// that doesn't look like a course link yields (nil, nil): this is a
// filter, not a validation failure.
func FromLink(ctx context.Context, client *core.Client, doc *goquery.Document, link *goquery.Selection) (*Course, error) {
	number := strings.TrimSpace(link.Find("span.courseNo").Text())
	if number == "" {
		return nil, nil
	}
	href := link.AttrOr("href", "")
	if !strings.Contains(href, number) {
		return nil, nil
	}
	if !coursePathRegex.MatchString(href) {
		return nil, nil
	}
	return New(ctx, client, htmlutil.Resolve(doc, href), number)
}

// ForTerm builds a scoped course client from its coordinates, deriving
// the URL from the portal's term-code template.
func ForTerm(ctx context.Context, client *core.Client, number string, year int, semester Semester) (*Course, error) {
	term := fmt.Sprintf("%s%02d", semester.Code(), year%100)
	department, _, _ := strings.Cut(number, ".")
	courseUrl := fmt.Sprintf("/S/course/%s/%s/%s/index.html", department, term, number)
	return New(ctx, client, courseUrl, number)
}

// New fetches the course page and scrapes its navigation block. A page
// without exactly one navigation block is not a course page.
func New(ctx context.Context, client *core.Client, courseUrl, number string) (*Course, error) {
	ctx, span := tracer.Start(ctx, "New")
	defer span.End()
	span.SetAttributes(
		attribute.String("number", number),
		attribute.String("url", courseUrl),
	)

	doc, err := client.GetDocument(ctx, courseUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the course page")
		return nil, err
	}

	navbars := doc.Find("#mainnav")
	if navbars.Length() != 1 {
		span.SetStatus(codes.Error, "page has no unique navigation block")
		return nil, &htmlutil.MalformedPageError{
			Page:    courseUrl,
			Missing: "exactly one #mainnav navigation block",
		}
	}

	// normalize to the fetched page's final URL so that a course found
	// through the listing and one built from coordinates compare equal
	if doc.Url != nil {
		courseUrl = doc.Url.String()
	}

	c := &Course{
		Number:     number,
		Url:        courseUrl,
		Navigation: htmlutil.AnchorMap(ctx, doc, navbars.Find("a")),
		IsAdmin:    doc.Find("p#toolset").Length() > 0,
		Client:     client,
	}
	return c, nil
}

// NavigationUrl returns the absolute URL behind a navigation label.
func (c *Course) NavigationUrl(label string) (string, error) {
	href, ok := c.Navigation[label]
	if !ok {
		return "", &htmlutil.MalformedPageError{
			Page:    c.Url,
			Missing: fmt.Sprintf("navigation link %q", label),
		}
	}
	return href, nil
}
