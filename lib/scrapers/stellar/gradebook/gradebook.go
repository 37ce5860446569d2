// Package gradebook scrapes a course's Gradebook module: the assignment
// table, the student roster embedded in the page's script tag, and the
// per-student grade editing forms.
package gradebook

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
)

var tracer = otel.Tracer("scrapers/stellar/gradebook")

// Gradebook is a client scoped to a course's Gradebook module. The
// module carries its own navigation block separate from the course's.
type Gradebook struct {
	// navigation label -> absolute URL, from the module's tool box
	Navigation map[string]string

	url    string
	client *core.Client

	assignments *AssignmentList
	students    *StudentList
}

// New follows the course's Gradebook navigation link and scrapes the
// module's own navigation.
func New(ctx context.Context, c *course.Course) (*Gradebook, error) {
	ctx, span := tracer.Start(ctx, "New")
	defer span.End()

	url, err := c.NavigationUrl("Gradebook")
	if err != nil {
		return nil, err
	}
	doc, err := c.Client.GetDocument(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the gradebook page")
		return nil, err
	}

	return &Gradebook{
		Navigation: htmlutil.AnchorMap(ctx, doc, doc.Find("#toolBox dd a")),
		url:        url,
		client:     c.Client,
	}, nil
}

// NavigationUrl returns the absolute URL behind a module navigation
// label.
func (g *Gradebook) NavigationUrl(label string) (string, error) {
	href, ok := g.Navigation[label]
	if !ok {
		return "", &htmlutil.MalformedPageError{
			Page:    g.url,
			Missing: "gradebook navigation link " + label,
		}
	}
	return href, nil
}

// Assignments returns the assignment list, scraping it on first use.
func (g *Gradebook) Assignments(ctx context.Context) (*AssignmentList, error) {
	if g.assignments != nil {
		return g.assignments, nil
	}

	url, err := g.NavigationUrl("Assignments")
	if err != nil {
		return nil, err
	}
	addUrl, err := g.NavigationUrl("Add Assignment")
	if err != nil {
		return nil, err
	}
	list := &AssignmentList{url: url, addUrl: addUrl, client: g.client}
	if err := list.Reload(ctx); err != nil {
		return nil, err
	}
	g.assignments = list
	return list, nil
}

// Students returns the student roster, scraping it on first use.
func (g *Gradebook) Students(ctx context.Context) (*StudentList, error) {
	if g.students != nil {
		return g.students, nil
	}

	url, err := g.NavigationUrl("Students")
	if err != nil {
		return nil, err
	}
	list := &StudentList{url: url, client: g.client}
	if err := list.Reload(ctx); err != nil {
		return nil, err
	}
	g.students = list
	return list, nil
}
