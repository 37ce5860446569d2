// Package members scrapes a course's Membership module, in particular
// the member photo roster.
package members

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/textutil"
)

var tracer = otel.Tracer("scrapers/stellar/members")

// Members is a client scoped to a course's Membership module.
type Members struct {
	// navigation label -> absolute URL, from the module's tool box
	Navigation map[string]string

	url    string
	client *core.Client
	photos *PhotoList
}

// New follows the course's Membership navigation link and scrapes the
// module's own navigation.
func New(ctx context.Context, c *course.Course) (*Members, error) {
	ctx, span := tracer.Start(ctx, "New")
	defer span.End()

	url, err := c.NavigationUrl("Membership")
	if err != nil {
		return nil, err
	}
	doc, err := c.Client.GetDocument(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the membership page")
		return nil, err
	}

	return &Members{
		Navigation: htmlutil.AnchorMap(ctx, doc, doc.Find("#toolBox dd a")),
		url:        url,
		client:     c.Client,
	}, nil
}

// Photos returns the member photo roster, scraping it on first use.
func (m *Members) Photos(ctx context.Context) (*PhotoList, error) {
	if m.photos != nil {
		return m.photos, nil
	}

	url, ok := m.Navigation["Member Photos"]
	if !ok {
		return nil, &htmlutil.MalformedPageError{
			Page:    m.url,
			Missing: "navigation link \"Member Photos\"",
		}
	}
	list := &PhotoList{url: url, client: m.client}
	if err := list.Reload(ctx); err != nil {
		return nil, err
	}
	m.photos = list
	return list, nil
}

// PhotoList is the member photo roster.
type PhotoList struct {
	url    string
	client *core.Client
	photos []*Photo
}

// Reload re-scrapes the photo cards. Cards missing a portrait or a
// mailto link are dropped.
func (l *PhotoList) Reload(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "photos:Reload")
	defer span.End()

	doc, err := l.client.GetDocument(ctx, l.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the photo roster")
		return err
	}

	var photos []*Photo
	doc.Find("#content .cols > div").Each(func(_ int, card *goquery.Selection) {
		img := card.Find(`img[src*="pictures"]`).First()
		mailto := card.Find(`a[href^="mailto:"]`).First()
		if img.Length() == 0 || mailto.Length() == 0 {
			return
		}

		// the roster embeds thumbnails; the full-size portrait lives at
		// the same path with /half/ swapped out
		src := strings.Replace(img.AttrOr("src", ""), "/half/", "/full/", 1)
		photos = append(photos, &Photo{
			Name:   strings.TrimSpace(mailto.Text()),
			Email:  strings.TrimPrefix(mailto.AttrOr("href", ""), "mailto:"),
			Url:    htmlutil.Resolve(doc, src),
			client: l.client,
		})
	})

	l.photos = photos
	return nil
}

func (l *PhotoList) All() []*Photo {
	return l.photos
}

func (l *PhotoList) Named(name string) *Photo {
	for _, p := range l.photos {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (l *PhotoList) WithEmail(email string) *Photo {
	for _, p := range l.photos {
		if p.Email == email {
			return p
		}
	}
	return nil
}

// Closest returns the member whose name best matches the query by
// Jaro-Winkler similarity, or nil for an empty roster.
func (l *PhotoList) Closest(name string) *Photo {
	target := textutil.NormalizeName(name)
	var best *Photo
	bestScore := -1.0
	for _, p := range l.photos {
		score := matchr.JaroWinkler(target, textutil.NormalizeName(p.Name), false)
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best
}

// Photo is one member's full-size portrait.
type Photo struct {
	Name  string
	Email string
	Url   string

	client *core.Client
}

// Data fetches the portrait bytes.
func (p *Photo) Data(ctx context.Context) ([]byte, error) {
	return p.client.GetBytes(ctx, p.Url)
}
