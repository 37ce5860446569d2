package submission

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
)

var deleteActionRegex = regexp.MustCompile(`(?i)delete`)

// Comment is one entry in a submission's thread. A deleted comment
// keeps its row in the listing but loses text and attachment.
type Comment struct {
	Author string
	// nil-equivalent when the comment is deleted
	Text          string
	AttachmentUrl string

	deleted   bool
	deleteUrl string
	client    *core.Client
}

// parseComment reads one comment table. Tombstoned comments carry an
// explicit "deleted" marker; live ones must expose a delete link.
func parseComment(doc *goquery.Document, table *goquery.Selection, client *core.Client) (*Comment, error) {
	c := &Comment{
		Author: strings.TrimSpace(table.Find("thead tr th.announcedBy").First().Text()),
		client: client,
	}

	content := table.Find("tbody tr td.announcement").First()
	if content.Length() == 0 {
		return nil, &htmlutil.MalformedPageError{
			Page:    pageUrl(doc),
			Missing: "comment content cell",
		}
	}

	marker := table.Find("tbody tr td.announcement > em").First()
	if marker.Length() > 0 && strings.TrimSpace(marker.Text()) == "deleted" {
		c.deleted = true
		return c, nil
	}

	deleteLink := table.Find(`thead a[href*="delete"]`).First()
	if deleteLink.Length() == 0 {
		return nil, &htmlutil.MalformedPageError{
			Page:    pageUrl(doc),
			Missing: "comment delete link",
		}
	}
	c.deleteUrl = htmlutil.Resolve(doc, deleteLink.AttrOr("href", ""))
	c.Text = strings.TrimSpace(content.Find("p").Text())

	attachment := table.Find("tbody tr td.announcement > a").First()
	if attachment.Length() > 0 {
		c.AttachmentUrl = htmlutil.Resolve(doc, attachment.AttrOr("href", ""))
	}
	return c, nil
}

func pageUrl(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}

func (c *Comment) Deleted() bool {
	return c.deleted
}

// Delete tombstones the comment through its confirmation form. Calling
// it on an already-deleted comment is a no-op.
func (c *Comment) Delete(ctx context.Context) error {
	if c.deleted {
		return nil
	}

	ctx, span := tracer.Start(ctx, "comment:Delete")
	defer span.End()

	doc, err := c.client.GetDocument(ctx, c.deleteUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the delete confirmation page")
		return err
	}
	form, err := htmlutil.FindForm(doc, deleteActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the delete confirmation form")
		return err
	}
	_, err = form.Submit(ctx, c.client.Http, deleteActionRegex)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the delete confirmation")
		return err
	}

	c.deleted = true
	return nil
}

// AttachmentData fetches the file attached to the comment, or nil when
// there is none.
func (c *Comment) AttachmentData(ctx context.Context) ([]byte, error) {
	if c.AttachmentUrl == "" {
		return nil, nil
	}
	return c.client.GetBytes(ctx, c.AttachmentUrl)
}
