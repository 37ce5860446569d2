package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
)

var ErrAuthenticationFailed = fmt.Errorf("authentication failed due to invalid credentials")

var (
	wayfActionRegex     = regexp.MustCompile(`WAYF`)
	permNameRegex       = regexp.MustCompile(`perm`)
	selectNameRegex     = regexp.MustCompile(`(?i)select`)
	certActionRegex     = regexp.MustCompile(`(?i)certificate`)
	prefNameRegex       = regexp.MustCompile(`pref`)
	usernameActionRegex = regexp.MustCompile(`(?i)username`)
	userFieldRegex      = regexp.MustCompile(`user`)
	passFieldRegex      = regexp.MustCompile(`pass`)
	samlActionRegex     = regexp.MustCompile(`SAML`)
)

// LoginKerberos authenticates the session with a username and
// password, driving the federation broker's redirect chain end to end.
func (c *Client) LoginKerberos(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:LoginKerberos")
	defer span.End()

	credPage, err := c.enterIdp(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach the credentials page")
		return err
	}

	form, err := htmlutil.FindForm(credPage, usernameActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the username/password form")
		return err
	}
	if err := form.SetField(userFieldRegex, username); err != nil {
		return err
	}
	if err := form.SetField(passFieldRegex, password); err != nil {
		return err
	}
	res, err := form.Submit(ctx, c.Http, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit credentials")
		return err
	}

	return c.submitAssertion(ctx, res)
}

// LoginCertificate authenticates the session with the TLS client
// certificate the client was constructed with.
func (c *Client) LoginCertificate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:LoginCertificate")
	defer span.End()

	credPage, err := c.enterIdp(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach the credentials page")
		return err
	}

	form, err := htmlutil.FindForm(credPage, certActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the certificate form")
		return err
	}
	if err := form.Check(prefNameRegex); err != nil {
		return err
	}
	res, err := form.Submit(ctx, c.Http, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit certificate preference")
		return err
	}

	return c.submitAssertion(ctx, res)
}

// enterIdp walks the entry redirect, the WAYF selection form and the
// confirmation form, stopping at the identity provider's credentials
// page.
func (c *Client) enterIdp(ctx context.Context) (*goquery.Document, error) {
	doc, err := c.GetDocument(ctx, "/atstellar")
	if err != nil {
		return nil, err
	}

	wayf, err := htmlutil.FindForm(doc, wayfActionRegex)
	if err != nil {
		return nil, err
	}
	if err := wayf.Check(permNameRegex); err != nil {
		return nil, err
	}
	res, err := wayf.Submit(ctx, c.Http, nil)
	if err != nil {
		return nil, err
	}
	doc, err = document(res)
	if err != nil {
		return nil, err
	}

	confirm, err := htmlutil.FindForm(doc, wayfActionRegex)
	if err != nil {
		return nil, err
	}
	res, err = confirm.Submit(ctx, c.Http, selectNameRegex)
	if err != nil {
		return nil, err
	}
	return document(res)
}

// submitAssertion completes login by auto-submitting the federation
// assertion form. Its absence means the supplied credentials were
// rejected.
func (c *Client) submitAssertion(ctx context.Context, res *resty.Response) error {
	doc, err := document(res)
	if err != nil {
		return err
	}

	saml, err := htmlutil.FindForm(doc, samlActionRegex)
	if err != nil {
		var malformed *htmlutil.MalformedPageError
		if errors.As(err, &malformed) {
			return ErrAuthenticationFailed
		}
		return err
	}
	_, err = saml.Submit(ctx, c.Http, nil)
	return err
}
