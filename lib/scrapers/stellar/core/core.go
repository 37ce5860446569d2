package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	_ "embed"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"

	"stellar/lib/telemetry"
)

var tracer = otel.Tracer("scrapers/stellar/core")

const DefaultBaseUrl = "https://stellar.mit.edu"

// The institution's self-signed CA certificate, the trust anchor for
// all portal traffic.
//
//go:embed mitca.crt
var mitCA []byte

// Client is an HTTP session bound to the portal origin. It owns the
// cookie jar the login flow populates; it is not safe for concurrent
// use, at most one call should be in flight at a time.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl string
	// PEM trust anchor, defaults to the bundled institution CA
	CACert []byte
	// optional TLS client certificate for certificate login
	Certificate *tls.Certificate
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	caCert := opts.CACert
	if caCert == nil {
		caCert = mitCA
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("could not parse CA certificate")
	}
	tlsConfig := &tls.Config{RootCAs: pool}
	if opts.Certificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*opts.Certificate}
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetTLSClientConfig(tlsConfig)

	client.SetHeader("user-agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	// the login flow bounces across the federation broker and the
	// identity provider, so redirects cannot be pinned to one domain
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/stellar/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return c, nil
}

// Get fetches a page. ref may be absolute or relative to the portal
// origin. Every call re-fetches; nothing is cached.
func (c *Client) Get(ctx context.Context, ref string) (*resty.Response, error) {
	return c.Http.R().
		SetContext(ctx).
		Get(ref)
}

// GetDocument fetches and parses a page. The returned document carries
// its final URL (after redirects) so relative links resolve correctly.
func (c *Client) GetDocument(ctx context.Context, ref string) (*goquery.Document, error) {
	res, err := c.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return document(res)
}

// GetBytes fetches a file's raw contents.
func (c *Client) GetBytes(ctx context.Context, ref string) ([]byte, error) {
	res, err := c.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func document(res *resty.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		doc.Url = res.RawResponse.Request.URL
	}
	return doc, nil
}

// LoadCertificate builds a TLS client certificate from PEM bytes or
// file paths. An argument naming an existing file is read from disk,
// anything else is treated as PEM content.
func LoadCertificate(certPEMOrPath, keyPEMOrPath string) (tls.Certificate, error) {
	certPEM, err := readPEMOrPath(certPEMOrPath)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := readPEMOrPath(keyPEMOrPath)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func readPEMOrPath(s string) ([]byte, error) {
	if _, err := os.Stat(s); err == nil {
		return os.ReadFile(s)
	}
	return []byte(s), nil
}
