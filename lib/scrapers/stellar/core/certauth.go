package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"

	"stellar/lib/htmlutil"
	"stellar/lib/telemetry"
)

var ErrInvalidCredentials = fmt.Errorf("invalid kerberos credentials")

const DefaultCertAuthorityUrl = "https://ca.mit.edu"

var (
	caLoginActionRegex = regexp.MustCompile(`login`)
	caFormActionRegex  = regexp.MustCompile(`ca`)
	loginFieldRegex    = regexp.MustCompile(`login`)
	mitIdFieldRegex    = regexp.MustCompile(`mitid`)
	lifetimeFieldRegex = regexp.MustCompile(`life`)
	downloadNameRegex  = regexp.MustCompile(`download`)
)

// KerberosCredentials are the inputs the certificate authority portal
// asks for. MitId is the 9-character institutional ID starting with 9.
type KerberosCredentials struct {
	Username string
	Password string
	MitId    string
	// certificate lifetime in days, defaults to 1
	TtlDays int
}

type IssuedCertificate struct {
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

// KeyPEM renders the private key in PKCS#1 PEM form.
func (ic *IssuedCertificate) KeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(ic.Key),
	})
}

// CertificatePEM renders the certificate in PEM form.
func (ic *IssuedCertificate) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: ic.Certificate.Raw,
	})
}

// CertAuthority is a session against the certificate authority portal.
// The authority serves a certificate from a public trust root, not the
// institution's self-signed one, so it gets its own client.
type CertAuthority struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type CertAuthorityOptions struct {
	// defaults to DefaultCertAuthorityUrl
	BaseUrl string
}

func NewCertAuthority(opts CertAuthorityOptions) (*CertAuthority, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultCertAuthorityUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/stellar/certauth")

	return &CertAuthority{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// Issue logs into the certificate authority, emulates the browser
// keygen step with a fresh RSA key pair, and downloads the issued
// certificate.
func (ca *CertAuthority) Issue(ctx context.Context, creds KerberosCredentials) (*IssuedCertificate, error) {
	ctx, span := tracer.Start(ctx, "certauthority:Issue")
	defer span.End()

	res, err := ca.Http.R().SetContext(ctx).Get("/ca/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch the login page")
		return nil, err
	}
	doc, err := document(res)
	if err != nil {
		return nil, err
	}

	login, err := htmlutil.FindForm(doc, caLoginActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the login form")
		return nil, err
	}
	if err := login.SetField(loginFieldRegex, creds.Username); err != nil {
		return nil, err
	}
	if err := login.SetField(passFieldRegex, creds.Password); err != nil {
		return nil, err
	}
	if err := login.SetField(mitIdFieldRegex, creds.MitId); err != nil {
		return nil, err
	}
	res, err = login.Submit(ctx, ca.Http, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the login form")
		return nil, err
	}
	doc, err = document(res)
	if err != nil {
		return nil, err
	}

	keygenForm, err := htmlutil.FindForm(doc, caFormActionRegex)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find the keygen form")
		return nil, err
	}
	// rejected credentials bounce the keygen form back to the login action
	if caLoginActionRegex.MatchString(keygenForm.Action) {
		span.SetStatus(codes.Error, ErrInvalidCredentials.Error())
		return nil, ErrInvalidCredentials
	}

	ttl := creds.TtlDays
	if ttl <= 0 {
		ttl = 1
	}
	if err := keygenForm.SetField(lifetimeFieldRegex, strconv.Itoa(ttl)); err != nil {
		return nil, err
	}

	challenge := doc.Find("keygen").First().AttrOr("challenge", "")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	spkac, err := signSPKAC(key, challenge)
	if err != nil {
		return nil, err
	}
	keygenName := doc.Find("keygen").First().AttrOr("name", "")
	if keygenName == "" {
		return nil, &htmlutil.MalformedPageError{Page: keygenForm.Action, Missing: "keygen element"}
	}
	keygenForm.Values.Set(keygenName, spkac)

	res, err = keygenForm.Submit(ctx, ca.Http, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the keygen form")
		return nil, err
	}
	doc, err = document(res)
	if err != nil {
		return nil, err
	}

	frameSrc := findFrame(doc, downloadNameRegex)
	if frameSrc == "" {
		span.SetStatus(codes.Error, "failed to find the download frame")
		return nil, &htmlutil.MalformedPageError{Page: pageUrlOf(doc), Missing: "download frame"}
	}

	certRes, err := ca.Http.R().SetContext(ctx).Get(htmlutil.Resolve(doc, frameSrc))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download the certificate")
		return nil, err
	}
	cert, err := parseCertificate(certRes.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse the issued certificate")
		return nil, err
	}

	return &IssuedCertificate{Key: key, Certificate: cert}, nil
}

func findFrame(doc *goquery.Document, name *regexp.Regexp) string {
	src := ""
	doc.Find("frame, iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if name.MatchString(s.AttrOr("name", "")) {
			src = s.AttrOr("src", "")
			return false
		}
		return true
	})
	return src
}

func pageUrlOf(doc *goquery.Document) string {
	if doc.Url == nil {
		return ""
	}
	return doc.Url.String()
}

// parseCertificate accepts PEM or raw DER certificate bytes.
func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	return x509.ParseCertificate(data)
}
