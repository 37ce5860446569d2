package htmlutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func parseDocument(t *testing.T, page, base string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	if base != "" {
		u, err := url.Parse(base)
		require.NoError(t, err)
		doc.Url = u
	}
	return doc
}

func TestFormSeedsBrowserDefaults(t *testing.T) {
	doc := parseDocument(t, `<html><body>
		<form action="/edit/save" method="post">
			<input type="hidden" name="token" value="t0k3n"/>
			<input type="text" name="title" value="draft"/>
			<input type="checkbox" name="private" value="yes"/>
			<input type="checkbox" name="notify" value="on" checked/>
			<input type="file" name="upload"/>
			<select name="category">
				<option value="a">A</option>
				<option value="b" selected>B</option>
			</select>
			<textarea name="body">hello</textarea>
			<input type="submit" name="save" value="Save"/>
			<input type="submit" name="discard" value="Discard"/>
		</form>
	</body></html>`, "http://portal.test/edit")

	form, err := FindForm(doc, regexp.MustCompile(`save`))
	require.NoError(t, err)

	require.Equal(t, "http://portal.test/edit/save", form.Action)
	require.Equal(t, "POST", form.Method)
	require.Equal(t, "t0k3n", form.Values.Get("token"))
	require.Equal(t, "draft", form.Values.Get("title"))
	require.Equal(t, "b", form.Values.Get("category"))
	require.Equal(t, "hello", form.Values.Get("body"))

	// only the checked box is seeded
	require.Equal(t, "on", form.Values.Get("notify"))
	require.Empty(t, form.Values.Get("private"))
	// buttons and file inputs stay out of the value set
	require.Empty(t, form.Values.Get("save"))
	require.Empty(t, form.Values.Get("upload"))
	require.Len(t, form.Buttons, 2)

	require.NoError(t, form.Check(regexp.MustCompile(`private`)))
	require.Equal(t, "yes", form.Values.Get("private"))
}

func TestFindFormMissing(t *testing.T) {
	doc := parseDocument(t, `<html><body><form action="/other"></form></body></html>`, "")

	_, err := FindForm(doc, regexp.MustCompile(`save`))
	var malformed *MalformedPageError
	require.True(t, errors.As(err, &malformed))
}

func TestSetFieldAndSetAll(t *testing.T) {
	doc := parseDocument(t, `<html><body>
		<form action="/addcomment" method="post">
			<input type="hidden" name="newCommentRaw" value=""/>
			<input type="text" name="newComment" value=""/>
		</form>
	</body></html>`, "")

	form, err := FindForm(doc, regexp.MustCompile(`addcomment`))
	require.NoError(t, err)

	require.NoError(t, form.SetField(regexp.MustCompile(`(?i)newcomment`), "first only"))
	require.Equal(t, "first only", form.Values.Get("newCommentRaw"))
	require.Empty(t, form.Values.Get("newComment"))

	require.NoError(t, form.SetAll(regexp.MustCompile(`(?i)newcomment`), "both"))
	require.Equal(t, "both", form.Values.Get("newCommentRaw"))
	require.Equal(t, "both", form.Values.Get("newComment"))

	err = form.SetField(regexp.MustCompile(`missing`), "x")
	var malformed *MalformedPageError
	require.True(t, errors.As(err, &malformed))
}

func TestSubmitPost(t *testing.T) {
	var method, contentType string
	var posted url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("content-type")
		require.NoError(t, r.ParseForm())
		posted = r.PostForm
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	doc := parseDocument(t, `<html><body>
		<form action="/save" method="post">
			<input type="hidden" name="token" value="t0k3n"/>
			<input type="submit" name="save" value="Save"/>
			<input type="submit" name="discard" value="Discard"/>
		</form>
	</body></html>`, server.URL)

	form, err := FindForm(doc, regexp.MustCompile(`save`))
	require.NoError(t, err)

	_, err = form.Submit(context.Background(), resty.New(), regexp.MustCompile(`save`))
	require.NoError(t, err)

	require.Equal(t, "POST", method)
	require.Contains(t, contentType, "application/x-www-form-urlencoded")
	require.Equal(t, "t0k3n", posted.Get("token"))
	require.Equal(t, "Save", posted.Get("save"))
	// only the pressed button rides along
	require.Empty(t, posted.Get("discard"))
}

func TestSubmitGet(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	doc := parseDocument(t, `<html><body>
		<form action="/search">
			<input type="text" name="q" value="algorithms"/>
			<input type="submit" name="go" value="Go"/>
		</form>
	</body></html>`, server.URL)

	form, err := FindForm(doc, regexp.MustCompile(`search`))
	require.NoError(t, err)

	_, err = form.Submit(context.Background(), resty.New(), nil)
	require.NoError(t, err)

	require.Equal(t, "algorithms", query.Get("q"))
	require.Equal(t, "Go", query.Get("go"))
}

func TestSubmitMultipart(t *testing.T) {
	var fileName, fileBody, comment string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		comment = r.FormValue("comment")

		file, header, err := r.FormFile("upload")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		fileName = header.Filename
		fileBody = string(data)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	doc := parseDocument(t, `<html><body>
		<form action="/addcomment" method="post" enctype="multipart/form-data">
			<input type="text" name="comment" value=""/>
			<input type="file" name="upload"/>
			<input type="submit" name="submit" value="Post"/>
		</form>
	</body></html>`, server.URL)

	form, err := FindForm(doc, regexp.MustCompile(`addcomment`))
	require.NoError(t, err)
	require.NoError(t, form.SetField(regexp.MustCompile(`comment`), "see attached"))

	_, err = form.SubmitMultipart(context.Background(), resty.New(), nil, "notes.txt", "text/plain", []byte("file body"))
	require.NoError(t, err)

	require.Equal(t, "see attached", comment)
	require.Equal(t, "notes.txt", fileName)
	require.Equal(t, "file body", fileBody)
}
