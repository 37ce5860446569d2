package course

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"stellar/lib/htmlutil"
	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/telemetry"
)

// newCoursePortal serves an entry page listing one real course plus a
// decoy link, and the course's own page.
func newCoursePortal(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/atstellar", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/S/course/6/fa11/6.006/index.html"><span class="courseNo">6.006</span></a>
			<a href="/S/course/news/index.html"><span class="courseNo"></span></a>
		</body></html>`)
	})

	mux.HandleFunc("/S/course/6/fa11/6.006/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div id="mainnav">
				<a href="gradebook/">Gradebook</a>
				<a href="homework/">Homework</a>
				<a href="member/">Membership</a>
			</div>
			<p id="toolset">Course Tools</p>
		</body></html>`)
	})

	mux.HandleFunc("/S/course/news/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>news</p></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseUrl string) *core.Client {
	client, err := core.NewClient(context.Background(), core.ClientOptions{BaseUrl: baseUrl})
	require.NoError(t, err)
	return client
}

func TestMine(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/course")
	defer cleanup()

	ctx := context.Background()
	server := newCoursePortal(t)
	client := newTestClient(t, server.URL)

	courses, err := Mine(ctx, client)
	require.NoError(t, err)
	require.Len(t, courses, 1)

	c := courses[0]
	require.Equal(t, "6.006", c.Number)
	require.True(t, c.IsAdmin)

	gradebookUrl, err := c.NavigationUrl("Gradebook")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/S/course/6/fa11/6.006/gradebook/", gradebookUrl)
	require.True(t, strings.HasPrefix(gradebookUrl, server.URL+"/S/course/6/fa11/6.006/"))

	_, err = c.NavigationUrl("Forum")
	require.Error(t, err)
}

func TestForTermMatchesListing(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/course")
	defer cleanup()

	ctx := context.Background()
	server := newCoursePortal(t)
	client := newTestClient(t, server.URL)

	listed, err := Mine(ctx, client)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	built, err := ForTerm(ctx, client, "6.006", 2011, Fall)
	require.NoError(t, err)

	require.Equal(t, listed[0].Url, built.Url)
	if diff := cmp.Diff(listed[0].Navigation, built.Navigation); diff != "" {
		t.Fatalf("navigation mismatch (-listed +built):\n%s", diff)
	}
}

func TestNewRejectsNonCoursePage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/course")
	defer cleanup()

	ctx := context.Background()
	server := newCoursePortal(t)
	client := newTestClient(t, server.URL)

	_, err := New(ctx, client, "/S/course/news/index.html", "news")
	var malformed *htmlutil.MalformedPageError
	require.ErrorAs(t, err, &malformed)
}

func TestSemesterCodes(t *testing.T) {
	require.Equal(t, "fa", Fall.Code())
	require.Equal(t, "sp", Spring.Code())
	require.Equal(t, "su", Summer.Code())
	require.Equal(t, "ia", IAP.Code())
}
