package homework

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/telemetry"
)

func newHomeworkPortal(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/course/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="mainnav">
			<a href="/gb/">Gradebook</a>
			<a href="/hw/">Homework</a>
		</div></body></html>`)
	})

	mux.HandleFunc("/hw/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content">
			<a href="/hw/syllabus">Syllabus</a>
			<a href="/hw/assignment/ps1">Problem Set 1</a>
			<a href="/hw/assignment/broken">Broken Entry</a>
		</div></body></html>`)
	})

	mux.HandleFunc("/hw/assignment/ps1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content">
			<p><b>Problem Set 1</b></p>
			<table class="gradeTable"><tbody>
				<tr><td>Alice Liddell</td>
					<td><a href="/hw/grade/1">1</a></td>
					<td><a href="/hw/detail/ps1/alice">1</a></td></tr>
				<tr><td>no submission yet</td></tr>
			</tbody></table>
		</div></body></html>`)
	})

	// linked from the listing but not an assignment page
	mux.HandleFunc("/hw/assignment/broken", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content"><p>moved</p></div></body></html>`)
	})

	mux.HandleFunc("/hw/detail/ps1/alice", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div id="content"><h4><a href="mailto:alice@example.edu">Alice Liddell</a></h4></div>
			<div id="rosterBox">
				<span class="instruction"><strong>Date Submitted</strong>: Sep 20, 2011 10:15 PM</span>
				<a href="/hw/studentWork/ps1/alice.pdf">Problem Set 1</a>
			</div>
			<div id="comments"><a href="/hw/detail/ps1/alice/add">Add a comment</a></div>
		</body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func openHomework(t *testing.T, ctx context.Context, baseUrl string) *List {
	client, err := core.NewClient(ctx, core.ClientOptions{BaseUrl: baseUrl})
	require.NoError(t, err)
	c, err := course.New(ctx, client, "/course/index.html", "6.006")
	require.NoError(t, err)
	list, err := New(ctx, c)
	require.NoError(t, err)
	return list
}

func TestList(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/homework")
	defer cleanup()

	ctx := context.Background()
	server := newHomeworkPortal(t)
	list := openHomework(t, ctx, server.URL)

	// the syllabus link misses the selector, the broken entry fails
	// marker validation
	require.Len(t, list.All(), 1)
	require.NotNil(t, list.Named("Problem Set 1"))
	require.Nil(t, list.Named("Broken Entry"))
}

func TestSubmissions(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/homework")
	defer cleanup()

	ctx := context.Background()
	server := newHomeworkPortal(t)
	list := openHomework(t, ctx, server.URL)

	a := list.Named("Problem Set 1")
	require.NotNil(t, a)

	submissions, err := a.Submissions(ctx)
	require.NoError(t, err)
	require.Len(t, submissions, 1)

	s := submissions[0]
	require.Equal(t, "Alice Liddell", s.Name)
	require.Equal(t, "alice@example.edu", s.Email)
	require.Equal(t, server.URL+"/hw/studentWork/ps1/alice.pdf", s.FileUrl)

	submitted := time.Date(2011, 9, 20, 22, 15, 0, 0, time.FixedZone("GMT-4", -4*60*60))
	require.True(t, s.SubmittedAt.Equal(submitted))
}

func TestNewAssignmentRejectsWrongPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/homework")
	defer cleanup()

	ctx := context.Background()
	server := newHomeworkPortal(t)
	client, err := core.NewClient(ctx, core.ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	_, err = NewAssignment(ctx, client, server.URL+"/hw/assignment/broken", "Broken Entry")
	require.Error(t, err)
}
