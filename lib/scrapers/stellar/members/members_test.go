package members

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"stellar/lib/scrapers/stellar/core"
	"stellar/lib/scrapers/stellar/course"
	"stellar/lib/telemetry"
)

func newMembersPortal(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/course/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="mainnav">
			<a href="/gb/">Gradebook</a>
			<a href="/mem/">Membership</a>
		</div></body></html>`)
	})

	mux.HandleFunc("/mem/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="toolBox"><dl>
			<dd><a href="/mem/photos">Member Photos</a></dd>
		</dl></div></body></html>`)
	})

	mux.HandleFunc("/mem/photos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content"><div class="cols">
			<div>
				<img src="/mem/pictures/half/alice.jpg"/>
				<a href="mailto:alice@example.edu">Alice Liddell</a>
			</div>
			<div>
				<img src="/mem/pictures/half/bob.jpg"/>
				<a href="mailto:bob@example.edu">Bob Dobbs</a>
			</div>
			<div>
				<a href="mailto:ghost@example.edu">No Photo</a>
			</div>
		</div></div></body></html>`)
	})

	mux.HandleFunc("/mem/pictures/full/alice.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "alice portrait bytes")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func openPhotos(t *testing.T, ctx context.Context, baseUrl string) *PhotoList {
	client, err := core.NewClient(ctx, core.ClientOptions{BaseUrl: baseUrl})
	require.NoError(t, err)
	c, err := course.New(ctx, client, "/course/index.html", "6.006")
	require.NoError(t, err)
	m, err := New(ctx, c)
	require.NoError(t, err)
	photos, err := m.Photos(ctx)
	require.NoError(t, err)
	return photos
}

func TestPhotos(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/stellar/members")
	defer cleanup()

	ctx := context.Background()
	server := newMembersPortal(t)
	photos := openPhotos(t, ctx, server.URL)

	// the card without a portrait is dropped
	require.Len(t, photos.All(), 2)

	alice := photos.WithEmail("alice@example.edu")
	require.NotNil(t, alice)
	require.Equal(t, "Alice Liddell", alice.Name)
	require.Equal(t, server.URL+"/mem/pictures/full/alice.jpg", alice.Url)

	require.Equal(t, alice, photos.Named("Alice Liddell"))
	require.Equal(t, alice, photos.Closest("alice liddel"))
	require.Nil(t, photos.WithEmail("ghost@example.edu"))

	data, err := alice.Data(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice portrait bytes", string(data))
}
