package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/novaplayer/api/internal/shared"
)

// newTestService wires a SpotifyService against the handler with a connected
// user "u1" whose Spotify account id is "spotify-u1".
func newTestService(t *testing.T, handler http.Handler) (*SpotifyService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := newFakeStore()
	store.addConnectedUser(t, "u1", "access-1", "refresh-1", testCipher(t))
	spotifyID := "spotify-u1"
	store.users["u1"].SpotifyID = &spotifyID

	gw, _ := newTestGateway(t, store, server.URL, "http://unused")
	return NewSpotifyService(gw, NewMemoryCache(), store, nil), server
}

func TestUserPlaylists(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/playlists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"items":[{"id":"p1","name":"Morning"},{"id":"p2","name":"Focus"}],"total":2}`)
	}))

	playlists, err := svc.UserPlaylists(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserPlaylists: %v", err)
	}
	if len(playlists) != 2 || playlists[0].Name != "Morning" {
		t.Errorf("unexpected playlists %+v", playlists)
	}
}

func TestSearch(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "daft punk" || q.Get("type") != "track,artist" || q.Get("limit") != "10" {
			t.Errorf("unexpected query %v", q)
		}
		fmt.Fprint(w, `{"tracks":{"items":[{"id":"t1","name":"One More Time"}]},"artists":{"items":[{"id":"a1","name":"Daft Punk"}]}}`)
	}))

	result, err := svc.Search(context.Background(), "u1", "daft punk")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Tracks.Items) != 1 || result.Tracks.Items[0].Name != "One More Time" {
		t.Errorf("unexpected tracks %+v", result.Tracks.Items)
	}
	if len(result.Artists.Items) != 1 {
		t.Errorf("unexpected artists %+v", result.Artists.Items)
	}
}

func TestTopTracksDegradesToEmpty(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	tracks := svc.TopTracks(context.Background(), "u1")
	if tracks == nil || len(tracks) != 0 {
		t.Errorf("expected empty slice on upstream failure, got %v", tracks)
	}
}

func TestCreatePlaylist(t *testing.T) {
	t.Run("creates under the spotify account and uploads the cover", func(t *testing.T) {
		var created, uploaded bool
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/users/spotify-u1/playlists":
				created = true
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"name":"Road Trip","description":"miles of it","public":false}` {
					t.Errorf("unexpected creation body %s", body)
				}
				fmt.Fprint(w, `{"id":"p9","name":"Road Trip"}`)
			case r.Method == http.MethodPut && r.URL.Path == "/playlists/p9/images":
				uploaded = true
				if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
					t.Errorf("expected image/jpeg, got %q", ct)
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != "base64jpegdata" {
					t.Errorf("expected raw base64 body, got %q", body)
				}
				w.WriteHeader(http.StatusAccepted)
			default:
				t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			}
		}))

		playlist, err := svc.CreatePlaylist(context.Background(), "u1", "Road Trip", "miles of it", "base64jpegdata")
		if err != nil {
			t.Fatalf("CreatePlaylist: %v", err)
		}
		if playlist.ID != "p9" {
			t.Errorf("unexpected playlist %+v", playlist)
		}
		if !created || !uploaded {
			t.Errorf("created=%v uploaded=%v", created, uploaded)
		}
	})

	t.Run("a failed cover upload is not fatal", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"id":"p9","name":"Road Trip"}`)
		}))

		playlist, err := svc.CreatePlaylist(context.Background(), "u1", "Road Trip", "", "base64jpegdata")
		if err != nil {
			t.Fatalf("expected playlist despite failed upload, got %v", err)
		}
		if playlist.ID != "p9" {
			t.Errorf("unexpected playlist %+v", playlist)
		}
	})

	t.Run("requires a linked spotify account", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no upstream call expected")
		}))

		if _, err := svc.CreatePlaylist(context.Background(), "nobody", "x", "", ""); !errors.Is(err, shared.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}

func TestDeletePlaylistUnfollows(t *testing.T) {
	var gotMethod, gotPath string
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := svc.DeletePlaylist(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("DeletePlaylist: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/playlists/p1/followers" {
		t.Errorf("expected DELETE /playlists/p1/followers, got %s %s", gotMethod, gotPath)
	}
}

func TestCurrentlyPlaying(t *testing.T) {
	t.Run("condenses the player state", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"item":{"id":"t1","name":"Song"},"is_playing":true,"progress_ms":4200,"device":{"id":"d1","name":"Desk"}}`)
		}))

		state := svc.CurrentlyPlaying(context.Background(), "u1")
		if state == nil {
			t.Fatal("expected playback state")
		}
		if state.Item.ID != "t1" || !state.IsPlaying || state.ProgressMS != 4200 {
			t.Errorf("unexpected state %+v", state)
		}
		if state.DeviceID == nil || *state.DeviceID != "d1" {
			t.Errorf("expected device id d1, got %v", state.DeviceID)
		}
	})

	t.Run("nothing playing yields nil", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		if state := svc.CurrentlyPlaying(context.Background(), "u1"); state != nil {
			t.Errorf("expected nil state, got %+v", state)
		}
	})

	t.Run("upstream failure yields nil", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		if state := svc.CurrentlyPlaying(context.Background(), "u1"); state != nil {
			t.Errorf("expected nil state, got %+v", state)
		}
	})

	t.Run("polls are served from cache within the ttl", func(t *testing.T) {
		calls := 0
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprint(w, `{"item":{"id":"t1","name":"Song"},"is_playing":true}`)
		}))

		for i := 0; i < 5; i++ {
			svc.CurrentlyPlaying(context.Background(), "u1")
		}
		if calls != 1 {
			t.Errorf("expected one upstream call for burst polling, got %d", calls)
		}
	})
}

func TestFollowsArtistCached(t *testing.T) {
	calls := 0
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if q.Get("type") != "artist" || q.Get("ids") != "a1" {
			t.Errorf("unexpected query %v", q)
		}
		fmt.Fprint(w, `[true]`)
	}))

	for i := 0; i < 3; i++ {
		if !svc.FollowsArtist(context.Background(), "u1", "a1") {
			t.Error("expected follows=true")
		}
	}
	if calls != 1 {
		t.Errorf("expected one upstream call, got %d", calls)
	}
}

func TestRegion(t *testing.T) {
	t.Run("reads the profile country", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"spotify-u1","country":"DE"}`)
		}))
		if region := svc.Region(context.Background(), "u1"); region != "DE" {
			t.Errorf("expected DE, got %q", region)
		}
	})

	t.Run("defaults when the profile is unavailable", func(t *testing.T) {
		svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		if region := svc.Region(context.Background(), "u1"); region != "US" {
			t.Errorf("expected default US, got %q", region)
		}
	})
}

func TestRecentlyPlayedDedup(t *testing.T) {
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"track":{"id":"t1","name":"A"},"played_at":"2026-08-30T10:00:00Z"},
			{"track":{"id":"t2","name":"B"},"played_at":"2026-08-30T09:55:00Z"},
			{"track":{"id":"t1","name":"A"},"played_at":"2026-08-30T09:50:00Z"},
			{"track":{"id":"t3","name":"C"},"played_at":"2026-08-30T09:45:00Z"}
		]}`)
	}))

	items := svc.RecentlyPlayed(context.Background(), "u1")
	if len(items) != 3 {
		t.Fatalf("expected 3 deduped items, got %d", len(items))
	}
	want := []string{"t1", "t2", "t3"}
	for i, id := range want {
		if items[i].Track.ID != id {
			t.Errorf("item %d: expected %s, got %s", i, id, items[i].Track.ID)
		}
	}
}

func TestPlaySendsShapedBody(t *testing.T) {
	var gotBody, gotQuery string
	svc, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))

	err := svc.Play(context.Background(), "u1", "d1", "spotify:playlist:p1", []string{"spotify:track:t1"})
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if gotQuery != "device_id=d1" {
		t.Errorf("expected device_id query, got %q", gotQuery)
	}
	if gotBody != `{"context_uri":"spotify:playlist:p1","offset":{"uri":"spotify:track:t1"}}` {
		t.Errorf("unexpected play body %s", gotBody)
	}
}

func TestVideoLookup(t *testing.T) {
	t.Run("returns the first hit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("q") != "Song Artist official video" {
				t.Errorf("unexpected query %q", q.Get("q"))
			}
			if q.Get("key") != "yt-key" {
				t.Errorf("expected api key, got %q", q.Get("key"))
			}
			fmt.Fprint(w, `{"items":[{"id":{"videoId":"v123"},"snippet":{"title":"Song (Official Video)","thumbnails":{"high":{"url":"http://img"}}}}]}`)
		}))
		defer server.Close()

		svc := NewVideoService("yt-key", nil)
		svc.searchURL = server.URL

		video := svc.FindVideo(context.Background(), "Song", "Artist")
		if video == nil {
			t.Fatal("expected a video")
		}
		if video.VideoID != "v123" || video.URL != "https://www.youtube.com/watch?v=v123" {
			t.Errorf("unexpected video %+v", video)
		}
	})

	t.Run("no key disables lookups", func(t *testing.T) {
		svc := NewVideoService("", nil)
		if video := svc.FindVideo(context.Background(), "Song", "Artist"); video != nil {
			t.Errorf("expected nil without a key, got %+v", video)
		}
	})

	t.Run("quota errors degrade to nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		svc := NewVideoService("yt-key", nil)
		svc.searchURL = server.URL

		if video := svc.FindVideo(context.Background(), "Song", "Artist"); video != nil {
			t.Errorf("expected nil on quota error, got %+v", video)
		}
	})
}
