package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/novaplayer/api/internal/auth"
	"github.com/novaplayer/api/internal/repositories"
	"github.com/novaplayer/api/internal/services"
	"github.com/novaplayer/api/internal/shared"
)

const testSecret = "test-secret"

type mailRecorder struct {
	codes map[string]string
}

func (m *mailRecorder) SendVerificationCode(to, name, code string) error {
	m.codes[to] = code
	return nil
}

func (m *mailRecorder) SendPasswordReset(to, name, link string) error { return nil }

type testEnv struct {
	server   *httptest.Server
	users    *repositories.UserRepository
	mailer   *mailRecorder
	upstream *httptest.Server
}

// newTestEnv stands up the whole stack over an in-memory database and a fake
// Spotify upstream.
func newTestEnv(t *testing.T, upstream http.Handler) *testEnv {
	t.Helper()

	db, err := shared.NewDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cipher, err := shared.NewCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	if upstream == nil {
		upstream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})
	}
	fakeSpotify := httptest.NewServer(upstream)
	t.Cleanup(fakeSpotify.Close)

	users := repositories.NewUserRepository(db)
	mailer := &mailRecorder{codes: make(map[string]string)}

	authSvc := auth.NewService(auth.ServiceOpts{
		Users:       users,
		Cipher:      cipher,
		Mailer:      mailer,
		JWTSecret:   testSecret,
		TokenTTL:    time.Hour,
		FrontendURL: "http://front.test",
	})

	gateway := services.NewGateway(services.GatewayOpts{
		Store:    users,
		Cipher:   cipher,
		ClientID: "client-id",
		BaseURL:  fakeSpotify.URL,
	})
	cache := services.NewMemoryCache()
	spotifySvc := services.NewSpotifyService(gateway, cache, users, nil)

	srv := New(Opts{
		Auth:           authSvc,
		Spotify:        spotifySvc,
		Video:          services.NewVideoService("", nil),
		Gateway:        gateway,
		JWTSecret:      testSecret,
		FrontendURL:    "http://front.test",
		AllowedOrigins: []string{"http://front.test"},
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, users: users, mailer: mailer, upstream: fakeSpotify}
}

func (env *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var value T
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

// registerAndLogin walks the happy path and returns a session token.
func registerAndLogin(t *testing.T, env *testEnv) string {
	t.Helper()

	resp := env.request(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "ana@example.com", "name": "Ana", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPost, "/auth/verify", "", map[string]string{
		"email": "ana@example.com", "code": env.mailer.codes["ana@example.com"],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	body := decode[map[string]any](t, resp)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("expected a session token")
	}
	return token
}

// connectSpotify attaches Spotify tokens to the registered user.
func connectSpotify(t *testing.T, env *testEnv) {
	t.Helper()
	user, err := env.users.GetByEmail("ana@example.com")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if err := env.users.UpdateSpotifyTokens(user.ID, "access-1", nil); err != nil {
		t.Fatalf("store tokens: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.request(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("Register Verify Login Me", func(t *testing.T) {
		token := registerAndLogin(t, env)

		resp := env.request(t, http.MethodGet, "/auth/me", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("me: expected 200, got %d", resp.StatusCode)
		}
		profile := decode[map[string]any](t, resp)
		if profile["email"] != "ana@example.com" {
			t.Errorf("unexpected profile %v", profile)
		}
	})

	t.Run("Duplicate Email Conflicts", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/auth/register", "", map[string]string{
			"email": "ana@example.com", "name": "Ana", "password": "pw",
		})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("Wrong Password Is Unauthorized", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email": "ana@example.com", "password": "wrong",
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Missing Fields Are Rejected", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "x@example.com"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestUnverifiedLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	env.request(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "ana@example.com", "name": "Ana", "password": "hunter22",
	})

	resp := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for unverified account, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("Missing Token", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/playlists", "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Garbage Token", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/playlists", "not.a.token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestSpotifyProxy(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/playlists":
			fmt.Fprint(w, `{"items":[{"id":"p1","name":"Morning"}],"total":1}`)
		case "/me/player/currently-playing":
			fmt.Fprint(w, `{"item":{"id":"t1","name":"Song"},"is_playing":true}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	})

	env := newTestEnv(t, upstream)
	token := registerAndLogin(t, env)

	t.Run("Requires A Linked Account", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/playlists", token, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 before linking, got %d", resp.StatusCode)
		}
	})

	connectSpotify(t, env)

	t.Run("Playlists", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/playlists", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		playlists := decode[[]map[string]any](t, resp)
		if len(playlists) != 1 || playlists[0]["name"] != "Morning" {
			t.Errorf("unexpected playlists %v", playlists)
		}
	})

	t.Run("Currently Playing", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/currently-playing", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Play Validates Nothing But Forwards", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/spotify/play", token, map[string]any{
			"device_id": "d1", "context_uri": "spotify:playlist:p1",
		})
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Volume Range", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/spotify/volume", token, map[string]any{"volume_percent": 130})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Search Requires A Query", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/spotify/search", token, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestSpotifyConsentAndCallback(t *testing.T) {
	env := newTestEnv(t, nil)

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	t.Run("Consent Redirects With State", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/auth/spotify")
		if err != nil {
			t.Fatalf("consent: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}

		location := resp.Header.Get("Location")
		if !strings.Contains(location, "state=") {
			t.Errorf("expected state in consent url, got %q", location)
		}

		var stateCookieSet bool
		for _, cookie := range resp.Cookies() {
			if cookie.Name == stateCookie && cookie.Value != "" {
				stateCookieSet = true
			}
		}
		if !stateCookieSet {
			t.Error("expected the state cookie to be set")
		}
	})

	t.Run("Callback Rejects A State Mismatch", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/auth/spotify/callback?code=abc&state=forged", nil)
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: "genuine"})

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("callback: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Callback Without A Cookie Is Rejected", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/auth/spotify/callback?code=abc&state=genuine")
		if err != nil {
			t.Fatalf("callback: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}
