package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testEnv is a fake identity provider and API plus the environment pointing at them.
type testEnv struct {
	t       *testing.T
	access  string
	revoked atomic.Bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	e := &testEnv{t: t}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "alice",
		"given_name":         "Alice",
		"realm_access":       map[string]any{"roles": []string{"user"}},
		"exp":                time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	e.access = access

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": access, "refresh_token": "R1", "token_type": "Bearer", "expires_in": 300})
	})
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		e.revoked.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	idp := httptest.NewServer(mux)
	t.Cleanup(idp.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+access {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `","page":"` + r.URL.Query().Get("page") + `"}`))
	}))
	t.Cleanup(api.Close)

	t.Setenv("TOKENWARD_PROVIDER__BASE_URL", idp.URL)
	t.Setenv("TOKENWARD_PROVIDER__REALM", "app")
	t.Setenv("TOKENWARD_PROVIDER__CLIENT_ID", "customer-app")
	t.Setenv("TOKENWARD_API__BASE_URL", api.URL)
	t.Setenv("TOKENWARD_STORAGE__TYPE", "file")
	t.Setenv("TOKENWARD_STORAGE__FILE", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("TOKENWARD_LOGIN__NO_BROWSER", "true")
	return e
}

// run executes the CLI with stdin and returns stdout.
func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr
	cmd.Reader = strings.NewReader(stdin)

	err := cmd.Run(context.Background(), append([]string{"tokenward"}, args...))
	return stdout.String(), err
}

func (e *testEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()
	out, err := e.run(stdin, args...)
	if err != nil {
		e.t.Fatalf("%v: error = %v", args, err)
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)

	if out := e.mustRun("", "status"); !strings.Contains(out, "unauthenticated") {
		t.Errorf("status before login = %q", out)
	}
	if out := e.mustRun("", "route", "/(tabs)/feed"); out != "redirect /login\n" {
		t.Errorf("route before login = %q", out)
	}

	if out := e.mustRun("secret\n", "login", "--username", "alice"); out != "Logged in as Alice (alice)\n" {
		t.Errorf("login output = %q", out)
	}

	var st status
	if err := json.Unmarshal([]byte(e.mustRun("", "status", "--json")), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "authenticated" || st.Username != "alice" || st.ExpiresAt == nil {
		t.Errorf("status = %+v", st)
	}

	if out := e.mustRun("", "token"); out != e.access+"\n" {
		t.Errorf("token output = %q", out)
	}
	if out := e.mustRun("", "route", "/login"); out != "redirect /(tabs)\n" {
		t.Errorf("route on login = %q", out)
	}
	if out := e.mustRun("", "route", "/(tabs)/feed"); out != "allow\n" {
		t.Errorf("route in protected area = %q", out)
	}

	out := e.mustRun("", "request", "get", "/feed", "--query", "page=2")
	if !strings.Contains(out, `"path": "/feed"`) || !strings.Contains(out, `"page": "2"`) {
		t.Errorf("request output = %q", out)
	}

	if out := e.mustRun("", "logout"); out != "Logged out\n" {
		t.Errorf("logout output = %q", out)
	}
	if !e.revoked.Load() {
		t.Error("refresh token not revoked on logout")
	}
	if out := e.mustRun("", "status"); !strings.Contains(out, "unauthenticated") {
		t.Errorf("status after logout = %q", out)
	}
	if _, err := e.run("", "token"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("token after logout error = %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("wrong\n", "login", "-u", "alice")
	if err == nil || err.Error() != "login failed: Invalid user credentials" {
		t.Errorf("login error = %v", err)
	}
}

func TestRequestValidatesArguments(t *testing.T) {
	e := newTestEnv(t)

	if _, err := e.run("", "request", "GET"); err == nil {
		t.Error("request accepted a missing path")
	}
	if _, err := e.run("", "request", "POST", "/orders", "--data", "{not json"); err == nil {
		t.Error("request accepted an invalid body")
	}
	if _, err := e.run("", "request", "GET", "/feed", "--query", "page"); err == nil {
		t.Error("request accepted a malformed query parameter")
	}
}

func TestRequestWithoutSessionIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run("", "request", "GET", "/feed")
	if err == nil || !strings.Contains(err.Error(), "log in again") {
		t.Errorf("request error = %v", err)
	}
}

func TestLanguage(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "iw_IL.UTF-8")

	if out := e.mustRun("", "language", "show"); !strings.Contains(out, "Preference: System (system)") || !strings.Contains(out, "he") {
		t.Errorf("language show = %q", out)
	}
	if out := e.mustRun("", "language", "set", "en"); out != "Language: en\n" {
		t.Errorf("language set = %q", out)
	}
	if out := e.mustRun("", "language"); !strings.Contains(out, "Preference: English (en)") {
		t.Errorf("language = %q", out)
	}
	if _, err := e.run("", "language", "set", "fr"); err == nil {
		t.Error("language set accepted fr")
	}
}
