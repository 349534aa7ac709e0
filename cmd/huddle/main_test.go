package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huddle-sports/huddle/pkg/backend"
	"github.com/huddle-sports/huddle/pkg/events"
)

const userID = "3f1e0c5a-9b7d-4c2e-8a6f-1d2c3b4a5e6f"

type stubService struct {
	*httptest.Server
	inserts atomic.Int32
}

// newStubService serves auth for demo@example.com/password and the events table
func newStubService(t *testing.T) *stubService {
	t.Helper()
	res := &stubService{}
	router := mux.NewRouter()
	router.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["email"] != "demo@example.com" || creds["password"] != "password" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant",
				"error_description": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1", "token_type": "bearer",
			"expires_in": 3600, "refresh_token": "refresh-1", "user": backend.User{ID: userID, Email: "demo@example.com"}})
	}).Methods(http.MethodPost)
	router.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, backend.User{ID: userID, Email: "demo@example.com"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/v1/events", func(w http.ResponseWriter, r *http.Request) {
		var e events.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		res.inserts.Add(1)
		writeJSON(w, http.StatusCreated, e)
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "eq.e1" {
			writeJSON(w, http.StatusOK, []events.Event{})
			return
		}
		writeJSON(w, http.StatusOK, []events.Event{{ID: "e1", Title: "Sunday five-a-side", Sport: "football",
			Location: "Victoria Park", Capacity: 10, Status: events.StatusOpen, HostID: userID,
			StartsAt: time.Now().Add(24 * time.Hour), EndsAt: time.Now().Add(26 * time.Hour)}})
	}).Methods(http.MethodGet).Queries("id", "{id}")
	router.HandleFunc("/rest/v1/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq."+userID, r.URL.Query().Get("host_id"))
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "e1"}})
	}).Methods(http.MethodPatch)
	router.HandleFunc("/rest/v1/event_participants", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "" {
			writeJSON(w, http.StatusOK, []events.Participant{}) // not joined yet
			return
		}
		w.Header().Set("Content-Range", "0-0/3")
		writeJSON(w, http.StatusOK, []events.Participant{{EventID: "e1", UserID: userID}, {EventID: "e1", UserID: "u2"},
			{EventID: "e1", UserID: "u3"}})
	}).Methods(http.MethodGet)
	router.HandleFunc("/rest/v1/event_participants", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "event_id,user_id", r.URL.Query().Get("on_conflict"))
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/v1/event_participants", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	router.HandleFunc("/rest/v1/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.open", r.URL.Query().Get("status"))
		list := []events.Event{{ID: "e1", Title: "Sunday five-a-side", Sport: r.URL.Query().Get("sport")[3:],
			Location: "Victoria Park", Capacity: 10, StartsAt: time.Date(2030, 5, 5, 10, 0, 0, 0, time.UTC)}}
		writeJSON(w, http.StatusOK, list)
	}).Methods(http.MethodGet).Queries("sport", "{sport}")
	router.HandleFunc("/rest/v1/events", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []events.Event{})
	}).Methods(http.MethodGet)
	res.Server = httptest.NewServer(router)
	t.Cleanup(res.Close)
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// prepareEnv points session files to a temp dir and clears backend settings from the environment
func prepareEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SUPABASE_URL", "SUPABASE_ANON_KEY", "VITE_SUPABASE_URL", "VITE_SUPABASE_ANON_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("HUDDLE_SESSION_TYPE", "file")
	t.Setenv("HUDDLE_SESSION_DIR", t.TempDir())
}

// runCLI parses args and runs the command, returns printed output
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var opts options
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	_, err := p.ParseArgs(args)
	require.NoError(t, err)

	var out bytes.Buffer
	c := &cli{opts: opts, out: &out, readPassword: func() (string, error) { return "password", nil }}
	err = c.run(context.Background(), p)
	return out.String(), err
}

func TestCLI_NotConfigured(t *testing.T) {
	prepareEnv(t)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: not configured")
	assert.Contains(t, out, "session store: file")
	assert.Contains(t, out, "session: anonymous")

	_, err = runCLI(t, "login", "-e", "demo@example.com", "-p", "password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")

	out, err = runCLI(t, "login", "--provider", "github")
	require.NoError(t, err, "social login unavailable is informational")
	assert.Contains(t, out, "Social login with github is not available right now.")

	out, err = runCLI(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "anonymous\n", out)

	_, err = runCLI(t, "events", "list")
	assert.True(t, backend.IsNotConfigured(err))
}

func TestCLI_LoginSession(t *testing.T) {
	prepareEnv(t)
	srv := newStubService(t)
	base := []string{"--url", srv.URL, "--anon-key", "anon"}
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }

	_, err := runCLI(t, with("login", "-e", "demo@example.com", "-p", "wrong")...)
	require.Error(t, err)
	assert.Equal(t, "login failed: Invalid login credentials", err.Error())

	out, err := runCLI(t, with("login", "-e", "demo@example.com")...) // password asked
	require.NoError(t, err)
	assert.Contains(t, out, "Login Successful Welcome back! You have been logged in.")
	assert.Contains(t, out, "-> /profile")

	out, err = runCLI(t, with("whoami")...)
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com ("+userID+")\n", out)

	out, err = runCLI(t, with("status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "backend: "+srv.URL)
	assert.Contains(t, out, "session: signed in as demo@example.com")

	out, err = runCLI(t, with("logout")...)
	require.NoError(t, err)
	assert.Equal(t, "signed out\n", out)

	out, err = runCLI(t, with("whoami")...)
	require.NoError(t, err)
	assert.Equal(t, "anonymous\n", out)

	_, err = runCLI(t, with("login")...)
	assert.EqualError(t, err, "email or oauth provider is required")
}

func TestCLI_SocialLogin(t *testing.T) {
	prepareEnv(t)
	out, err := runCLI(t, "--url", "https://demo.supabase.co", "--anon-key", "anon", "login",
		"--provider", "google", "--redirect", "http://localhost:5173/profile")
	require.NoError(t, err)
	assert.Equal(t, "-> https://demo.supabase.co/auth/v1/authorize?provider=google&"+
		"redirect_to=http%3A%2F%2Flocalhost%3A5173%2Fprofile\n", out)
}

func TestCLI_Events(t *testing.T) {
	prepareEnv(t)
	srv := newStubService(t)
	base := []string{"--url", srv.URL, "--anon-key", "anon"}
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }
	start := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	_, err := runCLI(t, with("events", "create", "-t", "Pickup game", "-s", "basketball", "-l", "Court 3",
		"--start", start)...)
	require.Error(t, err)
	assert.Equal(t, "authentication required: Please log in to create an event.", err.Error())
	assert.Equal(t, int32(0), srv.inserts.Load())

	_, err = runCLI(t, with("login", "-e", "demo@example.com", "-p", "password")...)
	require.NoError(t, err)

	out, err := runCLI(t, with("events", "create", "-t", "Pickup game", "-s", "basketball", "-l", "Court 3",
		"--start", start, "-c", "8")...)
	require.NoError(t, err)
	assert.Contains(t, out, `Event Created Your event "Pickup game" is live.`)
	assert.Contains(t, out, "-> /events/")
	assert.Equal(t, int32(1), srv.inserts.Load())

	_, err = runCLI(t, with("events", "create", "-t", "Pickup game", "-s", "chess", "-l", "Court 3",
		"--start", start, "-c", "1")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
	assert.Contains(t, err.Error(), `unknown sport "chess"`)
	assert.Equal(t, int32(1), srv.inserts.Load())

	_, err = runCLI(t, with("events", "create", "-t", "Pickup game", "-s", "basketball", "-l", "Court 3",
		"--start", "tomorrow")...)
	assert.EqualError(t, err, `can't parse time "tomorrow", use RFC3339 or "2006-01-02 15:04"`)

	out, err = runCLI(t, with("events", "list", "-s", "football")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Sunday five-a-side")
	assert.Contains(t, out, "Victoria Park")

	out, err = runCLI(t, with("events", "list")...)
	require.NoError(t, err)
	assert.Equal(t, "no upcoming events\n", out)
}

func TestCLI_EventActions(t *testing.T) {
	prepareEnv(t)
	srv := newStubService(t)
	base := []string{"--url", srv.URL, "--anon-key", "anon"}
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }

	_, err := runCLI(t, with("events", "join", "e1")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication required")

	_, err = runCLI(t, with("login", "-e", "demo@example.com", "-p", "password")...)
	require.NoError(t, err)

	out, err := runCLI(t, with("events", "show", "e1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Sunday five-a-side [open] football")
	assert.Contains(t, out, "participants: 3/10")

	_, err = runCLI(t, with("events", "show", "e2")...)
	assert.ErrorIs(t, err, events.ErrNotFound)

	out, err = runCLI(t, with("events", "join", "e1")...)
	require.NoError(t, err)
	assert.Equal(t, "joined\n", out)

	out, err = runCLI(t, with("events", "leave", "e1")...)
	require.NoError(t, err)
	assert.Equal(t, "left\n", out)

	out, err = runCLI(t, with("events", "cancel", "e1")...)
	require.NoError(t, err)
	assert.Equal(t, "cancelled\n", out)
}

func TestCLI_EventsImport(t *testing.T) {
	prepareEnv(t)
	srv := newStubService(t)
	base := []string{"--url", srv.URL, "--anon-key", "anon"}
	with := func(args ...string) []string { return append(append([]string{}, base...), args...) }

	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Minute)
	data := ""
	for _, title := range []string{"Morning run", "Padel doubles", "Volleyball on the beach"} {
		sport := map[string]string{"Morning run": "running", "Padel doubles": "padel",
			"Volleyball on the beach": "volleyball"}[title]
		data += "- title: " + title + "\n  sport: " + sport + "\n  location: Central Park\n" +
			"  starts_at: " + start.Format(time.RFC3339) + "\n  ends_at: " + start.Add(time.Hour).Format(time.RFC3339) +
			"\n  capacity: 12\n"
	}
	fname := filepath.Join(t.TempDir(), "events.yml")
	require.NoError(t, os.WriteFile(fname, []byte(data), 0o600))

	_, err := runCLI(t, with("login", "-e", "demo@example.com", "-p", "password")...)
	require.NoError(t, err)

	out, err := runCLI(t, with("events", "import", "-c", "4", fname)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], `"Morning run"`), "printed in file order")
	assert.True(t, strings.HasSuffix(lines[1], `"Padel doubles"`))
	assert.True(t, strings.HasSuffix(lines[2], `"Volleyball on the beach"`))
	assert.Equal(t, int32(3), srv.inserts.Load())

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("- title: x\n  sport: curling\n"), 0o600))
	_, err = runCLI(t, with("events", "import", bad)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `event "x"`)
	assert.Equal(t, int32(3), srv.inserts.Load())

	_, err = runCLI(t, with("events", "import", "/no/such/file.yml")...)
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	ts, err := parseTime("2030-05-05T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 5, 10, 0, 0, 0, time.UTC), ts)

	ts, err = parseTime("2030-05-05 10:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 5, 5, 10, 0, 0, 0, time.Local), ts)

	_, err = parseTime("05/05/2030")
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	res, err := expandPath("~/.config/huddle")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/huddle"), res)

	res, err = expandPath("/etc/huddle.yml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/huddle.yml", res)
}

func TestMainFunc(t *testing.T) {
	os.Args = []string{"huddle", "--help"}

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	exited := false
	exitFunc = func(int) { exited = true }

	main()

	exitFunc = os.Exit
	_ = w.Close()
	os.Stdout = oldStdout

	assert.True(t, exited)
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	assert.Contains(t, buf.String(), "huddle latest")
}

func TestSetupLog_WarningsWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	stderr = &buf
	defer func() {
		stderr = os.Stderr
		setupLog(false)
	}()

	setupLog(false, "anon-secret", "")
	backend.New(backend.Config{})
	log.Printf("[INFO] not shown")
	log.Printf("[DEBUG] not shown either")
	log.Printf("[WARN] key anon-secret rejected")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, buf.String())
	assert.Contains(t, lines[0], "[WARN]")
	assert.Contains(t, lines[0], "service url is missing; anon key is missing")
	assert.Contains(t, lines[1], "key ****** rejected")
	assert.NotContains(t, buf.String(), "not shown")
}

func TestWarnWriter(t *testing.T) {
	var buf bytes.Buffer
	w := warnWriter{wr: &buf}
	for _, l := range []string{"2026/10/19 [INFO]  a\n", "2026/10/19 [WARN]  b\n", "2026/10/19 [ERROR] c\n"} {
		n, err := w.Write([]byte(l))
		require.NoError(t, err)
		assert.Equal(t, len(l), n)
	}
	assert.Equal(t, "2026/10/19 [WARN]  b\n2026/10/19 [ERROR] c\n", buf.String())
}
