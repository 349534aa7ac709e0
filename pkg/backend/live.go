package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/huddle-sports/huddle/pkg/session"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	// ClientInfo is sent with every request as X-Client-Info
	ClientInfo = "huddle-go/1.0"

	expiryMargin = 10 * time.Second
)

// Live is the client handle bound to a remote service.
type Live struct {
	baseURL     *url.URL
	anonKey     string
	httpClient  *http.Client
	headers     map[string]string
	store       session.Store
	storageKey  string
	autoRefresh bool
	now         func() time.Time

	refreshMu sync.Mutex // serializes token refresh

	lmu       sync.RWMutex
	listeners []listener
}

type listener struct {
	id string
	fn AuthStateFunc
}

// NewLive makes a client handle for the remote service. The service is not contacted until the first call.
func NewLive(cfg Config) (*Live, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("can't parse service url: %w", err)
	}
	if u.Path == "" {
		u.Path = "/" // JoinPath keeps the leading slash only for rooted paths
	}

	res := &Live{
		baseURL:     u,
		anonKey:     cfg.AnonKey,
		httpClient:  cfg.HTTPClient,
		headers:     cfg.Headers,
		store:       cfg.Store,
		storageKey:  cfg.StorageKey,
		autoRefresh: cfg.AutoRefresh,
		now:         time.Now,
	}
	if res.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		res.httpClient = &http.Client{Timeout: timeout}
	}
	if res.store == nil {
		res.store = session.NewMemory()
	}
	if res.storageKey == "" {
		res.storageKey = "sb-" + strings.Split(u.Hostname(), ".")[0] + "-auth-token"
	}
	return res, nil
}

// Auth returns auth operations.
func (l *Live) Auth() Auth { return &liveAuth{c: l} }

// From starts a query on the table.
func (l *Live) From(table string) Table { return &liveTable{c: l, name: table} }

// Configured always true for live client.
func (l *Live) Configured() bool { return true }

// request is a single call to the remote service
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	token  string // bearer token, anon key if empty
	header http.Header
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send makes the http call. Responses with status >= 400 are returned as *APIError.
func (l *Live) send(ctx context.Context, r request) (*response, error) {
	u := l.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("can't marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("can't make request: %w", err)
	}
	token := r.token
	if token == "" {
		token = l.anonKey
	}
	req.Header.Set("apikey", l.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Client-Info", ClientInfo)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}
	for k, vv := range r.header {
		req.Header.Del(k)
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	log.Printf("[DEBUG] %s %s", r.method, u.Path)
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't send %s %s: %w", r.method, u.Path, err)
	}
	defer resp.Body.Close() // nolint

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read response of %s %s: %w", r.method, u.Path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// sendJSON makes the call and decodes the response body into dest, if any
func (l *Live) sendJSON(ctx context.Context, r request, dest any) error {
	resp, err := l.send(ctx, r)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return fmt.Errorf("can't decode response of %s %s: %w", r.method, r.path, err)
	}
	return nil
}

// loadSession reads the persisted session, nil if there is none.
func (l *Live) loadSession(ctx context.Context) (*Session, error) {
	data, err := l.store.Get(ctx, l.storageKey)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load session: %w", err)
	}
	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil || sess.AccessToken == "" {
		log.Printf("[WARN] discarding unreadable session %s", l.storageKey)
		if delErr := l.store.Delete(ctx, l.storageKey); delErr != nil {
			return nil, fmt.Errorf("can't remove unreadable session: %w", delErr)
		}
		return nil, nil
	}
	return sess, nil
}

// saveSession fills missing expiration and persists the session.
func (l *Live) saveSession(ctx context.Context, sess *Session) error {
	if sess.ExpiresAt == 0 {
		if exp, err := tokenExpiry(sess.AccessToken); err == nil && !exp.IsZero() {
			sess.ExpiresAt = exp.Unix()
		} else if sess.ExpiresIn > 0 {
			sess.ExpiresAt = l.now().Add(time.Duration(sess.ExpiresIn) * time.Second).Unix()
		}
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("can't marshal session: %w", err)
	}
	if err := l.store.Set(ctx, l.storageKey, data); err != nil {
		return fmt.Errorf("can't save session: %w", err)
	}
	return nil
}

// currentSession returns the persisted session refreshed if it is about to expire, nil if there is none.
func (l *Live) currentSession(ctx context.Context) (*Session, error) {
	sess, err := l.loadSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if l.autoRefresh && sess.RefreshToken != "" && sess.expiresWithin(expiryMargin, l.now()) {
		return l.refresh(ctx, sess.RefreshToken)
	}
	return sess, nil
}

// requireSession is currentSession failing with ErrSessionMissing.
func (l *Live) requireSession(ctx context.Context) (*Session, error) {
	sess, err := l.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionMissing
	}
	return sess, nil
}

// refresh exchanges refresh token for a new session. Concurrent refreshes of the same token
// are collapsed, the second caller gets the session made by the first one.
func (l *Live) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	sess, refreshed, err := l.refreshLocked(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if refreshed {
		l.notify(EventTokenRefreshed, sess)
	}
	return sess, nil
}

func (l *Live) refreshLocked(ctx context.Context, refreshToken string) (*Session, bool, error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if cur, err := l.loadSession(ctx); err == nil && cur != nil && cur.RefreshToken != refreshToken &&
		!cur.expiresWithin(expiryMargin, l.now()) {
		return cur, false, nil // already refreshed by someone else
	}

	sess, err := l.exchange(ctx, refreshToken)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// exchange trades the refresh token for a new session and persists it.
func (l *Live) exchange(ctx context.Context, refreshToken string) (*Session, error) {
	sess := &Session{}
	err := l.sendJSON(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": []string{"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, sess)
	if err != nil {
		return nil, fmt.Errorf("can't refresh session: %w", err)
	}
	if err := l.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// accessToken returns the bearer token for data queries, empty for anonymous access.
func (l *Live) accessToken(ctx context.Context) (string, error) {
	sess, err := l.currentSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	return sess.AccessToken, nil
}

func (l *Live) subscribe(id string, fn AuthStateFunc) {
	l.lmu.Lock()
	defer l.lmu.Unlock()
	l.listeners = append(l.listeners, listener{id: id, fn: fn})
}

func (l *Live) unsubscribe(id string) {
	l.lmu.Lock()
	defer l.lmu.Unlock()
	for i, ln := range l.listeners {
		if ln.id == id {
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return
		}
	}
}

// notify calls listeners in subscription order, outside of the lock
func (l *Live) notify(event AuthEvent, sess *Session) {
	l.lmu.RLock()
	lns := make([]listener, len(l.listeners))
	copy(lns, l.listeners)
	l.lmu.RUnlock()

	log.Printf("[DEBUG] auth state changed: %s, listeners: %d", event, len(lns))
	for _, ln := range lns {
		if ln.fn != nil {
			ln.fn(event, sess)
		}
	}
}
