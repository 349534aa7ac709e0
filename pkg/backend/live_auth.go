package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type liveAuth struct {
	c *Live
}

// GetSession returns the persisted session confirmed by the auth service, with the user refreshed.
// Expiring access token is refreshed first if AutoRefresh is set. Returns nil without a session.
func (a *liveAuth) GetSession(ctx context.Context) (*Session, error) {
	sess, err := a.c.currentSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	user, err := a.fetchUser(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	sess.User = user
	if err := a.c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// OnAuthStateChange registers fn for auth state changes.
func (a *liveAuth) OnAuthStateChange(fn AuthStateFunc) *Subscription {
	id := uuid.NewString()
	a.c.subscribe(id, fn)
	return newSubscription(id, func() { a.c.unsubscribe(id) })
}

// SignUp registers a new user. Session is returned only if the service doesn't require confirmation.
func (a *liveAuth) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	body := map[string]any{"password": params.Password}
	if params.Email != "" {
		body["email"] = params.Email
	}
	if params.Phone != "" {
		body["phone"] = params.Phone
	}
	if len(params.Data) > 0 {
		body["data"] = params.Data
	}
	resp, err := a.c.send(ctx, request{method: http.MethodPost, path: authPath + "/signup",
		query: redirectQuery(params.RedirectTo), body: body})
	if err != nil {
		return nil, fmt.Errorf("can't sign up: %w", err)
	}
	return a.authResponse(ctx, resp.body, EventSignedIn)
}

// SignInWithPassword signs in with email or phone and password.
func (a *liveAuth) SignInWithPassword(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	body := map[string]any{"password": creds.Password}
	switch {
	case creds.Email != "":
		body["email"] = creds.Email
	case creds.Phone != "":
		body["phone"] = creds.Phone
	default:
		return nil, errors.New("email or phone is required")
	}
	resp, err := a.c.send(ctx, request{method: http.MethodPost, path: authPath + "/token",
		query: url.Values{"grant_type": []string{"password"}}, body: body})
	if err != nil {
		return nil, fmt.Errorf("can't sign in: %w", err)
	}
	return a.authResponse(ctx, resp.body, EventSignedIn)
}

// SignInWithOAuth makes the provider authorization url. Nothing is sent, the caller redirects the user.
func (a *liveAuth) SignInWithOAuth(_ context.Context, params OAuthParams) (*OAuthResponse, error) {
	if params.Provider == "" {
		return nil, errors.New("oauth provider is required")
	}
	u := a.c.baseURL.JoinPath(authPath, "authorize")
	q := url.Values{"provider": []string{params.Provider}}
	if params.RedirectTo != "" {
		q.Set("redirect_to", params.RedirectTo)
	}
	if params.Scopes != "" {
		q.Set("scopes", params.Scopes)
	}
	u.RawQuery = q.Encode()
	return &OAuthResponse{Provider: params.Provider, URL: u.String()}, nil
}

// SignInWithOTP sends a one-time code or magic link.
func (a *liveAuth) SignInWithOTP(ctx context.Context, params OTPParams) error {
	body := map[string]any{"create_user": params.ShouldCreateUser}
	switch {
	case params.Email != "":
		body["email"] = params.Email
	case params.Phone != "":
		body["phone"] = params.Phone
	default:
		return errors.New("email or phone is required")
	}
	err := a.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/otp",
		query: redirectQuery(params.RedirectTo), body: body}, nil)
	if err != nil {
		return fmt.Errorf("can't send otp: %w", err)
	}
	return nil
}

// VerifyOTP verifies a one-time code and signs in.
func (a *liveAuth) VerifyOTP(ctx context.Context, params VerifyOTPParams) (*AuthResponse, error) {
	body := map[string]any{"type": params.Type, "token": params.Token}
	if params.Email != "" {
		body["email"] = params.Email
	}
	if params.Phone != "" {
		body["phone"] = params.Phone
	}
	resp, err := a.c.send(ctx, request{method: http.MethodPost, path: authPath + "/verify", body: body})
	if err != nil {
		return nil, fmt.Errorf("can't verify otp: %w", err)
	}
	return a.authResponse(ctx, resp.body, EventSignedIn)
}

// ResetPasswordForEmail sends a password recovery email.
func (a *liveAuth) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	err := a.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/recover",
		query: redirectQuery(redirectTo), body: map[string]string{"email": email}}, nil)
	if err != nil {
		return fmt.Errorf("can't request password recovery for %s: %w", email, err)
	}
	return nil
}

// SignOut revokes the session on the service and removes it locally. The local session is removed
// even if the service call fails, the error is returned unless the session was already invalid.
func (a *liveAuth) SignOut(ctx context.Context) error {
	sess, err := a.c.loadSession(ctx)
	if err != nil {
		return err
	}
	var remoteErr error
	if sess != nil {
		err := a.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/logout",
			token: sess.AccessToken}, nil)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized ||
			apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound):
			log.Printf("[DEBUG] session already invalid: %v", err)
		case err != nil:
			remoteErr = fmt.Errorf("can't sign out: %w", err)
		}
	}
	if err := a.c.store.Delete(ctx, a.c.storageKey); err != nil {
		return fmt.Errorf("can't remove session: %w", err)
	}
	a.c.notify(EventSignedOut, nil)
	return remoteErr
}

// GetUser returns the signed-in user as reported by the auth service.
func (a *liveAuth) GetUser(ctx context.Context) (*User, error) {
	sess, err := a.c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	return a.fetchUser(ctx, sess.AccessToken)
}

// UpdateUser changes attributes of the signed-in user.
func (a *liveAuth) UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error) {
	sess, err := a.c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	user := &User{}
	if err := a.c.sendJSON(ctx, request{method: http.MethodPut, path: authPath + "/user",
		token: sess.AccessToken, body: attrs}, user); err != nil {
		return nil, fmt.Errorf("can't update user: %w", err)
	}
	sess.User = user
	if err := a.c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	a.c.notify(EventUserUpdated, sess)
	return user, nil
}

// RefreshSession forces a token refresh of the current session.
func (a *liveAuth) RefreshSession(ctx context.Context) (*AuthResponse, error) {
	sess, err := a.c.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrSessionMissing
	}
	if sess, err = a.c.refresh(ctx, sess.RefreshToken); err != nil {
		return nil, err
	}
	return &AuthResponse{User: sess.User, Session: sess}, nil
}

// SetSession establishes a session from tokens obtained elsewhere, e.g. an oauth redirect.
// Expired access token is refreshed, otherwise the user is fetched with it.
func (a *liveAuth) SetSession(ctx context.Context, tokens SessionTokens) (*AuthResponse, error) {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, errors.New("access and refresh tokens are required")
	}
	exp, err := tokenExpiry(tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	if !exp.IsZero() && !exp.After(a.c.now()) {
		sess, err := a.c.exchange(ctx, tokens.RefreshToken)
		if err != nil {
			return nil, err
		}
		a.c.notify(EventSignedIn, sess)
		return &AuthResponse{User: sess.User, Session: sess}, nil
	}

	user, err := a.fetchUser(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	sess := &Session{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken, TokenType: "bearer", User: user}
	if !exp.IsZero() {
		sess.ExpiresAt = exp.Unix()
		sess.ExpiresIn = int64(exp.Sub(a.c.now()) / time.Second)
	}
	if err := a.c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	a.c.notify(EventSignedIn, sess)
	return &AuthResponse{User: user, Session: sess}, nil
}

// Admin returns user management operations.
func (a *liveAuth) Admin() Admin { return &liveAdmin{c: a.c} }

// MFA returns multi-factor operations.
func (a *liveAuth) MFA() MFA { return &liveMFA{c: a.c, auth: a} }

func (a *liveAuth) fetchUser(ctx context.Context, accessToken string) (*User, error) {
	user := &User{}
	if err := a.c.sendJSON(ctx, request{method: http.MethodGet, path: authPath + "/user", token: accessToken}, user); err != nil {
		return nil, fmt.Errorf("can't get user: %w", err)
	}
	return user, nil
}

// authResponse handles a body which is either a session or, if confirmation is pending, a bare user.
func (a *liveAuth) authResponse(ctx context.Context, body []byte, event AuthEvent) (*AuthResponse, error) {
	sess := &Session{}
	if err := json.Unmarshal(body, sess); err != nil {
		return nil, fmt.Errorf("can't decode auth response: %w", err)
	}
	if sess.AccessToken == "" {
		user := &User{}
		if err := json.Unmarshal(body, user); err != nil {
			return nil, fmt.Errorf("can't decode user: %w", err)
		}
		return &AuthResponse{User: user}, nil
	}
	if err := a.c.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	a.c.notify(event, sess)
	return &AuthResponse{User: sess.User, Session: sess}, nil
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": []string{redirectTo}}
}

// tokenClaims decodes access token claims. The signature is checked by the service, not here.
func tokenClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("can't parse access token: %w", err)
	}
	return claims, nil
}

// tokenExpiry returns the exp claim, zero time if the token has none.
func tokenExpiry(token string) (time.Time, error) {
	claims, err := tokenClaims(token)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("can't get token expiration: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
