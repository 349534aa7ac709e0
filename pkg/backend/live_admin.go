package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

type liveAdmin struct {
	c *Live
}

// ListUsers returns a page of users.
func (ad *liveAdmin) ListUsers(ctx context.Context, params ListUsersParams) ([]User, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}
	var resp struct {
		Users []User `json:"users"`
	}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodGet, path: authPath + "/admin/users", query: q}, &resp); err != nil {
		return nil, fmt.Errorf("can't list users: %w", err)
	}
	return resp.Users, nil
}

// GetUserByID returns a user by id.
func (ad *liveAdmin) GetUserByID(ctx context.Context, id string) (*User, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	user := &User{}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodGet, path: authPath + "/admin/users/" + id}, user); err != nil {
		return nil, fmt.Errorf("can't get user %s: %w", id, err)
	}
	return user, nil
}

// CreateUser makes a new user without sending confirmation.
func (ad *liveAdmin) CreateUser(ctx context.Context, attrs AdminUserAttributes) (*User, error) {
	user := &User{}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/admin/users", body: attrs}, user); err != nil {
		return nil, fmt.Errorf("can't create user: %w", err)
	}
	return user, nil
}

// UpdateUserByID changes a user.
func (ad *liveAdmin) UpdateUserByID(ctx context.Context, id string, attrs AdminUserAttributes) (*User, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	user := &User{}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodPut, path: authPath + "/admin/users/" + id, body: attrs}, user); err != nil {
		return nil, fmt.Errorf("can't update user %s: %w", id, err)
	}
	return user, nil
}

// DeleteUser removes a user.
func (ad *liveAdmin) DeleteUser(ctx context.Context, id string) error {
	if err := validUserID(id); err != nil {
		return err
	}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodDelete, path: authPath + "/admin/users/" + id}, nil); err != nil {
		return fmt.Errorf("can't delete user %s: %w", id, err)
	}
	return nil
}

// InviteUserByEmail sends an invite link.
func (ad *liveAdmin) InviteUserByEmail(ctx context.Context, email string, data map[string]any) (*User, error) {
	body := map[string]any{"email": email}
	if len(data) > 0 {
		body["data"] = data
	}
	user := &User{}
	if err := ad.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/invite", body: body}, user); err != nil {
		return nil, fmt.Errorf("can't invite %s: %w", email, err)
	}
	return user, nil
}

func validUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid user id %q: %w", id, err)
	}
	return nil
}

// validFactorID rejects anything but a uuid, the id goes into the request path
func validFactorID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid factor id %q: %w", id, err)
	}
	return nil
}

type liveMFA struct {
	c    *Live
	auth *liveAuth
}

// Enroll starts enrollment of a new factor, totp by default.
func (m *liveMFA) Enroll(ctx context.Context, params EnrollParams) (*EnrolledFactor, error) {
	sess, err := m.c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if params.FactorType == "" {
		params.FactorType = "totp"
	}
	body := map[string]string{"factor_type": params.FactorType}
	if params.FriendlyName != "" {
		body["friendly_name"] = params.FriendlyName
	}
	if params.Issuer != "" {
		body["issuer"] = params.Issuer
	}
	res := &EnrolledFactor{}
	if err := m.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/factors",
		token: sess.AccessToken, body: body}, res); err != nil {
		return nil, fmt.Errorf("can't enroll factor: %w", err)
	}
	return res, nil
}

// Challenge makes a challenge for the factor.
func (m *liveMFA) Challenge(ctx context.Context, factorID string) (*Challenge, error) {
	if err := validFactorID(factorID); err != nil {
		return nil, err
	}
	sess, err := m.c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	res := &Challenge{}
	if err := m.c.sendJSON(ctx, request{method: http.MethodPost, path: authPath + "/factors/" + factorID + "/challenge",
		token: sess.AccessToken}, res); err != nil {
		return nil, fmt.Errorf("can't challenge factor %s: %w", factorID, err)
	}
	return res, nil
}

// Verify verifies the challenge code. On success the session is upgraded to aal2.
func (m *liveMFA) Verify(ctx context.Context, params MFAVerifyParams) (*AuthResponse, error) {
	if err := validFactorID(params.FactorID); err != nil {
		return nil, err
	}
	sess, err := m.c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := m.c.send(ctx, request{method: http.MethodPost, path: authPath + "/factors/" + params.FactorID + "/verify",
		token: sess.AccessToken, body: map[string]string{"challenge_id": params.ChallengeID, "code": params.Code}})
	if err != nil {
		return nil, fmt.Errorf("can't verify factor %s: %w", params.FactorID, err)
	}
	return m.auth.authResponse(ctx, resp.body, EventMFAChallengeVerified)
}

// Unenroll removes the factor.
func (m *liveMFA) Unenroll(ctx context.Context, factorID string) error {
	if err := validFactorID(factorID); err != nil {
		return err
	}
	sess, err := m.c.requireSession(ctx)
	if err != nil {
		return err
	}
	if err := m.c.sendJSON(ctx, request{method: http.MethodDelete, path: authPath + "/factors/" + factorID,
		token: sess.AccessToken}, nil); err != nil {
		return fmt.Errorf("can't unenroll factor %s: %w", factorID, err)
	}
	return nil
}

// ListFactors returns all factors of the signed-in user, verified or not.
func (m *liveMFA) ListFactors(ctx context.Context) ([]Factor, error) {
	user, err := m.auth.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	return user.Factors, nil
}

// GetAuthenticatorAssuranceLevel reports current and reachable levels from the session token
// and the cached user, without calling the service.
func (m *liveMFA) GetAuthenticatorAssuranceLevel(ctx context.Context) (*AssuranceLevel, error) {
	sess, err := m.c.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &AssuranceLevel{}, nil
	}
	claims, err := tokenClaims(sess.AccessToken)
	if err != nil {
		return nil, err
	}

	res := &AssuranceLevel{}
	res.Current, _ = claims["aal"].(string)
	res.Next = res.Current
	if sess.User != nil {
		for _, f := range sess.User.Factors {
			if f.Status == "verified" {
				res.Next = "aal2"
				break
			}
		}
	}
	if amr, ok := claims["amr"].([]any); ok {
		for _, v := range amr {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			method, _ := entry["method"].(string)
			ts, _ := entry["timestamp"].(float64)
			res.AuthMethods = append(res.AuthMethods, AMREntry{Method: method, Timestamp: int64(ts)})
		}
	}
	if res.Current == "" {
		return nil, errors.New("access token has no aal claim")
	}
	return res, nil
}
