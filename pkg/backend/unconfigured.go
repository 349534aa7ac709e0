package backend

import (
	"context"
	"log"
	"net/http"
)

// Unconfigured is the client handle used when the service url or key is missing.
// Read-only session queries report no session and no error, sign out succeeds, everything else
// returns ConfigError. Nothing is sent anywhere and listeners are never called.
type Unconfigured struct {
	err *ConfigError
}

// NewUnconfigured makes the inert client handle, reason is reported as ConfigError.Reason.
func NewUnconfigured(reason error) *Unconfigured {
	return &Unconfigured{err: &ConfigError{Message: ErrNotConfigured.Error(), Status: http.StatusBadRequest, Reason: reason}}
}

// Auth returns inert auth operations.
func (u *Unconfigured) Auth() Auth { return &unconfiguredAuth{err: u.err} }

// From returns inert table queries.
func (u *Unconfigured) From(table string) Table {
	log.Printf("[DEBUG] query on %s ignored, backend not configured", table)
	return &unconfiguredTable{err: u.err}
}

// Configured always false for unconfigured client.
func (u *Unconfigured) Configured() bool { return false }

type unconfiguredAuth struct {
	err *ConfigError
}

// GetSession reports no session and no error, so anonymous state renders without an error.
func (a *unconfiguredAuth) GetSession(context.Context) (*Session, error) { return nil, nil }

// OnAuthStateChange returns a subscription which does nothing, fn is never called.
func (a *unconfiguredAuth) OnAuthStateChange(AuthStateFunc) *Subscription {
	return newSubscription("", nil)
}

func (a *unconfiguredAuth) SignUp(context.Context, SignUpParams) (*AuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) SignInWithPassword(context.Context, Credentials) (*AuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) SignInWithOAuth(context.Context, OAuthParams) (*OAuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) SignInWithOTP(context.Context, OTPParams) error { return a.err }

func (a *unconfiguredAuth) VerifyOTP(context.Context, VerifyOTPParams) (*AuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) ResetPasswordForEmail(context.Context, string, string) error { return a.err }

// SignOut succeeds, there is nothing to sign out of.
func (a *unconfiguredAuth) SignOut(context.Context) error { return nil }

// GetUser reports no user and no error.
func (a *unconfiguredAuth) GetUser(context.Context) (*User, error) { return nil, nil }

func (a *unconfiguredAuth) UpdateUser(context.Context, UserAttributes) (*User, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) RefreshSession(context.Context) (*AuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) SetSession(context.Context, SessionTokens) (*AuthResponse, error) {
	return nil, a.err
}

func (a *unconfiguredAuth) Admin() Admin { return &unconfiguredAdmin{err: a.err} }

func (a *unconfiguredAuth) MFA() MFA { return &unconfiguredMFA{err: a.err} }

type unconfiguredAdmin struct {
	err *ConfigError
}

func (ad *unconfiguredAdmin) ListUsers(context.Context, ListUsersParams) ([]User, error) {
	return nil, ad.err
}

func (ad *unconfiguredAdmin) GetUserByID(context.Context, string) (*User, error) { return nil, ad.err }

func (ad *unconfiguredAdmin) CreateUser(context.Context, AdminUserAttributes) (*User, error) {
	return nil, ad.err
}

func (ad *unconfiguredAdmin) UpdateUserByID(context.Context, string, AdminUserAttributes) (*User, error) {
	return nil, ad.err
}

func (ad *unconfiguredAdmin) DeleteUser(context.Context, string) error { return ad.err }

func (ad *unconfiguredAdmin) InviteUserByEmail(context.Context, string, map[string]any) (*User, error) {
	return nil, ad.err
}

type unconfiguredMFA struct {
	err *ConfigError
}

func (m *unconfiguredMFA) Enroll(context.Context, EnrollParams) (*EnrolledFactor, error) {
	return nil, m.err
}

func (m *unconfiguredMFA) Challenge(context.Context, string) (*Challenge, error) { return nil, m.err }

func (m *unconfiguredMFA) Verify(context.Context, MFAVerifyParams) (*AuthResponse, error) {
	return nil, m.err
}

func (m *unconfiguredMFA) Unenroll(context.Context, string) error { return m.err }

func (m *unconfiguredMFA) ListFactors(context.Context) ([]Factor, error) { return nil, m.err }

func (m *unconfiguredMFA) GetAuthenticatorAssuranceLevel(context.Context) (*AssuranceLevel, error) {
	return nil, m.err
}

type unconfiguredTable struct {
	err *ConfigError
}

func (t *unconfiguredTable) Select(...string) Query { return &unconfiguredQuery{err: t.err} }
func (t *unconfiguredTable) Insert(any) Query { return &unconfiguredQuery{err: t.err} }
func (t *unconfiguredTable) Update(any) Query { return &unconfiguredQuery{err: t.err} }
func (t *unconfiguredTable) Delete() Query { return &unconfiguredQuery{err: t.err} }
func (t *unconfiguredTable) Upsert(any, UpsertOptions) Query { return &unconfiguredQuery{err: t.err} }

// unconfiguredQuery keeps the chain going and fails on send.
type unconfiguredQuery struct {
	err *ConfigError
}

func (q *unconfiguredQuery) Select(...string) Query { return q }
func (q *unconfiguredQuery) Eq(string, any) Query { return q }
func (q *unconfiguredQuery) Neq(string, any) Query { return q }
func (q *unconfiguredQuery) Gt(string, any) Query { return q }
func (q *unconfiguredQuery) Gte(string, any) Query { return q }
func (q *unconfiguredQuery) Lt(string, any) Query { return q }
func (q *unconfiguredQuery) Lte(string, any) Query { return q }
func (q *unconfiguredQuery) Like(string, string) Query { return q }
func (q *unconfiguredQuery) ILike(string, string) Query { return q }
func (q *unconfiguredQuery) Is(string, any) Query { return q }
func (q *unconfiguredQuery) In(string, ...any) Query { return q }
func (q *unconfiguredQuery) Not(string, string, any) Query { return q }
func (q *unconfiguredQuery) Or(string) Query { return q }
func (q *unconfiguredQuery) Match(map[string]any) Query { return q }
func (q *unconfiguredQuery) Order(string, bool) Query { return q }
func (q *unconfiguredQuery) Limit(int) Query { return q }
func (q *unconfiguredQuery) Range(int, int) Query { return q }
func (q *unconfiguredQuery) Count(CountMethod) Query { return q }

func (q *unconfiguredQuery) Execute(context.Context) (*Result, error) { return nil, q.err }
func (q *unconfiguredQuery) Single(context.Context) (*Result, error) { return nil, q.err }
func (q *unconfiguredQuery) MaybeSingle(context.Context) (*Result, error) { return nil, q.err }

var (
	_ Interface = (*Live)(nil)
	_ Interface = (*Unconfigured)(nil)
	_ Auth      = (*liveAuth)(nil)
	_ Auth      = (*unconfiguredAuth)(nil)
	_ Admin     = (*liveAdmin)(nil)
	_ Admin     = (*unconfiguredAdmin)(nil)
	_ MFA       = (*liveMFA)(nil)
	_ MFA       = (*unconfiguredMFA)(nil)
	_ Table     = (*liveTable)(nil)
	_ Table     = (*unconfiguredTable)(nil)
	_ Query     = (*liveQuery)(nil)
	_ Query     = (*unconfiguredQuery)(nil)
)
