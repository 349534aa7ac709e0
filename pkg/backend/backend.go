// Package backend provides the client handle used by huddle to talk to the hosted backend service: the auth API
// (sessions, credentials, MFA and admin user management) and the data API (table queries).
// The handle comes in two variants sharing one Interface. Live talks to the remote service over HTTP and
// Unconfigured is an inert stand-in used when credentials are missing. It never contacts anything and reports
// a configuration error on every operation that would otherwise reach the service.
package backend

import (
	"context"
)

// Interface is the client handle. Implemented by Live and Unconfigured.
type Interface interface {
	Auth() Auth
	From(table string) Table
	Configured() bool
}

// Auth groups session lifecycle and credential operations.
type Auth interface {
	GetSession(ctx context.Context) (*Session, error)
	OnAuthStateChange(fn AuthStateFunc) *Subscription
	SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error)
	SignInWithPassword(ctx context.Context, creds Credentials) (*AuthResponse, error)
	SignInWithOAuth(ctx context.Context, params OAuthParams) (*OAuthResponse, error)
	SignInWithOTP(ctx context.Context, params OTPParams) error
	VerifyOTP(ctx context.Context, params VerifyOTPParams) (*AuthResponse, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context) error
	GetUser(ctx context.Context) (*User, error)
	UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error)
	RefreshSession(ctx context.Context) (*AuthResponse, error)
	SetSession(ctx context.Context, tokens SessionTokens) (*AuthResponse, error)
	Admin() Admin
	MFA() MFA
}

// Admin groups user management operations. They require a service role key configured as the client key.
type Admin interface {
	ListUsers(ctx context.Context, params ListUsersParams) ([]User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, attrs AdminUserAttributes) (*User, error)
	UpdateUserByID(ctx context.Context, id string, attrs AdminUserAttributes) (*User, error)
	DeleteUser(ctx context.Context, id string) error
	InviteUserByEmail(ctx context.Context, email string, data map[string]any) (*User, error)
}

// MFA groups multi-factor operations for the signed-in user.
type MFA interface {
	Enroll(ctx context.Context, params EnrollParams) (*EnrolledFactor, error)
	Challenge(ctx context.Context, factorID string) (*Challenge, error)
	Verify(ctx context.Context, params MFAVerifyParams) (*AuthResponse, error)
	Unenroll(ctx context.Context, factorID string) error
	ListFactors(ctx context.Context) ([]Factor, error)
	GetAuthenticatorAssuranceLevel(ctx context.Context) (*AssuranceLevel, error)
}

// Table is the query entry point for a single table. Each method starts a new query.
type Table interface {
	Select(columns ...string) Query
	Insert(values any) Query
	Update(values any) Query
	Delete() Query
	Upsert(values any, opts UpsertOptions) Query
}

// Query is a chainable query. Filter, sort and paginate methods return the same query,
// Execute, Single and MaybeSingle send it.
type Query interface {
	Select(columns ...string) Query
	Eq(column string, value any) Query
	Neq(column string, value any) Query
	Gt(column string, value any) Query
	Gte(column string, value any) Query
	Lt(column string, value any) Query
	Lte(column string, value any) Query
	Like(column, pattern string) Query
	ILike(column, pattern string) Query
	Is(column string, value any) Query
	In(column string, values ...any) Query
	Not(column, operator string, value any) Query
	Or(filters string) Query
	Match(values map[string]any) Query
	Order(column string, ascending bool) Query
	Limit(n int) Query
	Range(from, to int) Query
	Count(method CountMethod) Query

	Execute(ctx context.Context) (*Result, error)
	Single(ctx context.Context) (*Result, error)
	MaybeSingle(ctx context.Context) (*Result, error)
}

// UpsertOptions defines conflict handling for Upsert.
type UpsertOptions struct {
	OnConflict       string // comma separated unique columns, primary key if empty
	IgnoreDuplicates bool   // keep existing rows instead of merging
}

// CountMethod defines how the total row count is calculated by the data API.
type CountMethod string

// count methods
const (
	CountExact     CountMethod = "exact"
	CountPlanned   CountMethod = "planned"
	CountEstimated CountMethod = "estimated"
)
