package backend

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Session is an authenticated session issued by the auth service.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// expiresWithin reports whether the access token expires within d from now.
// A session without expiration info is never considered expiring.
func (s *Session) expiresWithin(d time.Duration, now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Unix(s.ExpiresAt, 0).Before(now.Add(d))
}

// User is an auth user as reported by the auth service.
type User struct {
	ID               string         `json:"id"`
	Aud              string         `json:"aud,omitempty"`
	Role             string         `json:"role,omitempty"`
	Email            string         `json:"email,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	Identities       []Identity     `json:"identities,omitempty"`
	Factors          []Factor       `json:"factors,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

// Identity is a linked sign-in identity of a user.
type Identity struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Provider     string         `json:"provider"`
	IdentityData map[string]any `json:"identity_data,omitempty"`
}

// Factor is an MFA factor of a user.
type Factor struct {
	ID           string     `json:"id"`
	FriendlyName string     `json:"friendly_name,omitempty"`
	FactorType   string     `json:"factor_type"`
	Status       string     `json:"status"` // verified or unverified
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// EnrolledFactor is returned by MFA enrollment.
type EnrolledFactor struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	FriendlyName string `json:"friendly_name,omitempty"`
	TOTP         struct {
		QRCode string `json:"qr_code"`
		Secret string `json:"secret"`
		URI    string `json:"uri"`
	} `json:"totp"`
}

// Challenge is an MFA challenge to be verified with a code.
type Challenge struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

// AssuranceLevel describes the authenticator assurance level of the current session.
type AssuranceLevel struct {
	Current     string     // aal1 or aal2, empty without a session
	Next        string     // level the user can reach by verifying a factor
	AuthMethods []AMREntry // methods used to authenticate, from the amr claim
}

// AMREntry is a single authentication method reference.
type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// AuthResponse is returned by sign-in like operations. Session is nil when the
// auth service requires a confirmation step, e.g. sign up with email confirmation.
type AuthResponse struct {
	User    *User
	Session *Session
}

// OAuthResponse holds the provider authorization url the user should be sent to.
type OAuthResponse struct {
	Provider string
	URL      string
}

// Credentials for password sign in, either Email or Phone is used.
type Credentials struct {
	Email    string
	Phone    string
	Password string
}

// SignUpParams defines a new user registration.
type SignUpParams struct {
	Email      string
	Phone      string
	Password   string
	Data       map[string]any // user metadata
	RedirectTo string         // confirmation redirect
}

// OAuthParams defines third-party provider sign in.
type OAuthParams struct {
	Provider   string // e.g. github, google
	RedirectTo string
	Scopes     string // space separated
}

// OTPParams defines passwordless sign in with a one-time code or magic link.
type OTPParams struct {
	Email            string
	Phone            string
	ShouldCreateUser bool
	RedirectTo       string
}

// VerifyOTPParams defines verification of a one-time code.
type VerifyOTPParams struct {
	Email string
	Phone string
	Token string
	Type  string // email, sms, magiclink, signup, recovery, invite
}

// UserAttributes defines updatable attributes of the signed-in user. Empty fields are not changed.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// SessionTokens are externally obtained tokens used to establish a session.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
}

// AdminUserAttributes defines a user for admin create and update operations.
type AdminUserAttributes struct {
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Password     string         `json:"password,omitempty"`
	EmailConfirm bool           `json:"email_confirm,omitempty"`
	PhoneConfirm bool           `json:"phone_confirm,omitempty"`
	Role         string         `json:"role,omitempty"`
	BanDuration  string         `json:"ban_duration,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// ListUsersParams defines pagination for admin user listing, 1-based page.
type ListUsersParams struct {
	Page    int
	PerPage int
}

// EnrollParams defines a new MFA factor.
type EnrollParams struct {
	FactorType   string // only totp is supported by the auth service
	FriendlyName string
	Issuer       string
}

// MFAVerifyParams defines verification of an MFA challenge.
type MFAVerifyParams struct {
	FactorID    string
	ChallengeID string
	Code        string
}

// AuthEvent is the kind of auth state change passed to listeners.
type AuthEvent string

// auth state change events
const (
	EventSignedIn             AuthEvent = "SIGNED_IN"
	EventSignedOut            AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed       AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated          AuthEvent = "USER_UPDATED"
	EventMFAChallengeVerified AuthEvent = "MFA_CHALLENGE_VERIFIED"
)

// AuthStateFunc is called on auth state changes. Session is nil for EventSignedOut.
type AuthStateFunc func(event AuthEvent, session *Session)

// Subscription is returned by OnAuthStateChange.
type Subscription struct {
	ID     string
	once   sync.Once
	cancel func()
}

func newSubscription(id string, cancel func()) *Subscription {
	return &Subscription{ID: id, cancel: cancel}
}

// Unsubscribe stops delivery of auth state changes. Safe to call many times.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Result is the response of a data query.
type Result struct {
	Data   json.RawMessage // raw json body, "null" if the query returned nothing
	Count  int64           // total count if requested with Count, -1 otherwise
	Status int             // http status of the response
}

// Empty reports whether the result has no data.
func (r *Result) Empty() bool {
	return r == nil || len(r.Data) == 0 || string(r.Data) == "null"
}

// Decode unmarshals result data into dest. Empty results leave dest untouched.
func (r *Result) Decode(dest any) error {
	if r.Empty() {
		return nil
	}
	if err := json.Unmarshal(r.Data, dest); err != nil {
		return fmt.Errorf("can't decode result: %w", err)
	}
	return nil
}
