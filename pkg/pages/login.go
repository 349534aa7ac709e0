package pages

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/huddle-sports/huddle/pkg/backend"
)

// Login is the sign-in page controller.
type Login struct {
	Client      backend.Interface
	RedirectTo  string // where oauth providers return to
	AfterSignIn string // RouteProfile if empty
}

// Submit signs in with email and password.
func (l *Login) Submit(ctx context.Context, email, password string) Outcome {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Outcome{Notice: destructive("Login Failed", "Email and password are required.")}
	}

	_, err := l.Client.Auth().SignInWithPassword(ctx, backend.Credentials{Email: email, Password: password})
	if err != nil {
		return Outcome{Notice: l.failure(err)}
	}

	log.Printf("[INFO] signed in %s", email)
	dest := l.AfterSignIn
	if dest == "" {
		dest = RouteProfile
	}
	return Outcome{Redirect: dest, Notice: &Notice{Title: "Login Successful",
		Description: "Welcome back! You have been logged in.", Variant: VariantDefault}}
}

// Social starts sign-in with a third-party provider, redirecting to the provider page.
func (l *Login) Social(ctx context.Context, provider string) Outcome {
	resp, err := l.Client.Auth().SignInWithOAuth(ctx, backend.OAuthParams{Provider: provider, RedirectTo: l.RedirectTo})
	if err != nil {
		if backend.IsNotConfigured(err) {
			return Outcome{Notice: &Notice{Title: "Service Unavailable",
				Description: fmt.Sprintf("Social login with %s is not available right now.", provider), Variant: VariantDefault}}
		}
		log.Printf("[WARN] social login with %s failed: %v", provider, err)
		return Outcome{Notice: destructive("Login Error", "An unexpected error occurred. Please try again.")}
	}
	return Outcome{Redirect: resp.URL}
}

// SignUp navigates to the sign-up page.
func (l *Login) SignUp() Outcome {
	return Outcome{Redirect: RouteSignUp}
}

func (l *Login) failure(err error) *Notice {
	var apiErr *backend.APIError
	switch {
	case backend.IsNotConfigured(err):
		return destructive("Service Unavailable", "Sign in is not available, the service is not configured.")
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return destructive("Login Failed", apiErr.Message)
	}
	log.Printf("[WARN] sign in failed: %v", err)
	return destructive("Login Error", "An unexpected error occurred. Please try again.")
}
