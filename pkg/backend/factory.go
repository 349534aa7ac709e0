package backend

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/huddle-sports/huddle/pkg/session"
)

// Config defines the client handle configuration.
type Config struct {
	URL         string            // service url, e.g. https://<project>.supabase.co
	AnonKey     string            // anonymous (or service role) access key
	Timeout     time.Duration     // http timeout, ignored if HTTPClient is set
	HTTPClient  *http.Client      // optional http client
	Store       session.Store     // session persistence, in-memory if nil
	StorageKey  string            // session key in Store, derived from the url if empty
	AutoRefresh bool              // refresh expiring access tokens on use
	Headers     map[string]string // extra headers added to every request
}

const defaultTimeout = 30 * time.Second

// Validate checks the url and key. All problems are reported together.
func (c Config) Validate() error {
	errs := new(multierror.Error)
	errs.ErrorFormat = inlineErrors

	if strings.TrimSpace(c.URL) == "" {
		errs = multierror.Append(errs, errors.New("service url is missing"))
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("invalid service url %q", c.URL))
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		errs = multierror.Append(errs, errors.New("anon key is missing"))
	}
	return errs.ErrorOrNil()
}

// New makes the client handle. It never fails: without a usable url and key it logs the problem
// and returns the Unconfigured client, so callers always get a working handle.
func New(cfg Config) Interface {
	live, err := NewLive(cfg)
	if err != nil {
		log.Printf("[WARN] backend url and/or anon key are missing or invalid, remote operations disabled: %v", err)
		return NewUnconfigured(err)
	}
	log.Printf("[DEBUG] backend client for %s", live.baseURL.Host)
	return live
}

// inlineErrors formats multierror as a single line
func inlineErrors(es []error) string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
