package pages

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/huddle-sports/huddle/pkg/backend"
	"github.com/huddle-sports/huddle/pkg/events"
)

// CreateEvent is the create event page controller, available to signed-in users only.
type CreateEvent struct {
	Client backend.Interface
	Events *events.Service
}

// Mount checks there is a signed-in user, anonymous visitors are sent to the login page.
func (c *CreateEvent) Mount(ctx context.Context) Outcome {
	sess, err := c.Client.Auth().GetSession(ctx)
	if err != nil {
		log.Printf("[WARN] can't get session: %v", err)
	}
	if err != nil || sess == nil {
		return loginRequired()
	}
	return Outcome{Render: true}
}

// Submit creates the event and goes to its page.
func (c *CreateEvent) Submit(ctx context.Context, e events.Event) Outcome {
	created, err := c.Events.Create(ctx, e)
	if err != nil {
		var apiErr *backend.APIError
		var invalid *multierror.Error
		switch {
		case errors.Is(err, events.ErrUnauthenticated):
			return loginRequired()
		case backend.IsNotConfigured(err):
			return Outcome{Render: true, Notice: destructive("Service Unavailable",
				"Events can't be created, the service is not configured.")}
		case errors.As(err, &apiErr):
			log.Printf("[WARN] can't create event: %v", err)
			return Outcome{Render: true, Notice: destructive("Event Not Created", apiErr.Message)}
		case errors.As(err, &invalid):
			return Outcome{Render: true, Notice: destructive("Invalid Event", strings.Join(messages(invalid), "; "))}
		}
		log.Printf("[WARN] can't create event: %v", err)
		return Outcome{Render: true, Notice: destructive("Event Not Created", "An unexpected error occurred. Please try again.")}
	}
	return Outcome{Redirect: RouteEvents + "/" + created.ID, Notice: &Notice{Title: "Event Created",
		Description: "Your event \"" + created.Title + "\" is live.", Variant: VariantDefault}}
}

func messages(merr *multierror.Error) []string {
	res := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		res = append(res, e.Error())
	}
	return res
}

func loginRequired() Outcome {
	return Outcome{Redirect: RouteLogin, Notice: destructive("Authentication Required", "Please log in to create an event.")}
}
