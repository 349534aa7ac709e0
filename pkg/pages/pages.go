// Package pages has UI-agnostic controllers of the login and create event pages. Controllers call the
// backend client and return an Outcome telling the view where to go and which notice to show.
package pages

// routes used by controllers
const (
	RouteLogin   = "/login"
	RouteSignUp  = "/signup"
	RouteProfile = "/profile"
	RouteEvents  = "/events"
)

// Variant is the notice style.
type Variant string

// notice variants
const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a toast shown to the user.
type Notice struct {
	Title       string
	Description string
	Variant     Variant
}

// Outcome is the result of a controller action. Empty Redirect means stay on the page.
type Outcome struct {
	Redirect string
	Render   bool // page content should be shown
	Notice   *Notice
}

func destructive(title, description string) *Notice {
	return &Notice{Title: title, Description: description, Variant: VariantDestructive}
}
