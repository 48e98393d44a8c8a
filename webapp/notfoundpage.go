package webapp

import (
	"fmt"
	"net/url"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// lastViewKey is the local storage key holding the viewer URL last opened
const lastViewKey = "pageimg.lastView"

// NotFoundPage is shown for unknown UI routes. It offers the last viewed
// page when the browser remembers one.
type NotFoundPage struct {
	app.Compo
	path     string
	lastView string
}

// OnNav is called when navigation occurs
func (p *NotFoundPage) OnNav(ctx app.Context) {
	p.path = app.Window().URL().Path
	p.lastView = ""
	ctx.LocalStorage().Get(lastViewKey, &p.lastView)
}

// resumeLink describes the way back to the last viewed page. ok is false
// when lastView is not a viewer URL.
func resumeLink(lastView string) (href, label string, ok bool) {
	u, err := url.Parse(lastView)
	if err != nil || u.Path != "/view" {
		return "", "", false
	}
	state := parseViewState(u)
	if state.Document == "" {
		return "", "", false
	}
	return state.URL(), fmt.Sprintf("Return to %s, page %d", state.Document, state.Page), true
}

// Render renders the 404 page
func (p *NotFoundPage) Render() app.UI {
	message := "There is no page at this address."
	if p.path != "" {
		message = fmt.Sprintf("There is no page at %s.", p.path)
	}

	actions := []app.UI{}
	if href, label, ok := resumeLink(p.lastView); ok {
		actions = append(actions, app.A().
			Href(href).
			Class("not-found-home-link").
			Text(label))
	}
	actions = append(actions, app.A().
		Href("/").
		Class("not-found-home-link").
		Text("All documents"))

	return app.Div().
		Class("not-found-page").
		Body(
			app.Div().
				Class("not-found-container").
				Body(
					app.H1().
						Class("not-found-title").
						Text("404"),
					app.P().
						Class("not-found-message").
						Text(message),
					app.Div().
						Class("not-found-actions").
						Body(actions...),
				),
		)
}
