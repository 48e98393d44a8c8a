package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// HomePage lists the documents available for viewing
type HomePage struct {
	app.Compo
	documents []DocumentInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (h *HomePage) OnMount(ctx app.Context) {
	h.loading = true
	h.fetchDocuments(ctx)
}

// fetchDocuments fetches the document list
func (h *HomePage) fetchDocuments(ctx app.Context) {
	ctx.Async(func() {
		res := app.Window().Call("fetch", BuildAPIURL("/api/documents"))

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]

			response.Call("json").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				if len(args) == 0 {
					return nil
				}

				jsonData := args[0]
				jsonStr := app.Window().Get("JSON").Call("stringify", jsonData).String()

				var documents []DocumentInfo
				ctx.Dispatch(func(ctx app.Context) {
					if err := json.Unmarshal([]byte(jsonStr), &documents); err != nil {
						h.error = fmt.Sprintf("Failed to parse response: %v", err)
					} else {
						h.documents = documents
					}
					h.loading = false
				})

				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(func(ctx app.Context) {
				h.error = "Network error"
				h.loading = false
			})
			return nil
		}))
	})
}

// Render renders the home page
func (h *HomePage) Render() app.UI {
	var content app.UI

	if h.loading {
		content = app.Div().Class("loading").Body(app.Text("Loading..."))
	} else if h.error != "" {
		content = app.Div().Class("error").Body(app.Text("Error: " + h.error))
	} else if len(h.documents) == 0 {
		content = app.Div().Class("no-results").Body(app.Text("No documents found."))
	} else {
		content = app.Div().Class("document-grid").Body(
			app.Range(h.documents).Slice(func(i int) app.UI {
				return &DocumentCard{Document: h.documents[i]}
			}),
		)
	}

	return app.Div().
		Class("home-page").
		Body(
			app.H2().Text("Documents"),
			app.P().Class("page-info").Text(fmt.Sprintf("%d documents", len(h.documents))),
			content,
		)
}

// DocumentCard displays a single document card
type DocumentCard struct {
	app.Compo
	Document DocumentInfo
}

// Render renders the document card
func (d *DocumentCard) Render() app.UI {
	var detail app.UI
	if d.Document.Error != "" {
		detail = app.P().Class("document-error").Text(d.Document.Error)
	} else {
		detail = app.A().
			Href(viewState{Document: d.Document.Name, Page: 1, Scale: 1}.URL()).
			Class("document-link").
			Body(app.Text("View Document"))
	}

	return app.Div().
		Class("document-card").
		Body(
			app.Div().Class("document-icon").Body(
				app.Text("📄"),
			),
			app.Div().Class("document-info").Body(
				app.H3().Text(d.Document.Name),
				app.P().
					Class("document-date").
					Text(fmt.Sprintf("%d pages, %s", d.Document.Pages, formatBytes(d.Document.Size))),
				detail,
			),
		)
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
