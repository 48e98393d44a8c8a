package webapp

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/pageimg/pageimg"
)

var scaleSteps = []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3}

// viewState is what the viewer URL encodes
type viewState struct {
	Document string
	Page     int
	Scale    float64
	Rotate   int
	Forms    bool
}

func parseViewState(u *url.URL) viewState {
	q := u.Query()
	state := viewState{Document: q.Get("doc"), Page: 1, Scale: 1}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		state.Page = page
	}
	if scale, err := strconv.ParseFloat(q.Get("scale"), 64); err == nil && scale > 0 {
		// clamp to the zoom range so a hand edited URL cannot ask for a huge surface
		state.Scale = math.Min(math.Max(scale, scaleSteps[0]), scaleSteps[len(scaleSteps)-1])
	}
	if rotate, err := strconv.Atoi(q.Get("rotate")); err == nil && rotate%90 == 0 {
		state.Rotate = pageimg.NormalizeRotation(rotate)
	}
	state.Forms, _ = strconv.ParseBool(q.Get("forms"))
	return state
}

func (s viewState) URL() string {
	q := url.Values{}
	q.Set("doc", s.Document)
	q.Set("page", strconv.Itoa(s.Page))
	q.Set("scale", strconv.FormatFloat(s.Scale, 'f', -1, 64))
	q.Set("rotate", strconv.Itoa(s.Rotate))
	if s.Forms {
		q.Set("forms", "true")
	}
	return "/view?" + q.Encode()
}

func (s viewState) zoom(steps int) viewState {
	i := 0
	for i < len(scaleSteps)-1 && scaleSteps[i] < s.Scale {
		i++
	}
	i += steps
	if i < 0 {
		i = 0
	}
	if i >= len(scaleSteps) {
		i = len(scaleSteps) - 1
	}
	s.Scale = scaleSteps[i]
	return s
}

// ViewerPage shows a single page of a document with paging, zoom and
// rotation controls
type ViewerPage struct {
	app.Compo
	ctx     app.Context
	state   viewState
	page    *RemotePage
	summary *pageimg.PageSummary
	loading bool
	error   string
}

// OnNav is called when navigation occurs
func (v *ViewerPage) OnNav(ctx app.Context) {
	v.ctx = ctx
	next := parseViewState(app.Window().URL())
	reload := v.page == nil || next.Document != v.state.Document || next.Page != v.state.Page
	v.state = next
	if next.Document != "" {
		if err := ctx.LocalStorage().Set(lastViewKey, next.URL()); err != nil {
			app.Log("unable to remember last view:", err)
		}
	}
	if !reload {
		return
	}
	v.summary = nil
	v.error = ""
	if next.Document == "" {
		v.error = "No document selected"
		return
	}
	v.loading = true
	v.loadPage(ctx, next)
}

func (v *ViewerPage) loadPage(ctx app.Context, state viewState) {
	ctx.Async(func() {
		page, err := LoadRemotePage(context.Background(), nil, GetAPIBaseURL(), state.Document, state.Page)
		ctx.Dispatch(func(ctx app.Context) {
			v.loading = false
			if err != nil {
				v.error = err.Error()
				v.page = nil
				return
			}
			v.page = page
		})
	})
}

// onRenderSuccess and onRenderError run on the render goroutine
func (v *ViewerPage) onRenderSuccess(summary pageimg.PageSummary) {
	v.ctx.Dispatch(func(ctx app.Context) {
		v.summary = &summary
		v.error = ""
	})
}

func (v *ViewerPage) onRenderError(err error) {
	v.ctx.Dispatch(func(ctx app.Context) {
		v.summary = nil
		v.error = fmt.Sprintf("Unable to render page: %v", err)
	})
}

func (v *ViewerPage) navigate(state viewState) app.EventHandler {
	return func(ctx app.Context, e app.Event) {
		ctx.Navigate(state.URL())
	}
}

// Render renders the viewer
func (v *ViewerPage) Render() app.UI {
	var content app.UI
	switch {
	case v.loading:
		content = app.Div().Class("loading").Body(app.Text("Loading..."))
	case v.page == nil && v.error != "":
		content = app.Div().Class("error").Body(app.Text("Error: " + v.error))
	case v.page == nil:
		content = app.Div()
	default:
		var errorUI app.UI = app.Div()
		if v.error != "" {
			errorUI = app.Div().Class("error").Body(app.Text(v.error))
		}
		content = app.Div().Class("viewer-canvas").Body(
			errorUI,
			&PageImg{
				Page:                   v.page,
				Scale:                  v.state.Scale,
				Rotate:                 v.state.Rotate,
				RenderInteractiveForms: v.state.Forms,
				PixelRatio:             devicePixelRatio(),
				OnRenderSuccess:        v.onRenderSuccess,
				OnRenderError:          v.onRenderError,
			},
		)
	}

	return app.Div().
		Class("viewer-page").
		Body(
			app.H2().Text(v.state.Document),
			v.renderToolbar(),
			content,
			v.renderSummary(),
		)
}

// renderToolbar renders paging, zoom and rotation controls
func (v *ViewerPage) renderToolbar() app.UI {
	pageCount := 0
	if v.page != nil {
		pageCount = v.page.Info.PageCount
	}
	prev, next := v.state, v.state
	prev.Page--
	next.Page++
	rotateLeft, rotateRight := v.state, v.state
	rotateLeft.Rotate = pageimg.NormalizeRotation(v.state.Rotate - 90)
	rotateRight.Rotate = pageimg.NormalizeRotation(v.state.Rotate + 90)
	forms := v.state
	forms.Forms = !v.state.Forms

	return app.Div().Class("viewer-toolbar").Body(
		app.Button().
			Class("pagination-btn").
			Disabled(v.state.Page <= 1).
			OnClick(v.navigate(prev)).
			Body(app.Text("← Previous")),
		app.Span().Class("pagination-info").Body(
			app.Text(fmt.Sprintf("Page %d of %d", v.state.Page, pageCount)),
		),
		app.Button().
			Class("pagination-btn").
			Disabled(pageCount == 0 || v.state.Page >= pageCount).
			OnClick(v.navigate(next)).
			Body(app.Text("Next →")),
		app.Button().
			Class("pagination-btn-small").
			OnClick(v.navigate(v.state.zoom(-1))).
			Body(app.Text("−")),
		app.Span().Class("pagination-info").Body(
			app.Text(fmt.Sprintf("%.0f%%", v.state.Scale*100)),
		),
		app.Button().
			Class("pagination-btn-small").
			OnClick(v.navigate(v.state.zoom(1))).
			Body(app.Text("+")),
		app.Button().
			Class("pagination-btn-small").
			OnClick(v.navigate(rotateLeft)).
			Body(app.Text("⟲")),
		app.Button().
			Class("pagination-btn-small").
			OnClick(v.navigate(rotateRight)).
			Body(app.Text("⟳")),
		app.Label().Class("viewer-forms").Body(
			app.Input().
				Type("checkbox").
				Checked(v.state.Forms).
				OnChange(v.navigate(forms)),
			app.Text(" Form fields"),
		),
	)
}

func (v *ViewerPage) renderSummary() app.UI {
	if v.summary == nil {
		return app.Div()
	}
	s := v.summary
	return app.P().Class("page-info").Text(fmt.Sprintf(
		"Page %d rendered at %.0f × %.0f (original %.0f × %.0f pt, rotated %d°)",
		s.PageNumber, s.Width, s.Height, s.OriginalWidth, s.OriginalHeight, s.Rotation))
}

// devicePixelRatio reads the browser pixel density
func devicePixelRatio() float64 {
	if !app.IsClient {
		return 1
	}
	ratio := app.Window().Get("devicePixelRatio")
	if !ratio.Truthy() || ratio.Float() <= 0 {
		return 1
	}
	return ratio.Float()
}
