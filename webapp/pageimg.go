package webapp

import (
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/pageimg/pageimg"
)

// PageImg displays one document page as a static image. While the page is
// rendering, or when it failed, an empty box of the same size is shown.
type PageImg struct {
	app.Compo

	Page                   pageimg.PageHandle
	Scale                  float64
	Rotate                 int
	RenderInteractiveForms bool
	PixelRatio             float64
	OnRenderSuccess        func(pageimg.PageSummary)
	OnRenderError          func(error)

	controller *pageimg.Controller
	output     pageimg.Output
}

func (p *PageImg) options(notify func()) pageimg.Options {
	return pageimg.Options{
		Page:                   p.Page,
		Scale:                  p.Scale,
		Rotate:                 p.Rotate,
		RenderInteractiveForms: p.RenderInteractiveForms,
		PixelRatio:             p.PixelRatio,
		OnRenderSuccess:        p.OnRenderSuccess,
		OnRenderError:          p.OnRenderError,
		OnChange:               func(pageimg.State) { notify() },
	}
}

// mount creates the controller and starts the first session. notify runs on
// the render goroutine whenever the output may have changed.
func (p *PageImg) mount(notify func()) error {
	controller, err := pageimg.New(p.options(notify))
	if err != nil {
		return err
	}
	p.controller = controller
	p.output = controller.Output()
	return controller.Start()
}

// update pushes the current props to the controller. It restarts rendering
// only if something that affects the raster changed.
func (p *PageImg) update(notify func()) error {
	if p.controller == nil {
		return p.mount(notify)
	}
	if err := p.controller.Update(p.options(notify)); err != nil {
		return err
	}
	p.output = p.controller.Output()
	return nil
}

func (p *PageImg) dismount() {
	if p.controller != nil {
		p.controller.Dispose()
	}
}

// refresh is handed to the controller; the UI is only touched from the
// dispatch goroutine.
func (p *PageImg) refresh(ctx app.Context) func() {
	return func() {
		ctx.Dispatch(func(ctx app.Context) {
			if p.controller != nil {
				p.output = p.controller.Output()
			}
		})
	}
}

// OnMount is called when the component is mounted
func (p *PageImg) OnMount(ctx app.Context) {
	if err := p.mount(p.refresh(ctx)); err != nil {
		app.Log("pageimg: unable to render page:", err)
	}
}

// OnUpdate is called when the parent changes the props
func (p *PageImg) OnUpdate(ctx app.Context) {
	if err := p.update(p.refresh(ctx)); err != nil {
		app.Log("pageimg: unable to update page:", err)
	}
}

// OnDismount is called when the component is unmounted
func (p *PageImg) OnDismount() {
	p.dismount()
}

// Render renders the placeholder or the page image
func (p *PageImg) Render() app.UI {
	return renderOutput(p.output)
}

func renderOutput(out pageimg.Output) app.UI {
	width := fmt.Sprintf("%vpx", out.Width)
	height := fmt.Sprintf("%vpx", out.Height)
	if out.Kind == pageimg.OutputImage {
		return app.Img().
			Class("pageimg").
			Src(out.Src).
			Alt("").
			Draggable(false).
			Style("display", "block").
			Style("width", width).
			Style("height", height).
			Style("user-select", "none")
	}
	return app.Div().
		Class("pageimg pageimg-placeholder").
		Style("width", width).
		Style("height", height).
		Style("user-select", "none")
}
