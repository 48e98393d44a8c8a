package pageimg

// OutputKind tells the view what to draw.
type OutputKind int

const (
	// OutputPlaceholder is an empty box, shown while idle, loading or failed.
	OutputPlaceholder OutputKind = iota
	// OutputImage is the encoded page image.
	OutputImage
)

// Output describes the visible result of a controller. Both kinds occupy the
// same layout box so the switch from placeholder to image never shifts the
// surrounding layout.
type Output struct {
	Kind       OutputKind
	Width      float64
	Height     float64
	Src        string
	Selectable bool
}

// Output returns what should currently be displayed.
func (c *Controller) Output() Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	viewport := c.opts.Page.Viewport(c.opts.Scale, c.opts.Rotate)
	out := Output{
		Kind:   OutputPlaceholder,
		Width:  viewport.Width,
		Height: viewport.Height,
	}
	if c.state == StateSuccess && c.image != "" {
		out.Kind = OutputImage
		out.Src = c.image
	}
	return out
}
