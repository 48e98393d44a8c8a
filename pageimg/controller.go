package pageimg

import (
	"context"
	"math"
	"sync"
)

// Options configures a Controller. Page is required; Scale and PixelRatio
// default to 1.
type Options struct {
	Page                   PageHandle
	Scale                  float64
	Rotate                 int
	RenderInteractiveForms bool
	PixelRatio             float64
	Encoding               Encoding

	// OnRenderSuccess and OnRenderError fire at most once per session, after
	// the state transition. They must not call Start, Update or Dispose
	// synchronously.
	OnRenderSuccess func(PageSummary)
	OnRenderError   func(error)
	// OnChange is called whenever a new state is advertised.
	OnChange func(State)
}

func (o Options) withDefaults() Options {
	if o.Scale == 0 {
		o.Scale = 1
	}
	if o.PixelRatio == 0 {
		o.PixelRatio = 1
	}
	if o.Encoding.Format == "" {
		o.Encoding.Format = FormatPNG
	}
	return o
}

func (o Options) validate() error {
	if o.Page == nil {
		return ErrNoPage
	}
	if !validFactor(o.Scale) || !validFactor(o.PixelRatio) {
		return ErrInvalidScale
	}
	if o.Rotate%90 != 0 {
		return ErrInvalidRotation
	}
	return nil
}

func validFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// restartRequired reports whether moving from o to n invalidates the
// rendered page.
func (o Options) restartRequired(n Options) bool {
	return o.Page != n.Page ||
		o.Scale != n.Scale ||
		NormalizeRotation(o.Rotate) != NormalizeRotation(n.Rotate) ||
		o.RenderInteractiveForms != n.RenderInteractiveForms ||
		o.PixelRatio != n.PixelRatio ||
		o.Encoding != n.Encoding
}

// Controller runs render sessions for one page slot.
type Controller struct {
	// cbMu orders settlement callbacks against session changes so that a
	// superseded session can never report.
	cbMu sync.Mutex

	mu       sync.Mutex
	opts     Options
	state    State
	surface  *Surface
	image    string
	task     RenderTask
	session  uint64
	settled  chan struct{}
	started  bool
	disposed bool

	wg sync.WaitGroup
}

// New validates opts and returns an idle controller.
func New(opts Options) (*Controller, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Controller{opts: opts}, nil
}

// Start begins a fresh session, tearing down any previous one first.
func (c *Controller) Start() error {
	return c.restart(nil)
}

// Update replaces the options. A change to anything that affects the raster
// cleans the page caches and restarts rendering from scratch.
func (c *Controller) Update(opts Options) error {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	prev := c.opts
	c.opts = opts
	started := c.started
	c.mu.Unlock()

	if !started || !prev.restartRequired(opts) {
		return nil
	}
	logger().Debug("Page options changed, rendering from scratch", "page", opts.Page.Index())
	return c.restart(prev.Page)
}

// Dispose cancels the running session and releases the surface. Page
// cleanup still happens once the cancelled task settles.
func (c *Controller) Dispose() {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.session++
	c.teardownLocked()
	c.transition(eventDispose)
}

// teardownLocked cancels the active task and drops everything the session
// owns. It returns the channel closed when that session has fully settled.
func (c *Controller) teardownLocked() <-chan struct{} {
	if c.task != nil && c.task.Running() {
		c.task.Cancel()
	}
	c.task = nil
	if c.surface != nil {
		c.surface.Release()
		c.surface = nil
	}
	c.image = ""
	return c.settled
}

func (c *Controller) transition(ev event) bool {
	s, ok := next(c.state, ev)
	if ok {
		c.state = s
	}
	return ok
}

// superseded reports whether session id was replaced or disposed while it
// waited. The newer session owns the page handle from then on.
func (c *Controller) superseded(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed || c.session != id
}

func (c *Controller) restart(cleanup PageHandle) error {
	c.cbMu.Lock()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.cbMu.Unlock()
		return ErrDisposed
	}
	c.session++
	id := c.session
	c.started = true
	prev := c.teardownLocked()
	c.mu.Unlock()
	c.cbMu.Unlock()

	// The superseded session finishes its page cleanup before anything new
	// touches the handle.
	if prev != nil {
		<-prev
	}
	if c.superseded(id) {
		return nil
	}
	if cleanup != nil {
		cleanup.Cleanup()
	}

	c.mu.Lock()
	if c.disposed || c.session != id {
		c.mu.Unlock()
		return nil
	}
	opts := c.opts
	c.transition(eventStart)
	renderViewport := opts.Page.Viewport(opts.Scale*opts.PixelRatio, opts.Rotate)
	viewport := opts.Page.Viewport(opts.Scale, opts.Rotate)
	surface := NewSurface(renderViewport.PixelSize())
	surface.SetDisplaySize(viewport.DisplaySize())
	c.surface = surface
	settled := make(chan struct{})
	c.settled = settled
	c.wg.Add(1)
	c.mu.Unlock()

	logger().Debug("Rendering page", "page", opts.Page.Index(), "scale", opts.Scale, "rotation", opts.Rotate,
		"width", renderViewport.Width, "height", renderViewport.Height)
	task := opts.Page.Render(context.Background(), RenderContext{
		Canvas:           surface.Canvas(),
		Viewport:         renderViewport,
		InteractiveForms: opts.RenderInteractiveForms,
	})

	c.mu.Lock()
	current := !c.disposed && c.session == id
	if current {
		c.task = task
	}
	c.mu.Unlock()
	if !current {
		task.Cancel()
	}

	go c.watch(id, opts, task, surface, settled)

	if current && opts.OnChange != nil {
		opts.OnChange(StateLoading)
	}
	return nil
}

// watch observes the settlement of one task. Page cleanup and surface
// release run whatever the outcome, even after Dispose.
func (c *Controller) watch(id uint64, opts Options, task RenderTask, surface *Surface, settled chan struct{}) {
	defer func() {
		opts.Page.Cleanup()
		surface.Release()
		close(settled)
		c.wg.Done()
	}()

	<-task.Done()
	res := c.settle(task.Err(), surface, opts.Encoding)

	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	c.mu.Lock()
	if c.disposed || c.session != id {
		c.mu.Unlock()
		return
	}
	c.task = nil
	c.surface = nil
	if res.kind == resultSuccess {
		c.image = res.image
	}
	c.transition(res.event())
	state := c.state
	c.mu.Unlock()

	switch res.kind {
	case resultSuccess:
		if opts.OnChange != nil {
			opts.OnChange(state)
		}
		if opts.OnRenderSuccess != nil {
			opts.OnRenderSuccess(makePageSummary(opts.Page, opts.Scale, opts.Rotate))
		}
	case resultFailure:
		logger().Error("Page failed to render", "page", opts.Page.Index(), "error", res.err)
		if opts.OnChange != nil {
			opts.OnChange(state)
		}
		if opts.OnRenderError != nil {
			opts.OnRenderError(res.err)
		}
	}
}

// settle classifies a task outcome. On success the surface is encoded and
// released straight away.
func (c *Controller) settle(err error, surface *Surface, enc Encoding) taskResult {
	if err != nil {
		if IsCancelled(err) {
			return taskResult{kind: resultCancelled, err: err}
		}
		return taskResult{kind: resultFailure, err: err}
	}
	image, ok, err := encodeSurface(surface, enc)
	if err != nil {
		return taskResult{kind: resultFailure, err: err}
	}
	if !ok {
		return taskResult{kind: resultCancelled}
	}
	return taskResult{kind: resultSuccess, image: image}
}

// encodeSurface is a no-op for a surface that was already torn down.
func encodeSurface(surface *Surface, enc Encoding) (string, bool, error) {
	if surface == nil || surface.Released() {
		return "", false, nil
	}
	image, err := surface.Encode(enc)
	surface.Release()
	if err != nil {
		return "", false, err
	}
	return image, true, nil
}

// State returns the current loading state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Image returns the encoded page, empty unless the state is StateSuccess.
func (c *Controller) Image() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image
}

// Options returns the options currently in effect.
func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// HasSurface reports whether the current session still owns a raster.
func (c *Controller) HasSurface() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface != nil
}

// Settled returns a channel closed once the latest session has settled and
// cleaned up. Before any session it is already closed.
func (c *Controller) Settled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.settled
}

// Wait blocks until every session started so far has settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}
