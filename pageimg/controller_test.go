package pageimg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePage records every call the controller makes and hands out tasks the
// test settles by hand.
type fakePage struct {
	mu     sync.Mutex
	index  int
	width  float64
	height float64
	events []string
	tasks  []*fakeTask
	calls  []RenderContext

	// stubborn tasks ignore Cancel and only settle when resolved.
	stubborn bool
}

func newFakePage(width, height float64) *fakePage {
	return &fakePage{width: width, height: height}
}

func (p *fakePage) record(ev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePage) Index() int { return p.index }

func (p *fakePage) Viewport(scale float64, rotation int) Viewport {
	return NewViewport(p.width, p.height, scale, rotation)
}

func (p *fakePage) Render(ctx context.Context, rc RenderContext) RenderTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "render")
	task := &fakeTask{page: p, done: make(chan struct{}), stubborn: p.stubborn}
	p.tasks = append(p.tasks, task)
	p.calls = append(p.calls, rc)
	return task
}

func (p *fakePage) Cleanup() { p.record("cleanup") }

func (p *fakePage) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakePage) Task(i int) *fakeTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[i]
}

func (p *fakePage) Call(i int) RenderContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

type fakeTask struct {
	page     *fakePage
	mu       sync.Mutex
	done     chan struct{}
	err      error
	settled  bool
	stubborn bool
}

func (t *fakeTask) resolve(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return
	}
	t.err = err
	t.settled = true
	close(t.done)
}

func (t *fakeTask) Done() <-chan struct{} { return t.done }

func (t *fakeTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *fakeTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.settled
}

func (t *fakeTask) Cancel() {
	t.page.record("cancel")
	if !t.stubborn {
		t.resolve(ErrRenderCancelled)
	}
}

// callbacks counts what the controller reports.
type callbacks struct {
	mu        sync.Mutex
	successes []PageSummary
	failures  []error
}

func (cb *callbacks) attach(opts Options) Options {
	opts.OnRenderSuccess = func(s PageSummary) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cb.successes = append(cb.successes, s)
	}
	opts.OnRenderError = func(err error) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cb.failures = append(cb.failures, err)
	}
	return opts
}

func (cb *callbacks) counts() (int, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.successes), len(cb.failures)
}

func waitSettled(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("render session did not settle")
	}
}

func newController(t *testing.T, opts Options) *Controller {
	t.Helper()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewValidatesOptions(t *testing.T) {
	page := newFakePage(100, 100)
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{name: "missing page", opts: Options{}, want: ErrNoPage},
		{name: "negative scale", opts: Options{Page: page, Scale: -1}, want: ErrInvalidScale},
		{name: "bad pixel ratio", opts: Options{Page: page, PixelRatio: -2}, want: ErrInvalidScale},
		{name: "odd rotation", opts: Options{Page: page, Rotate: 45}, want: ErrInvalidRotation},
		{name: "defaults", opts: Options{Page: page}, want: nil},
		{name: "negative quarter turn", opts: Options{Page: page, Rotate: -90}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSuccessfulSessionReportsViewport(t *testing.T) {
	tests := []struct {
		name       string
		scale      float64
		rotate     int
		wantWidth  float64
		wantHeight float64
	}{
		{name: "scale 1", scale: 1, rotate: 0, wantWidth: 200, wantHeight: 300},
		{name: "scale 2 rotated", scale: 2, rotate: 90, wantWidth: 600, wantHeight: 400},
		{name: "thumbnail upside down", scale: 0.5, rotate: 180, wantWidth: 100, wantHeight: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage(200, 300)
			var cb callbacks
			c := newController(t, cb.attach(Options{Page: page, Scale: tt.scale, Rotate: tt.rotate}))

			if err := c.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			page.Task(0).resolve(nil)
			waitSettled(t, c)

			successes, failures := cb.counts()
			if successes != 1 || failures != 0 {
				t.Fatalf("callbacks = %d successes, %d failures, want 1, 0", successes, failures)
			}
			got := cb.successes[0]
			if got.Width != tt.wantWidth || got.Height != tt.wantHeight {
				t.Errorf("summary size = %vx%v, want %vx%v", got.Width, got.Height, tt.wantWidth, tt.wantHeight)
			}
			want := page.Viewport(tt.scale, tt.rotate)
			if got.Width != want.Width || got.Height != want.Height {
				t.Errorf("summary size does not match Viewport(): %+v vs %+v", got, want)
			}
			if got.PageNumber != 1 || got.Scale != tt.scale {
				t.Errorf("summary metadata = %+v", got)
			}
			if c.State() != StateSuccess {
				t.Errorf("State() = %v, want success", c.State())
			}
		})
	}
}

func TestPlaceholderAndImageShareLayoutBox(t *testing.T) {
	page := newFakePage(200, 300)
	c := newController(t, Options{Page: page, Scale: 1})

	idle := c.Output()
	if idle.Kind != OutputPlaceholder || idle.Width != 200 || idle.Height != 300 {
		t.Errorf("idle output = %+v", idle)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	loading := c.Output()
	if c.State() != StateLoading {
		t.Errorf("State() = %v, want loading", c.State())
	}
	if loading.Kind != OutputPlaceholder || loading.Src != "" {
		t.Errorf("loading output = %+v, want empty placeholder", loading)
	}

	page.Task(0).resolve(nil)
	waitSettled(t, c)

	done := c.Output()
	if done.Kind != OutputImage {
		t.Fatalf("output kind = %v, want image", done.Kind)
	}
	if !strings.HasPrefix(done.Src, "data:image/png;base64,") {
		t.Errorf("Src = %.40q, want png data URL", done.Src)
	}
	if done.Width != loading.Width || done.Height != loading.Height {
		t.Errorf("layout box changed from %vx%v to %vx%v", loading.Width, loading.Height, done.Width, done.Height)
	}
	if done.Selectable || loading.Selectable {
		t.Error("output must not be selectable")
	}
}

func TestSuccessDropsSurface(t *testing.T) {
	page := newFakePage(120, 80)
	c := newController(t, Options{Page: page})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.HasSurface() {
		t.Fatal("loading session should own a surface")
	}
	page.Task(0).resolve(nil)
	waitSettled(t, c)

	if c.HasSurface() {
		t.Error("surface still referenced after success")
	}
	if c.Image() == "" {
		t.Error("encoded image missing after success")
	}
}

func TestPixelRatioScalesRasterOnly(t *testing.T) {
	page := newFakePage(200, 300)
	c := newController(t, Options{Page: page, Scale: 1, PixelRatio: 2})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rc := page.Call(0)
	bounds := rc.Canvas.Bounds()
	if bounds.Dx() != 400 || bounds.Dy() != 600 {
		t.Errorf("canvas = %v, want 400x600", bounds)
	}
	if rc.Viewport.Scale != 2 {
		t.Errorf("render viewport scale = %v, want 2", rc.Viewport.Scale)
	}
	out := c.Output()
	if out.Width != 200 || out.Height != 300 {
		t.Errorf("display box = %vx%v, want 200x300", out.Width, out.Height)
	}
	page.Task(0).resolve(nil)
	waitSettled(t, c)
}

func TestRestartCancelsPreviousTask(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	c := newController(t, cb.attach(Options{Page: page}))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := page.Task(0)
	if err := c.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	want := []string{"render", "cancel", "cleanup", "render"}
	got := page.Events()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	if first.Running() {
		t.Error("first task still running")
	}

	// A late success of the superseded task must not be adopted.
	first.resolve(nil)
	if successes, failures := cb.counts(); successes != 0 || failures != 0 {
		t.Errorf("superseded session reported %d successes, %d failures", successes, failures)
	}

	page.Task(1).resolve(nil)
	waitSettled(t, c)
	if successes, _ := cb.counts(); successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
}

func TestCancellationIsNotAnError(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	c := newController(t, cb.attach(Options{Page: page}))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	page.Task(0).resolve(ErrRenderCancelled)
	waitSettled(t, c)

	if successes, failures := cb.counts(); successes != 0 || failures != 0 {
		t.Errorf("callbacks = %d successes, %d failures, want none", successes, failures)
	}
	if c.State() == StateError {
		t.Error("cancellation must not move to the error state")
	}
	if c.HasSurface() {
		t.Error("cancelled session still owns a surface")
	}
}

func TestFailureReportsOnce(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	c := newController(t, cb.attach(Options{Page: page}))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	boom := errors.New("invalid page content")
	page.Task(0).resolve(boom)
	waitSettled(t, c)

	successes, failures := cb.counts()
	if successes != 0 || failures != 1 {
		t.Fatalf("callbacks = %d successes, %d failures, want 0, 1", successes, failures)
	}
	if !errors.Is(cb.failures[0], boom) {
		t.Errorf("reported error = %v, want %v", cb.failures[0], boom)
	}
	if c.State() != StateError {
		t.Errorf("State() = %v, want error", c.State())
	}
	out := c.Output()
	if out.Kind != OutputPlaceholder || out.Width != 200 || out.Height != 300 {
		t.Errorf("error output = %+v, want 200x300 placeholder", out)
	}
	if events := page.Events(); events[len(events)-1] != "cleanup" {
		t.Errorf("page not cleaned after failure: %v", events)
	}
}

func TestDisposeWhileLoading(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	c := newController(t, cb.attach(Options{Page: page}))

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Dispose()

	if page.Task(0).Running() {
		t.Error("task still running after Dispose")
	}
	if c.HasSurface() {
		t.Error("surface still owned after Dispose")
	}
	c.Wait()

	if successes, failures := cb.counts(); successes != 0 || failures != 0 {
		t.Errorf("disposed session reported %d successes, %d failures", successes, failures)
	}
	want := []string{"render", "cancel", "cleanup"}
	if got := page.Events(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	if err := c.Start(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Start() after Dispose error = %v, want ErrDisposed", err)
	}
	c.Dispose()
}

func TestInteractiveFormsChangeRestartsFromScratch(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	opts := cb.attach(Options{Page: page})
	c := newController(t, opts)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	page.Task(0).resolve(nil)
	waitSettled(t, c)
	before := len(page.Events())

	opts.RenderInteractiveForms = true
	if err := c.Update(opts); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	after := page.Events()[before:]
	if strings.Join(after, ",") != "cleanup,render" {
		t.Errorf("events after update = %v, want [cleanup render]", after)
	}
	if !page.Call(1).InteractiveForms {
		t.Error("new session did not ask for interactive forms")
	}
	if c.State() != StateLoading {
		t.Errorf("State() = %v, want loading", c.State())
	}

	page.Task(1).resolve(nil)
	waitSettled(t, c)
	if successes, _ := cb.counts(); successes != 2 {
		t.Errorf("successes = %d, want 2", successes)
	}
}

func TestUpdateWithoutRasterChangeKeepsImage(t *testing.T) {
	page := newFakePage(200, 300)
	c := newController(t, Options{Page: page})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	page.Task(0).resolve(nil)
	waitSettled(t, c)
	renders := len(page.Events())

	var called bool
	if err := c.Update(Options{Page: page, OnRenderError: func(error) { called = true }}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(page.Events()) != renders {
		t.Errorf("callback-only update touched the page: %v", page.Events())
	}
	if c.State() != StateSuccess {
		t.Errorf("State() = %v, want success", c.State())
	}
	if called {
		t.Error("OnRenderError should not have been called")
	}
}

func TestScaleChangeRestarts(t *testing.T) {
	page := newFakePage(200, 300)
	var cb callbacks
	opts := cb.attach(Options{Page: page})
	c := newController(t, opts)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	opts.Scale = 2
	if err := c.Update(opts); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	want := []string{"render", "cancel", "cleanup", "cleanup", "render"}
	if got := page.Events(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	page.Task(1).resolve(nil)
	waitSettled(t, c)
	if successes, _ := cb.counts(); successes != 1 || cb.successes[0].Width != 400 {
		t.Errorf("successes = %+v, want a single 400 wide page", cb.successes)
	}
}

func TestSupersededRestartLeavesPageAlone(t *testing.T) {
	page := newFakePage(200, 300)
	page.stubborn = true
	var cb callbacks
	opts := cb.attach(Options{Page: page})
	c := newController(t, opts)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	errs := make(chan error, 2)
	update := func(scale float64) {
		o := opts
		o.Scale = scale
		errs <- c.Update(o)
	}
	sessionAt := func(want uint64) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			c.mu.Lock()
			got := c.session
			c.mu.Unlock()
			if got == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("session = %d, want %d", got, want)
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Both restarts wait on the first task, which ignores cancellation.
	go update(2)
	sessionAt(2)
	go update(3)
	sessionAt(3)

	page.Task(0).resolve(ErrRenderCancelled)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	want := []string{"render", "cancel", "cleanup", "cleanup", "render"}
	if got := page.Events(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
	page.Task(1).resolve(nil)
	waitSettled(t, c)
	if successes, _ := cb.counts(); successes != 1 || cb.successes[0].Width != 600 {
		t.Errorf("successes = %+v, want a single 600 wide page", cb.successes)
	}
}

func TestOnChangeFollowsStates(t *testing.T) {
	page := newFakePage(10, 10)
	var (
		mu     sync.Mutex
		states []State
	)
	c := newController(t, Options{Page: page, OnChange: func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}})

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	page.Task(0).resolve(errors.New("context lost"))
	waitSettled(t, c)

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateLoading || states[1] != StateError {
		t.Errorf("states = %v, want [loading error]", states)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from State
		ev   event
		to   State
		ok   bool
	}{
		{StateIdle, eventStart, StateLoading, true},
		{StateSuccess, eventStart, StateLoading, true},
		{StateError, eventStart, StateLoading, true},
		{StateLoading, eventSucceeded, StateSuccess, true},
		{StateLoading, eventFailed, StateError, true},
		{StateLoading, eventCancelled, StateLoading, true},
		{StateSuccess, eventFailed, StateSuccess, false},
		{StateIdle, eventSucceeded, StateIdle, false},
		{StateError, eventCancelled, StateError, false},
		{StateLoading, eventDispose, StateIdle, true},
	}

	for _, tt := range tests {
		got, ok := next(tt.from, tt.ev)
		if got != tt.to || ok != tt.ok {
			t.Errorf("next(%v, %d) = %v, %v; want %v, %v", tt.from, tt.ev, got, ok, tt.to, tt.ok)
		}
	}
}
