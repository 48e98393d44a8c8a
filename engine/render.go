package engine

import (
	"context"
	"errors"
	"time"

	"github.com/drummonds/pageimg/database"
	"github.com/drummonds/pageimg/pageimg"
)

// renderOptions maps a render key onto controller options
func (serverHandler *ServerHandler) renderOptions(key database.RenderKey, page pageimg.PageHandle) pageimg.Options {
	return pageimg.Options{
		Page:                   page,
		Scale:                  key.Scale,
		Rotate:                 key.Rotation,
		RenderInteractiveForms: key.InteractiveForms,
		PixelRatio:             key.PixelRatio,
		Encoding: pageimg.Encoding{
			Format:      pageimg.ImageFormat(key.Format),
			JPEGQuality: serverHandler.ServerConfig.JPEGQuality,
		},
	}
}

// renderPage runs one controller session for page and records its outcome.
// When ctx ends first the session is disposed and recorded as cancelled.
func (serverHandler *ServerHandler) renderPage(ctx context.Context, key database.RenderKey, page pageimg.PageHandle) (*database.RenderRecord, error) {
	var renderErr error
	opts := serverHandler.renderOptions(key, page)
	opts.OnRenderError = func(err error) { renderErr = err }

	controller, err := pageimg.New(opts)
	if err != nil {
		return nil, err
	}
	defer controller.Dispose()

	start := time.Now()
	if err := controller.Start(); err != nil {
		return nil, err
	}

	record := &database.RenderRecord{RenderKey: key}
	select {
	case <-controller.Settled():
		// callbacks have returned by the time the session is settled
		switch controller.State() {
		case pageimg.StateSuccess:
			record.State = database.RenderStateSuccess
			record.Image = controller.Image()
		case pageimg.StateError:
			record.State = database.RenderStateError
			if renderErr != nil {
				record.Error = renderErr.Error()
			}
		default:
			record.State = database.RenderStateCancelled
		}
	case <-ctx.Done():
		controller.Dispose()
		record.State = database.RenderStateCancelled
		Logger.Info("Render abandoned by client", "document", key.Document, "page", key.PageIndex)
	}

	out := controller.Output()
	record.Width = out.Width
	record.Height = out.Height
	record.Duration = time.Since(start)

	if err := serverHandler.DB.SaveRender(record); err != nil {
		Logger.Error("Unable to save render record", "document", key.Document, "page", key.PageIndex, "error", err)
	}
	return record, nil
}

// cachedOrRender serves a successful render from the database when one
// younger than the cache TTL exists and renders the page otherwise
func (serverHandler *ServerHandler) cachedOrRender(ctx context.Context, key database.RenderKey, page pageimg.PageHandle) (*database.RenderRecord, bool, error) {
	ttl := time.Duration(serverHandler.ServerConfig.CacheTTLMinutes) * time.Minute
	record, err := serverHandler.DB.GetCachedRender(key, ttl)
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, database.ErrRenderNotFound) {
		Logger.Warn("Render cache lookup failed", "document", key.Document, "error", err)
	}
	record, err = serverHandler.renderPage(ctx, key, page)
	return record, false, err
}
