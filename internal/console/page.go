// Package console hosts the uploader and the detection history in a terminal session.
package console

import (
	"context"
	"log/slog"
	"sync"

	"github.com/persondetect/detect-console/internal/dialog"
	"github.com/persondetect/detect-console/internal/history"
	"github.com/persondetect/detect-console/internal/preview"
	"github.com/persondetect/detect-console/internal/uploader"
)

// API is everything the page's components need from the detection backend.
type API interface {
	history.API
	uploader.API
}

// Page composes the uploader and the history browser. It owns the refresh flag
// and flips it whenever an upload succeeds so the history reloads.
type Page struct {
	Uploader *uploader.Uploader
	History  *history.Browser

	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	refresh bool
}

// NewPage wires both components against api.
func NewPage(api API, previews *preview.Store, confirm dialog.Confirmer, notify dialog.Notifier, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Page{logger: logger, ctx: context.Background()}
	p.History = history.NewBrowser(api, confirm, notify, logger.With(slog.String("component", "history")))
	p.Uploader = uploader.New(api, previews, notify, p.uploadSucceeded, logger.With(slog.String("component", "uploader")))
	return p
}

// Mount loads the first page of history. Refreshes triggered by uploads use ctx.
func (p *Page) Mount(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.History.Mount(ctx)
}

// RefreshFlag returns the current value of the refresh toggle.
func (p *Page) RefreshFlag() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh
}

// Close tears down the uploader, releasing its preview.
func (p *Page) Close() error {
	return p.Uploader.Close()
}

func (p *Page) uploadSucceeded() {
	p.mu.Lock()
	p.refresh = !p.refresh
	flag, ctx := p.refresh, p.ctx
	p.mu.Unlock()

	p.logger.Debug("refresh toggled", slog.Bool("flag", flag))
	p.History.ObserveRefresh(ctx, flag)
}
