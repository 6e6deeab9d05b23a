// Package history implements the filterable, paginated detection history view.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/persondetect/detect-console/internal/dialog"
	"github.com/persondetect/detect-console/internal/metrics"
	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/repo"
	"github.com/persondetect/detect-console/internal/utils"
)

// ConfirmDeleteQuestion is asked before a detection is deleted.
const ConfirmDeleteQuestion = "Are you sure you want to delete this detection?"

// API is the subset of the detection client the browser needs.
type API interface {
	ListDetections(ctx context.Context, criteria models.FilterCriteria, page int) (models.ResultPage, error)
	DeleteDetection(ctx context.Context, id int64) error
}

// Field names one editable filter field.
type Field int

const (
	FieldMinPeople Field = iota
	FieldMaxPeople
	FieldMinConfidence
)

func (f Field) String() string {
	switch f {
	case FieldMinPeople:
		return "min-people"
	case FieldMaxPeople:
		return "max-people"
	case FieldMinConfidence:
		return "min-confidence"
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Snapshot is a point-in-time copy of the browser state.
type Snapshot struct {
	Pending    models.FilterCriteria
	Active     models.FilterCriteria
	Page       int
	TotalPages int
	Total      int
	Results    []models.DetectionRecord
	Loading    bool
	LastError  error
}

// Browser owns the pending and active filters, the current page and the last
// fetched results. It is safe for concurrent use; fetches run on the calling
// goroutine and are never cancelled, so the last response received wins.
type Browser struct {
	api     API
	confirm dialog.Confirmer
	notify  dialog.Notifier
	logger  *slog.Logger

	mu          sync.Mutex
	pending     models.FilterCriteria
	active      models.FilterCriteria
	page        int
	totalPages  int
	total       int
	results     []models.DetectionRecord
	inFlight    int
	lastError   error
	lastRefresh bool
}

// NewBrowser constructs a Browser on page 1 with empty filters. Nothing is fetched
// until Mount.
func NewBrowser(api API, confirm dialog.Confirmer, notify dialog.Notifier, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		api:     api,
		confirm: confirm,
		notify:  notify,
		logger:  logger,
		page:    1,
	}
}

// Mount performs the initial fetch.
func (b *Browser) Mount(ctx context.Context) {
	b.fetch(ctx)
}

// SetMinPeople edits the pending minimum people count.
func (b *Browser) SetMinPeople(v int) {
	b.edit(func(p *models.FilterCriteria) { p.MinPeople = models.IntPtr(v) })
}

// SetMaxPeople edits the pending maximum people count.
func (b *Browser) SetMaxPeople(v int) {
	b.edit(func(p *models.FilterCriteria) { p.MaxPeople = models.IntPtr(v) })
}

// SetMinConfidence edits the pending minimum confidence.
func (b *Browser) SetMinConfidence(v float64) {
	b.edit(func(p *models.FilterCriteria) { p.MinConfidence = models.FloatPtr(v) })
}

// ClearField removes one pending field.
func (b *Browser) ClearField(field Field) {
	b.edit(func(p *models.FilterCriteria) {
		switch field {
		case FieldMinPeople:
			p.MinPeople = nil
		case FieldMaxPeople:
			p.MaxPeople = nil
		case FieldMinConfidence:
			p.MinConfidence = nil
		}
	})
}

func (b *Browser) edit(mutate func(*models.FilterCriteria)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mutate(&b.pending)
}

// Apply validates the pending criteria and, when accepted, makes them active on
// page 1 and fetches. It is rejected with utils.ErrBusy while a fetch is in flight.
func (b *Browser) Apply(ctx context.Context) error {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.mu.Unlock()
		err := &utils.AppError{Kind: utils.ErrBusy, Op: "apply filters", Msg: "Detections are still loading"}
		b.report(err.Msg)
		return err
	}
	candidate := b.pending.Clone()
	if err := candidate.Validate(); err != nil {
		b.mu.Unlock()
		metrics.ObserveRejectedFilter()
		b.logger.Info("filter rejected", slog.String("reason", utils.UserMessage(err, "")))
		b.report(utils.UserMessage(err, err.Error()))
		return err
	}
	b.active = candidate
	b.page = 1
	b.mu.Unlock()

	b.fetch(ctx)
	return nil
}

// Reset clears both filters, returns to page 1 and fetches.
func (b *Browser) Reset(ctx context.Context) {
	b.mu.Lock()
	b.pending = models.FilterCriteria{}
	b.active = models.FilterCriteria{}
	b.page = 1
	b.mu.Unlock()

	b.fetch(ctx)
}

// SetPage moves to page and fetches. Pages outside 1..max(totalPages, 1) are rejected.
func (b *Browser) SetPage(ctx context.Context, page int) error {
	b.mu.Lock()
	last := max(b.totalPages, 1)
	if page < 1 || page > last {
		b.mu.Unlock()
		msg := fmt.Sprintf("Page must be between 1 and %d", last)
		b.report(msg)
		return utils.NewValidationError("change page", msg)
	}
	b.page = page
	b.mu.Unlock()

	b.fetch(ctx)
	return nil
}

// PageNumbers lists the pages that can be offered to the user.
func (b *Browser) PageNumbers() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	pages := make([]int, b.totalPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// ObserveRefresh fetches the active page when flag differs from the last value seen.
func (b *Browser) ObserveRefresh(ctx context.Context, flag bool) {
	b.mu.Lock()
	changed := flag != b.lastRefresh
	b.lastRefresh = flag
	b.mu.Unlock()

	if changed {
		b.fetch(ctx)
	}
}

// Refresh re-fetches the active page unconditionally.
func (b *Browser) Refresh(ctx context.Context) {
	b.fetch(ctx)
}

// Delete asks for confirmation, deletes id and re-fetches the current page once.
// It reports false when the user declined. A detection that is already gone
// counts as deleted.
func (b *Browser) Delete(ctx context.Context, id int64) (bool, error) {
	if b.confirm != nil && !b.confirm.Confirm(ConfirmDeleteQuestion) {
		return false, nil
	}

	err := b.api.DeleteDetection(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, utils.ErrNotFound):
		b.logger.Info("detection already deleted", slog.Int64("id", id))
	default:
		b.logger.Error("failed to delete detection", slog.Int64("id", id), slog.Any("error", err))
		b.report(utils.UserMessage(err, repo.MsgDeleteFailed))
		return true, err
	}

	b.fetch(ctx)
	return true, nil
}

// Snapshot returns a copy of the current state.
func (b *Browser) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Pending:    b.pending.Clone(),
		Active:     b.active.Clone(),
		Page:       b.page,
		TotalPages: b.totalPages,
		Total:      b.total,
		Results:    append([]models.DetectionRecord(nil), b.results...),
		Loading:    b.inFlight > 0,
		LastError:  b.lastError,
	}
}

// fetch requests the active criteria and page as they are at call time and stores
// whatever comes back, even if a newer request was issued meanwhile.
func (b *Browser) fetch(ctx context.Context) {
	b.mu.Lock()
	criteria := b.active.Clone()
	page := b.page
	b.inFlight++
	b.mu.Unlock()

	result, err := b.api.ListDetections(ctx, criteria, page)

	b.mu.Lock()
	b.inFlight--
	if err != nil {
		b.lastError = err
		b.mu.Unlock()
		b.logger.Error("failed to fetch detections", slog.Int("page", page), slog.Any("error", err))
		b.report(utils.UserMessage(err, repo.MsgFetchFailed))
		return
	}
	b.results = result.Items
	b.total = result.Total
	b.totalPages = result.TotalPages()
	b.lastError = nil
	// Deleting the last row of the last page leaves page past the end.
	stale := b.page == page && page > max(b.totalPages, 1)
	if stale {
		b.page = max(b.totalPages, 1)
	}
	b.mu.Unlock()

	b.logger.Debug("detections loaded", slog.Int("page", page), slog.Int("total", result.Total))
	if stale {
		b.fetch(ctx)
	}
}

func (b *Browser) report(message string) {
	if b.notify != nil {
		b.notify.Notify(message)
	}
}
