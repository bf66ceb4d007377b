package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/pipeline"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/report"
	"github.com/galois26/event-feed/internal/store"
)

// Reasons only the maintenance operations produce.
const (
	ReasonCancelledPast    = "cancelled_past"
	ReasonDescriptionStub  = "description_placeholder"
	ReasonPriceUnavailable = "price_unavailable"
	ReasonImageFallback    = "image_fallback"
	ReasonDuplicateID      = "duplicate_id"
)

// Audit checks every stored event against the gate and the completeness
// rules. It never writes the collection.
func (r *Runner) Audit(ctx context.Context) (*report.Report, error) {
	rep := r.begin(OpAudit)
	events, err := r.Store.Load(ctx)
	if err != nil {
		r.finish(ctx, rep, nil, err)
		return rep, fmt.Errorf("load: %w", err)
	}

	_, rep.Counts.Deduped = quality.Dedupe(events, r.opts.Keep)
	seen := make(map[string]bool, len(events))
	for i := range events {
		ev := &events[i]
		verdict := r.Gate.Check(*ev)
		it := report.Item{
			ID:        ev.ID,
			URL:       ev.URL,
			Reasons:   append(append([]string{}, verdict.Reasons...), verdict.Flags...),
			Cancelled: ev.Status == model.StatusCancelled,
		}
		if seen[quality.Key(*ev)] {
			it.Reasons = append(it.Reasons, ReasonDuplicateID)
		}
		seen[quality.Key(*ev)] = true
		if ev.PriceAmount == nil {
			it.Reasons = append(it.Reasons, ReasonPriceUnavailable)
		}
		if r.Sanitizer != nil {
			if !r.Sanitizer.Meaningful(ev.Description) {
				it.Reasons = append(it.Reasons, ReasonDescriptionStub)
			}
			if r.Sanitizer.IsFallbackImage(ev.Image) {
				it.Reasons = append(it.Reasons, ReasonImageFallback)
			}
		}
		it.Outcome = report.Valid
		if !verdict.Accepted {
			it.Outcome = report.Rejected
		}
		r.add(rep, it)
	}
	r.finish(ctx, rep, events, nil)
	return rep, nil
}

// Renormalize re-runs the field normalizers over stored events and saves
// the ones that changed.
func (r *Runner) Renormalize(ctx context.Context) (*report.Report, error) {
	rep := r.begin(OpRenormalize)
	events, err := r.Store.Load(ctx)
	if err != nil {
		r.finish(ctx, rep, nil, err)
		return rep, fmt.Errorf("load: %w", err)
	}

	stamp := r.stamp()
	dirty := false
	for i := range events {
		after := r.Builder.Renormalize(events[i])
		changes := diffEvents(events[i], after)
		if len(changes) > 0 {
			after.LastUpdated = stamp
			events[i] = after
			dirty = true
		}
		verdict := r.Gate.Check(events[i])
		r.add(rep, report.Item{
			ID:      events[i].ID,
			URL:     events[i].URL,
			Outcome: outcome(verdict.Accepted, changes),
			Reasons: append(append([]string{}, verdict.Reasons...), verdict.Flags...),
			Changes: changes,
		})
	}

	var saveErr error
	if dirty {
		if saveErr = r.Store.Save(ctx, events); saveErr != nil {
			saveErr = fmt.Errorf("save: %w", saveErr)
		}
	}
	r.finish(ctx, rep, events, saveErr)
	return rep, saveErr
}

// Prune deduplicates the collection, then drops events whose dates the gate
// rejects and cancelled events that are already over. Cancellations that
// are still upcoming stay for review.
func (r *Runner) Prune(ctx context.Context) (*report.Report, error) {
	rep := r.begin(OpPrune)
	events, err := r.Store.Load(ctx)
	if err != nil {
		r.finish(ctx, rep, nil, err)
		return rep, fmt.Errorf("load: %w", err)
	}

	now := r.Clock.Now()
	deduped, dropped := quality.Dedupe(events, r.opts.Keep)
	rep.Counts.Deduped = dropped

	kept := make([]model.Event, 0, len(deduped))
	for _, ev := range deduped {
		verdict := r.Gate.Check(ev)
		var reasons []string
		for _, reason := range verdict.Reasons {
			if reason == model.ReasonDateUnresolvable || reason == model.ReasonDateOutOfWindow {
				reasons = append(reasons, reason)
			}
		}
		if ev.Status == model.StatusCancelled && past(&ev, now) {
			reasons = append(reasons, ReasonCancelledPast)
		}
		it := report.Item{ID: ev.ID, URL: ev.URL, Reasons: reasons, Outcome: report.Valid}
		if len(reasons) > 0 {
			it.Outcome = report.Rejected
			rep.Counts.Removed++
		} else {
			kept = append(kept, ev)
		}
		r.add(rep, it)
	}

	var saveErr error
	if dropped > 0 || rep.Counts.Removed > 0 {
		if saveErr = r.Store.Save(ctx, kept); saveErr != nil {
			saveErr = fmt.Errorf("save: %w", saveErr)
		}
	}
	r.finish(ctx, rep, kept, saveErr)
	return rep, saveErr
}

// Ingest builds raw records into events and upserts the accepted ones by
// id. A record for an id already stored is folded into the stored event.
func (r *Runner) Ingest(ctx context.Context, records []pipeline.RawRecord) (*report.Report, error) {
	rep := r.begin(OpIngest)
	events, err := r.Store.Load(ctx)
	if err != nil {
		r.finish(ctx, rep, nil, err)
		return rep, fmt.Errorf("load: %w", err)
	}

	existing := make(map[string]model.Event, len(events))
	for _, ev := range events {
		existing[ev.ID] = ev
	}
	var incoming []model.Event
	ids := map[string]bool{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			break
		}
		out, err := r.processor.Process(rec)
		if err != nil {
			r.fail(rep, "", rec.URL, err)
			continue
		}
		ev := out.Event
		it := report.Item{
			ID:      ev.ID,
			URL:     ev.URL,
			Reasons: append(append([]string{}, out.Verdict.Reasons...), out.Verdict.Flags...),
			Changes: out.Changes,
			Outcome: report.Valid,
		}
		if !out.Verdict.Accepted {
			it.Outcome = report.Rejected
			r.add(rep, it)
			continue
		}
		old, stored := existing[ev.ID]
		if stored {
			var changes []enrich.Change
			ev, changes = r.fold(old, ev)
			it.Changes = changes
			if len(changes) > 0 {
				it.Outcome = report.Fixed
			}
		}
		it.Cancelled = ev.Status == model.StatusCancelled && (!stored || old.Status != model.StatusCancelled)
		if it.Cancelled && !contains(it.Reasons, ev.StatusReason) {
			it.Reasons = append(it.Reasons, ev.StatusReason)
		}
		r.add(rep, it)
		incoming = append(incoming, ev)
		existing[ev.ID] = ev
		ids[ev.ID] = true
	}

	var added int
	events, added, _ = store.Upsert(events, incoming...)
	rep.Counts.Added = added
	rep.Counts.Deduped = len(incoming) - len(ids)

	var saveErr error
	if len(incoming) > 0 {
		if saveErr = r.Store.Save(context.WithoutCancel(ctx), events); saveErr != nil {
			saveErr = fmt.Errorf("save: %w", saveErr)
		}
	}
	r.finish(ctx, rep, events, saveErr)
	if saveErr != nil {
		return rep, saveErr
	}
	return rep, ctx.Err()
}

// fold merges a fresh build of an already stored event into the stored
// record. The fresh build goes through the merge engine as an enrichment, so
// sentinel, placeholder and empty fresh values never replace good stored
// data. CANCELLED stays sticky; a fresh CANCELLED build still cancels.
func (r *Runner) fold(old, fresh model.Event) (model.Event, []enrich.Change) {
	en := model.Enrichment{
		URL:             fresh.URL,
		Description:     fresh.Description,
		StartTime:       fresh.Date,
		EndTime:         fresh.EndDate,
		Image:           fresh.Image,
		PriceAmount:     fresh.PriceAmount,
		MinPrice:        fresh.MinPrice,
		MaxPrice:        fresh.MaxPrice,
		TicketTypes:     fresh.TicketTypes,
		LocationDetails: fresh.LocationDetails,
	}
	if fresh.IsSoldOut {
		en.IsSoldOut = model.Bool(true)
	}
	if g := fresh.GenderSoldOut; g != "" && g != model.GenderNone {
		en.GenderSoldOut = &g
	}
	if fresh.Status == model.StatusMoved {
		st := fresh.Status
		en.Status = &st
	}

	res := r.Engine.Merge(old, en)
	ev, changes := res.Event, res.Changes
	record := func(field, from, to string) {
		if from != to {
			changes = append(changes, enrich.Change{Field: field, From: from, To: to})
		}
	}

	if fresh.Title != "" {
		record("title", ev.Title, fresh.Title)
		ev.Title = fresh.Title
	}
	if ev.Source == "" && fresh.Source != "" {
		record("source", "", fresh.Source)
		ev.Source = fresh.Source
	}
	if fresh.LocationDetails == nil && placeholderLocation(ev.Location) && !placeholderLocation(fresh.Location) {
		record("location", ev.Location, fresh.Location)
		ev.Location = fresh.Location
	}
	for _, c := range fresh.Categories {
		if c != model.CategoryOther && ev.AddCategory(c) {
			record("categories", "", "+"+c)
		}
	}
	if len(ev.Categories) > 1 && ev.HasCategory(model.CategoryOther) {
		kept := ev.Categories[:0]
		for _, c := range ev.Categories {
			if c != model.CategoryOther {
				kept = append(kept, c)
			}
		}
		ev.Categories = kept
		record("categories", "+"+model.CategoryOther, "")
	}

	if fresh.Status == model.StatusCancelled && ev.Status != model.StatusCancelled {
		record("status", string(ev.Status), string(model.StatusCancelled)+":"+fresh.StatusReason)
		ev.Status, ev.StatusReason = model.StatusCancelled, fresh.StatusReason
	}
	return ev, changes
}

func placeholderLocation(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == model.LocationUnknown
}

func (r *Runner) stamp() string {
	return r.Clock.Now().In(dates.Civil()).Format(dates.Layout)
}

// diffEvents lists the normalized fields that differ between a and b.
func diffEvents(a, b model.Event) []enrich.Change {
	var out []enrich.Change
	cmp := func(field, from, to string) {
		if from != to {
			out = append(out, enrich.Change{Field: field, From: from, To: to})
		}
	}
	cmp("id", a.ID, b.ID)
	cmp("title", a.Title, b.Title)
	cmp("description", enrich.Clip(a.Description), enrich.Clip(b.Description))
	if a.Description != b.Description && enrich.Clip(a.Description) == enrich.Clip(b.Description) {
		out = append(out, enrich.Change{Field: "description"})
	}
	cmp("date", a.Date, b.Date)
	cmp("endDate", a.EndDate, b.EndDate)
	cmp("price", a.Price, b.Price)
	cmp("priceAmount", amount(a.PriceAmount), amount(b.PriceAmount))
	cmp("location", a.Location, b.Location)
	cmp("categories", strings.Join(a.Categories, ","), strings.Join(b.Categories, ","))
	cmp("image", a.Image, b.Image)
	cmp("status", string(a.Status), string(b.Status))
	cmp("genderSoldOut", string(a.GenderSoldOut), string(b.GenderSoldOut))
	return out
}

func amount(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
