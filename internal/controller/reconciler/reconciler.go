// Package reconciler implements spec §4.5's update_resource algorithm: the
// single entry point every crawl.Crawler/scrapeworker.Worker update_<type>
// message is funneled through, responsible for applying the update to the
// document store, following canonical-URL redirects, running pre/post hooks,
// and releasing in-flight dedup keys. Grounded on the original
// implementation's UpdateResourceMixin.update_resource (original_source
// backend/renewal_backend/controller.py), with its reflection-driven
// `getattr(self, f'_pre_{type}_{collection}_hook')` dispatch replaced by an
// explicit registry per spec §9's redesign note.
package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/controller/inflight"
	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/observability/metrics"
	"pulsefeed/internal/store"
)

// PreHook runs when updates is non-empty and no canonical-URL redirect was
// found (spec §4.5 step 3). doc is the document as currently stored (nil if
// this is the first update for this URL) — passed so a hook can gate a
// decision on the document's own persisted state rather than on updates,
// which only ever carries the crawler/scraper's fresh output and must not be
// trusted to say whether a field was already assigned on a prior delivery.
// PreHook returns additional fields to merge into the update's Set.
type PreHook func(ctx context.Context, r *Reconciler, doc store.Document, updates map[string]any) (map[string]any, error)

// PostHook runs after the update is applied to a non-redirecting document
// (spec §4.5 step 9).
type PostHook func(ctx context.Context, r *Reconciler, doc store.Document, status entity.CrawlStatus) error

// Reconciler applies update_resource messages to the store. Hooks are
// registered by (type, collection) — e.g. "scrape_articles" — matching spec
// §9's "dispatch table keyed by (operation, collection)".
type Reconciler struct {
	Store     store.Store
	Publisher broker.Publisher

	// Inflight holds one dedup set per "<type>_<collection>" key, shared
	// with the scheduler that populated them.
	Inflight map[string]*inflight.Set

	PreHooks  map[string]PreHook
	PostHooks map[string]PostHook
}

// New builds a Reconciler with empty hook registries; callers add hooks with
// RegisterPreHook/RegisterPostHook.
func New(st store.Store, pub broker.Publisher, inflightSets map[string]*inflight.Set) *Reconciler {
	return &Reconciler{
		Store:     st,
		Publisher: pub,
		Inflight:  inflightSets,
		PreHooks:  make(map[string]PreHook),
		PostHooks: make(map[string]PostHook),
	}
}

// RegisterPreHook binds a pre-hook to "<typ>_<collection>" (e.g.
// "scrape_articles").
func (r *Reconciler) RegisterPreHook(typ, collection string, hook PreHook) {
	r.PreHooks[typ+"_"+collection] = hook
}

// RegisterPostHook binds a post-hook to "<typ>_<collection>".
func (r *Reconciler) RegisterPostHook(typ, collection string, hook PostHook) {
	r.PostHooks[typ+"_"+collection] = hook
}

// UpdateResource implements spec §4.5's 9-step algorithm.
func (r *Reconciler) UpdateResource(ctx context.Context, collection, resourceURL, typ string, status entity.CrawlStatus, updates map[string]any) error {
	return r.updateResource(ctx, collection, resourceURL, typ, status, updates)
}

func (r *Reconciler) updateResource(ctx context.Context, collection, resourceURL, typ string, status entity.CrawlStatus, updates map[string]any) error {
	// Stored as a plain map (not the entity.CrawlStatus struct) so both the
	// memory and postgres store backends round-trip it identically — the
	// postgres backend always comes back as map[string]any after a JSONB
	// decode, and the scheduler's due-for-(re)crawl check
	// (scheduler.statusDue) reads it the same way regardless of backend.
	upd := store.Update{Set: map[string]any{typ + "_status": statusToDocument(status)}, Inc: map[string]int64{}}

	var isRedirect bool
	if canon, ok := updates["canonical_url"].(string); ok && canon != "" && canon != resourceURL {
		// Step 2: the fetched document redirected — mark this one and
		// recurse onto the canonical URL, which creates/upserts it.
		upd.Set["canonical_url"] = canon
		upd.Set["is_redirect"] = true
		isRedirect = true

		if err := r.updateResource(ctx, collection, canon, typ, status, updates); err != nil {
			return err
		}
	} else if len(updates) > 0 {
		// Step 3: no redirect — run the pre-hook (if any) and merge its
		// extra fields into the update. The hook is handed the document as
		// currently stored, not just updates, so it can gate on state that
		// survives redelivery of an already-processed message.
		if hook, ok := r.PreHooks[typ+"_"+collection]; ok {
			existing, err := r.Store.FindByURL(ctx, collection, resourceURL)
			if err != nil && err != store.ErrNotFound {
				return err
			}
			extra, err := hook(ctx, r, existing, updates)
			if err != nil {
				return err
			}
			for k, v := range extra {
				upd.Set[k] = v
			}
		} else {
			for k, v := range updates {
				upd.Set[k] = v
			}
		}
	}

	// Step 4: stats bookkeeping.
	result := "error"
	if status.OK {
		result = "success"
	}
	upd.Set[typ+"_stats_last_"+result] = status.When
	upd.Inc[typ+"_stats_"+result+"_count"] = 1

	// Step 5: apply the update. A store error is transient (spec §7) — the
	// caller (a broker.Handler) is expected to translate this into a
	// Nack-requeue outcome.
	doc, err := r.Store.FindOneAndUpdate(ctx, collection, resourceURL, upd)
	if err != nil {
		if err == store.ErrNotFound {
			// Step 6: invariant violation — warn and continue (spec §7: "the
			// controller's scheduler will re-drive any missed work on its
			// next sweep").
			metrics.RecordReconcileUpdate(typ, "skipped")
			slog.Warn("reconciler: update_resource found no document",
				slog.String("collection", collection), slog.String("url", resourceURL), slog.String("type", typ))
			return nil
		}
		metrics.RecordReconcileUpdate(typ, "error")
		return err
	}

	// Step 7: release the in-flight dedup key.
	if set, ok := r.Inflight[typ+"_"+collection]; ok {
		set.Remove(inflight.Key(typ+"_"+collection, doc.ID()))
		metrics.SetInFlightResources(typ+"_"+collection, set.Len())
	}

	if isRedirect {
		metrics.RecordReconcileUpdate(typ, "redirect")
		// Step 8: also upsert the canonical document's fields under its own
		// URL, stripped of _id, with is_redirect cleared.
		canon, _ := updates["canonical_url"].(string)
		clone := doc.Clone()
		delete(clone, "_id")
		clone["url"] = canon
		clone["is_redirect"] = false
		for k, v := range updates {
			clone[k] = v
		}
		id, err := r.Store.Upsert(ctx, collection, canon, clone)
		if err != nil {
			return err
		}
		if set, ok := r.Inflight[typ+"_"+collection]; ok {
			set.Remove(inflight.Key(typ+"_"+collection, id))
		}
		return nil
	}

	metrics.RecordReconcileUpdate(typ, "applied")

	// Step 9: post-hook.
	if hook, ok := r.PostHooks[typ+"_"+collection]; ok {
		return hook(ctx, r, doc, status)
	}
	return nil
}

// statusToDocument turns a CrawlStatus into the plain-map shape stored
// documents carry, matching the field names scheduler.statusDue reads.
func statusToDocument(status entity.CrawlStatus) map[string]any {
	return map[string]any{
		"ok":         status.OK,
		"error_type": status.ErrorType,
		"error":      status.Error,
		"when":       status.When,
	}
}

// Handle adapts UpdateResource to broker.Handler for a given (collection)
// worker, decoding the wire UpdateMessage shape spec §6 defines.
func Handle(ctx context.Context, r *Reconciler, collection string, msg broker.Message) broker.Outcome {
	var in struct {
		Resource struct {
			URL string `json:"url"`
		} `json:"resource"`
		Type    string             `json:"type"`
		Status  entity.CrawlStatus `json:"status"`
		Updates map[string]any     `json:"updates"`
	}
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		slog.Warn("reconciler: malformed update message, dropping",
			slog.String("collection", collection), slog.String("error", err.Error()))
		return broker.RejectDrop
	}

	if err := r.UpdateResource(ctx, collection, in.Resource.URL, in.Type, in.Status, in.Updates); err != nil {
		slog.Warn("reconciler: update_resource failed, requeuing",
			slog.String("collection", collection), slog.String("error", err.Error()))
		return broker.NackRequeue
	}
	return broker.Ack
}
