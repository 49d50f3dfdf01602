package icons

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
	"golang.org/x/sync/errgroup"
)

// Writer is the slice of the current store the deduplicator needs.
type Writer interface {
	InsertIcons(ctx context.Context, icons []store.Icon) (int64, error)
}

// Stats counts what a Deduplicator did over its lifetime.
type Stats struct {
	Ensured     int   // distinct (tenant, icon) pairs handled
	Inserted    int64 // rows the store actually wrote
	ColorMisses int   // icons stored without a color
}

// Deduplicator creates icon rows on first reference. One instance lives for
// a whole run and may be called from every stage.
type Deduplicator struct {
	w           Writer
	colors      ColorSource
	concurrency int

	mu    sync.Mutex
	seen  map[string]struct{}
	stats Stats
}

// New returns a Deduplicator that fetches at most concurrency colors at once.
func New(w Writer, colors ColorSource, concurrency int) *Deduplicator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Deduplicator{
		w:           w,
		colors:      colors,
		concurrency: concurrency,
		seen:        make(map[string]struct{}),
	}
}

// Ensure stores every unseen icon in refs for tenantID.
//
// All references are validated before anything is fetched or written: a
// single reference without a name fails the whole call with
// ErrInvalidIconRef. Color lookups fan out concurrently; a failed lookup
// stores the icon without a color. Rows are written in one batch with
// conflict-do-nothing, so repeated calls never duplicate.
func (d *Deduplicator) Ensure(ctx context.Context, tenantID string, refs []string) error {
	pending, err := d.pending(tenantID, refs)
	if err != nil || len(pending) == 0 {
		return err
	}

	logger := logging.FromContext(ctx)
	rows := make([]store.Icon, len(pending))
	misses := 0
	var missMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, ref := range pending {
		g.Go(func() error {
			row := store.Icon{
				ID:           store.NewID(),
				TenantID:     tenantID,
				CommonName:   ref.CommonName,
				FriendlyName: ref.FriendlyName(),
			}
			argb, err := d.colors.Color(gctx, ref)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("icon color unavailable", "icon", ref.CommonName, "error", err)
				missMu.Lock()
				misses++
				missMu.Unlock()
			} else {
				c := int64(argb)
				row.SourceColor = &c
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ensure icons: %w", err)
	}

	inserted, err := d.w.InsertIcons(ctx, rows)
	if err != nil {
		return fmt.Errorf("ensure icons: %w", err)
	}

	d.mu.Lock()
	for _, ref := range pending {
		d.seen[seenKey(tenantID, ref.CommonName)] = struct{}{}
	}
	d.stats.Ensured += len(pending)
	d.stats.Inserted += inserted
	d.stats.ColorMisses += misses
	d.mu.Unlock()

	logger.Debug("icons ensured", "requested", len(refs), "new", len(pending), "inserted", inserted)
	return nil
}

// pending parses refs and drops duplicates and icons already handled for
// the tenant during this run.
func (d *Deduplicator) pending(tenantID string, refs []string) ([]Ref, error) {
	parsed := make([]Ref, 0, len(refs))
	for _, s := range refs {
		ref, err := ParseRef(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, ref)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := parsed[:0]
	inCall := make(map[string]struct{}, len(parsed))
	for _, ref := range parsed {
		if _, ok := inCall[ref.CommonName]; ok {
			continue
		}
		if _, ok := d.seen[seenKey(tenantID, ref.CommonName)]; ok {
			continue
		}
		inCall[ref.CommonName] = struct{}{}
		out = append(out, ref)
	}
	return out, nil
}

// Stats returns a snapshot of the counters.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func seenKey(tenantID, commonName string) string {
	return tenantID + "\x00" + commonName
}
