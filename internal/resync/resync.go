// Package resync periodically cross-checks the knowledge base against
// the vector index and reports drift: index chunks whose back-references
// no longer resolve to catalog entities.
package resync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/flowpilot-ai/flowpilot/internal/kb"
	"github.com/flowpilot-ai/flowpilot/internal/vector"
)

// Report is one drift check result.
type Report struct {
	CheckedAt   time.Time `json:"checked_at"`
	Pieces      int       `json:"pieces"`
	Actions     int       `json:"actions"`
	Triggers    int       `json:"triggers"`
	IndexChunks int       `json:"index_chunks"`
	IndexRefs   int       `json:"index_refs"`
	MissingRefs []string  `json:"missing_refs,omitempty"`
}

// Drifted reports whether the index references entities the knowledge
// base no longer has.
func (r Report) Drifted() bool { return len(r.MissingRefs) > 0 }

// Checker runs drift checks on a cron schedule.
type Checker struct {
	store  *kb.Store
	index  *vector.Index
	expr   *cronexpr.Expression
	logger *log.Logger

	onReport func(Report)
}

// NewChecker parses the cron spec and builds a checker. An invalid spec
// is a configuration error.
func NewChecker(store *kb.Store, index *vector.Index, cronSpec string) (*Checker, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid resync cron spec %q: %w", cronSpec, err)
	}
	return &Checker{
		store:  store,
		index:  index,
		expr:   expr,
		logger: log.New(log.Writer(), "[RESYNC] ", log.LstdFlags),
	}, nil
}

// OnReport registers a callback invoked after every scheduled check.
func (c *Checker) OnReport(fn func(Report)) { c.onReport = fn }

// Check runs one drift check now.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	counts, err := c.store.EntityCounts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("counting entities: %w", err)
	}

	report := Report{
		CheckedAt:   time.Now().UTC(),
		Pieces:      counts.Pieces,
		Actions:     counts.Actions,
		Triggers:    counts.Triggers,
		IndexChunks: c.index.Size(),
	}

	refs := c.index.Refs()
	report.IndexRefs = len(refs)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		ok, err := c.store.ResolveRef(ctx, ref)
		if err != nil {
			return Report{}, fmt.Errorf("resolving %s: %w", ref, err)
		}
		if !ok {
			report.MissingRefs = append(report.MissingRefs, ref)
		}
	}
	return report, nil
}

// Run blocks, firing Check at each cron occurrence until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	for {
		next := c.expr.Next(time.Now())
		if next.IsZero() {
			c.logger.Printf("cron schedule has no next occurrence, stopping")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		report, err := c.Check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Printf("drift check failed: %v", err)
			continue
		}
		if report.Drifted() {
			c.logger.Printf("DRIFT: %d index reference(s) missing from the knowledge base (e.g. %s); run reindex",
				len(report.MissingRefs), report.MissingRefs[0])
		} else {
			c.logger.Printf("in sync: %d entities, %d index chunks", report.Pieces+report.Actions+report.Triggers, report.IndexChunks)
		}
		if c.onReport != nil {
			c.onReport(report)
		}
	}
}
