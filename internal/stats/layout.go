// Package stats is the shared-memory stats surface: one mmap'd region,
// created by the parent before any fork and inherited by every
// worker/daemon child through an ExtraFiles-passed descriptor, the same
// fd-handoff idiom used for listener fds — here applied to a memfd
// instead of a socket. Every worker writes only its own bucket; the
// parent's stats aggregator is the only reader that ever walks the whole
// region.
//
// Direct golang.org/x/sys/unix calls throughout: no cgo, direct
// syscalls, typed accessors over a flat byte buffer.
package stats

import (
	"fmt"

	"github.com/brimd/brimd/internal/config"
)

const slotSize = 8 // one uint64 per declared stat

// Layout is the frozen offset table computed once from a LaunchPlan,
// before any process forks. Every worker and the parent compute the exact
// same Layout from the exact same LaunchPlan, so no coordination over the
// wire is needed to agree on where a given (scope, stat) slot lives.
type Layout struct {
	size    int
	buckets map[string]bucketLayout // scope -> bucket
}

type bucketLayout struct {
	offset int
	slots  map[string]int // stat name -> slot index within the bucket
	decls  []config.StatDeclaration
}

// BuildLayout walks every sub-instance and daemon in plan and assigns each
// worker index (or the single daemon process) its own disjoint bucket.
func BuildLayout(plan *config.LaunchPlan) *Layout {
	l := &Layout{buckets: make(map[string]bucketLayout)}
	cursor := 0

	for _, inst := range plan.SubInstances {
		workers := inst.Workers()
		if workers <= 0 {
			workers = 1
		}
		decls := inst.DeclaredStats()
		slots := slotIndex(decls)
		width := len(decls) * slotSize
		for i := 0; i < workers; i++ {
			scope := inst.Scope(i)
			l.buckets[scope] = bucketLayout{offset: cursor, slots: slots, decls: decls}
			cursor += width
		}
	}

	for i := range plan.Daemons {
		d := &plan.Daemons[i]
		decls := d.Stats
		slots := slotIndex(decls)
		scope := d.Scope()
		l.buckets[scope] = bucketLayout{offset: cursor, slots: slots, decls: decls}
		cursor += len(decls) * slotSize
	}

	l.size = cursor
	return l
}

func slotIndex(decls []config.StatDeclaration) map[string]int {
	m := make(map[string]int, len(decls))
	for i, d := range decls {
		m[d.Name] = i
	}
	return m
}

// Size is the total byte length the region must be allocated with.
func (l *Layout) Size() int { return l.size }

// Scopes returns every scope tag the layout knows about, in no particular
// order.
func (l *Layout) Scopes() []string {
	out := make([]string, 0, len(l.buckets))
	for s := range l.buckets {
		out = append(out, s)
	}
	return out
}

func (l *Layout) bucket(scope string) (bucketLayout, error) {
	b, ok := l.buckets[scope]
	if !ok {
		return bucketLayout{}, fmt.Errorf("stats: unknown scope %q", scope)
	}
	return b, nil
}
