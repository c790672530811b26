package stats

import (
	"sort"

	"github.com/brimd/brimd/internal/config"
)

// Surface ties a Layout to a mapped Region and is the single entry point
// both sides of the process boundary use: workers/daemons call WriterFor
// once at startup to get their own Bucket; the parent calls Aggregate
// repeatedly to serve the `status` verb and the operator control socket.
type Surface struct {
	layout *Layout
	region *Region
}

// NewSurface pairs an already-built Layout with a mapped Region. The
// caller (parent at freeze time, or a child at startup) is responsible for
// sizing/mapping the Region to layout.Size().
func NewSurface(layout *Layout, region *Region) *Surface {
	return &Surface{layout: layout, region: region}
}

// WriterFor returns the Bucket a worker/daemon writes through for the
// given scope tag (config.SubInstance.Scope(i) or config.DaemonSpec.Scope()).
func (s *Surface) WriterFor(scope string) (*Bucket, error) {
	b, err := s.layout.bucket(scope)
	if err != nil {
		return nil, err
	}
	return newBucket(s.region, b), nil
}

// InstanceSnapshot is one sub-instance's or daemon's aggregated view, the
// shape the `status` verb and the control socket serialize to JSON.
type InstanceSnapshot struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Workers   []WorkerSnapshot  `json:"workers"`
	Aggregate map[string]uint64 `json:"aggregate"`
}

// WorkerSnapshot is a single worker/daemon process's raw slot values.
type WorkerSnapshot struct {
	Index int               `json:"index"`
	Stats map[string]uint64 `json:"stats"`
}

// Aggregate reads the whole region and produces one InstanceSnapshot per
// sub-instance and one per daemon, applying each declared stat's
// aggregation kind across that instance's worker buckets:
// sum and min/max fold across workers; worker-only stats are reported
// per-worker and never folded.
func (s *Surface) Aggregate(plan *config.LaunchPlan) []InstanceSnapshot {
	var out []InstanceSnapshot

	for _, inst := range plan.SubInstances {
		workers := inst.Workers()
		if workers <= 0 {
			workers = 1
		}
		snap := InstanceSnapshot{Name: inst.InstanceName(), Kind: inst.InstanceKind(), Aggregate: map[string]uint64{}}
		for i := 0; i < workers; i++ {
			b, err := s.WriterFor(inst.Scope(i))
			if err != nil {
				continue
			}
			ws := WorkerSnapshot{Index: i, Stats: map[string]uint64{}}
			for _, d := range inst.DeclaredStats() {
				ws.Stats[d.Name] = b.Get(d.Name)
			}
			snap.Workers = append(snap.Workers, ws)
		}
		fold(&snap, inst.DeclaredStats())
		out = append(out, snap)
	}

	for i := range plan.Daemons {
		d := &plan.Daemons[i]
		snap := InstanceSnapshot{Name: d.Name, Kind: "daemon", Aggregate: map[string]uint64{}}
		b, err := s.WriterFor(d.Scope())
		if err == nil {
			ws := WorkerSnapshot{Index: 0, Stats: map[string]uint64{}}
			for _, decl := range d.Stats {
				ws.Stats[decl.Name] = b.Get(decl.Name)
			}
			snap.Workers = append(snap.Workers, ws)
		}
		fold(&snap, d.Stats)
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fold computes snap.Aggregate from snap.Workers according to each
// declaration's Kind. AggWorkerOnly/AggDaemonOnly stats are left out of
// Aggregate entirely — they only ever appear per-worker.
func fold(snap *InstanceSnapshot, decls []config.StatDeclaration) {
	for _, d := range decls {
		switch d.Kind {
		case config.AggWorkerOnly, config.AggDaemonOnly:
			continue
		case config.AggSum:
			var total uint64
			for _, w := range snap.Workers {
				total += w.Stats[d.Name]
			}
			snap.Aggregate[d.Name] = total
		case config.AggMin:
			var min uint64
			found := false
			for _, w := range snap.Workers {
				v := w.Stats[d.Name]
				if d.TimeTrait && v == 0 {
					continue // "0 means never set"
				}
				if !found || v < min {
					min, found = v, true
				}
			}
			snap.Aggregate[d.Name] = min
		case config.AggMax:
			var max uint64
			for _, w := range snap.Workers {
				if v := w.Stats[d.Name]; v > max {
					max = v
				}
			}
			snap.Aggregate[d.Name] = max
		}
	}
}
