package stats

import (
	"testing"

	"github.com/brimd/brimd/internal/config"
)

type fakeInstance struct {
	name    string
	kind    string
	workers int
	decls   []config.StatDeclaration
}

func (f *fakeInstance) InstanceName() string                   { return f.name }
func (f *fakeInstance) InstanceKind() string                   { return f.kind }
func (f *fakeInstance) Workers() int                            { return f.workers }
func (f *fakeInstance) Scope(i int) string                      { return f.name + ":" + itoa(i) }
func (f *fakeInstance) DeclaredStats() []config.StatDeclaration { return f.decls }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	if i == 1 {
		return "1"
	}
	return "n"
}

func testPlan() *config.LaunchPlan {
	decls := []config.StatDeclaration{
		{Name: "start_time", Kind: config.AggMin, TimeTrait: true},
		{Name: "request_count", Kind: config.AggSum},
	}
	return &config.LaunchPlan{
		SubInstances: []config.SubInstance{
			&fakeInstance{name: "wsgi:app", kind: "wsgi", workers: 2, decls: decls},
		},
	}
}

func TestLayoutAndBucketRoundTrip(t *testing.T) {
	plan := testPlan()
	layout := BuildLayout(plan)
	if layout.Size() <= 0 {
		t.Fatalf("expected positive layout size, got %d", layout.Size())
	}

	region, err := CreateRegion(layout.Size())
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer region.Close()

	surface := NewSurface(layout, region)

	b0, err := surface.WriterFor("wsgi:app:0")
	if err != nil {
		t.Fatalf("WriterFor worker 0: %v", err)
	}
	b1, err := surface.WriterFor("wsgi:app:1")
	if err != nil {
		t.Fatalf("WriterFor worker 1: %v", err)
	}

	b0.Set("start_time", 100)
	b1.Set("start_time", 50)
	b0.Incr("request_count")
	b0.Incr("request_count")
	b1.Incr("request_count")

	snaps := surface.Aggregate(plan)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if snap.Aggregate["request_count"] != 3 {
		t.Errorf("request_count = %d, want 3", snap.Aggregate["request_count"])
	}
	if snap.Aggregate["start_time"] != 50 {
		t.Errorf("start_time = %d, want 50 (min across workers)", snap.Aggregate["start_time"])
	}
}

func TestBucketSetIgnoresUnknownName(t *testing.T) {
	plan := testPlan()
	layout := BuildLayout(plan)
	region, err := CreateRegion(layout.Size())
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer region.Close()

	b, err := NewSurface(layout, region).WriterFor("wsgi:app:0")
	if err != nil {
		t.Fatalf("WriterFor: %v", err)
	}
	b.Set("nonexistent", 5)
	b.Incr("nonexistent")
	if got := b.Get("nonexistent"); got != 0 {
		t.Errorf("Get(nonexistent) = %d, want 0", got)
	}
}

func TestStartTimeNeverRegresses(t *testing.T) {
	plan := testPlan()
	layout := BuildLayout(plan)
	region, err := CreateRegion(layout.Size())
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer region.Close()

	b, err := NewSurface(layout, region).WriterFor("wsgi:app:0")
	if err != nil {
		t.Fatalf("WriterFor: %v", err)
	}
	b.Set("start_time", 100)
	b.Set("start_time", 200) // later call must not overwrite an earlier start
	if got := b.Get("start_time"); got != 100 {
		t.Errorf("start_time = %d, want 100", got)
	}
}

func TestStartTimeIgnoresSmallerSecondWrite(t *testing.T) {
	plan := testPlan()
	layout := BuildLayout(plan)
	region, err := CreateRegion(layout.Size())
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer region.Close()

	b, err := NewSurface(layout, region).WriterFor("wsgi:app:0")
	if err != nil {
		t.Fatalf("WriterFor: %v", err)
	}
	b.Set("start_time", 100)
	b.Set("start_time", 50) // a smaller second write must also be rejected
	if got := b.Get("start_time"); got != 100 {
		t.Errorf("start_time = %d, want 100 (first write wins, even against a smaller later value)", got)
	}
}
