// Package reconcile applies server world snapshots to the local world and
// replays the ticks the client simulated while the snapshot was in flight.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/tick"
	"worldsync.gg/internal/world"
)

// DefaultMaxParallel bounds concurrent entity jobs per snapshot.
const DefaultMaxParallel = 16

// Leases answers whether the client currently simulates an entity itself.
type Leases interface {
	IsControlling(entityID string, tick int64) bool
}

// Result summarizes one applied snapshot.
type Result struct {
	Touched   []string
	Skipped   []string
	Destroyed []string
	Replayed  int64
}

type Reconciler struct {
	world       world.World
	leases      Leases
	clock       *tick.Clock
	maxParallel int
	log         *slog.Logger
}

func New(w world.World, leases Leases, clock *tick.Clock, maxParallel int, logger *slog.Logger) *Reconciler {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		world:       w,
		leases:      leases,
		clock:       clock,
		maxParallel: maxParallel,
		log:         logger.With("component", "reconcile"),
	}
}

// outcome is what one entity job did.
type outcome struct {
	id        string
	entity    world.Entity
	skipped   bool
	destroyed bool
	err       error
}

// ApplyFull applies a full snapshot. Entities under an active lease are left
// alone; everything else is spawned if missing and has its bodies
// overwritten. Catch-up replay runs once every entity job has finished.
func (r *Reconciler) ApplyFull(ctx context.Context, s protocol.PhysicsFullSnapshot) (Result, error) {
	now := r.clock.Now()
	var p plan
	for _, es := range s.Entities {
		es := es
		p.add(es.EntityID, func(ctx context.Context) outcome { return r.upsert(ctx, es, now) })
	}
	return r.run(ctx, s.LastClientTickNumber, p.jobs)
}

// ApplyDelta applies an incremental snapshot: new entities are spawned and
// applied, body updates are applied unless leased, destroyed entities are
// removed if present.
func (r *Reconciler) ApplyDelta(ctx context.Context, s protocol.PhysicsDeltaSnapshot) (Result, error) {
	now := r.clock.Now()
	var p plan
	for _, es := range s.NewEntities {
		es := es
		p.add(es.EntityID, func(ctx context.Context) outcome { return r.upsert(ctx, es, now) })
	}
	for _, bu := range s.BodyUpdates {
		bu := bu
		p.add(bu.EntityID, func(context.Context) outcome { return r.update(bu, now) })
	}
	for _, id := range s.DestroyedEntities {
		id := id
		p.add(id, func(ctx context.Context) outcome { return r.destroy(ctx, id) })
	}
	return r.run(ctx, s.LastClientTickNumber, p.jobs)
}

// job holds every operation a snapshot carries for one entity, in packet
// order. Jobs for different entities run concurrently; the steps of one job
// never do.
type job struct {
	id    string
	steps []func(context.Context) outcome
}

func (j *job) run(ctx context.Context) outcome {
	res := outcome{id: j.id}
	for _, step := range j.steps {
		o := step(ctx)
		switch {
		case o.err != nil:
			return o
		case o.destroyed:
			res.entity, res.destroyed, res.skipped = nil, true, false
		case o.entity != nil:
			res.entity, res.destroyed, res.skipped = o.entity, false, false
		case o.skipped && res.entity == nil:
			res.skipped = true
		}
	}
	return res
}

// plan groups snapshot operations by entity id, keeping first-seen order.
type plan struct {
	jobs  []*job
	index map[string]*job
}

func (p *plan) add(id string, step func(context.Context) outcome) {
	if p.index == nil {
		p.index = map[string]*job{}
	}
	j, ok := p.index[id]
	if !ok {
		j = &job{id: id}
		p.index[id] = j
		p.jobs = append(p.jobs, j)
	}
	j.steps = append(j.steps, step)
}

// run fans the jobs out, joins them, then replays.
func (r *Reconciler) run(ctx context.Context, lastClientTick int64, jobs []*job) (Result, error) {
	results := make([]outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(r.maxParallel)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			results[i] = guard(ctx, j)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	var errs []error
	touched := make([]world.Entity, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, o := range results {
		switch {
		case o.err != nil:
			errs = append(errs, o.err)
		case o.destroyed:
			res.Destroyed = append(res.Destroyed, o.id)
		case o.skipped:
			res.Skipped = append(res.Skipped, o.id)
		case o.entity != nil:
			if seen[o.entity.UID()] {
				continue
			}
			seen[o.entity.UID()] = true
			touched = append(touched, o.entity)
			res.Touched = append(res.Touched, o.id)
		}
	}
	res.Replayed = r.catchUp(lastClientTick, touched)
	return res, errors.Join(errs...)
}

// guard turns a panicking job into an error so one bad entity cannot take
// the process down from a worker goroutine.
func guard(ctx context.Context, j *job) (o outcome) {
	defer func() {
		if p := recover(); p != nil {
			o = outcome{id: j.id, err: fmt.Errorf("entity %s job panicked: %v", j.id, p)}
		}
	}()
	return j.run(ctx)
}

func (r *Reconciler) upsert(ctx context.Context, es protocol.EntitySnapshot, now int64) outcome {
	o := outcome{id: es.EntityID}
	e := r.world.Lookup(es.EntityID)
	if e != nil && r.leases.IsControlling(es.EntityID, now) {
		o.skipped = true
		return o
	}
	if e == nil {
		def := es.Definition
		def.UID = es.EntityID
		spawned, err := r.world.Spawn(ctx, def)
		if err != nil {
			o.err = fmt.Errorf("spawn %s: %w", es.EntityID, err)
			return o
		}
		if spawned == nil {
			r.log.Debug("spawn declined", "entity_id", es.EntityID, "type", def.Type)
			return o
		}
		e = spawned
	}
	r.applyBodies(e, es.Bodies)
	o.entity = e
	return o
}

func (r *Reconciler) update(bu protocol.BodyUpdate, now int64) outcome {
	o := outcome{id: bu.EntityID}
	e := r.world.Lookup(bu.EntityID)
	if e == nil {
		return o
	}
	if r.leases.IsControlling(bu.EntityID, now) {
		o.skipped = true
		return o
	}
	r.applyBodies(e, bu.Bodies)
	o.entity = e
	return o
}

func (r *Reconciler) destroy(ctx context.Context, id string) outcome {
	o := outcome{id: id}
	e := r.world.Lookup(id)
	if e == nil {
		return o
	}
	if err := r.world.Destroy(ctx, e); err != nil {
		o.err = fmt.Errorf("destroy %s: %w", id, err)
		return o
	}
	o.destroyed = true
	return o
}

func (r *Reconciler) applyBodies(e world.Entity, states []protocol.BodyState) {
	bodies := r.world.Bodies(e)
	n := min(len(bodies), len(states))
	for i := 0; i < n; i++ {
		world.ApplyState(bodies[i], states[i])
	}
}

// catchUp replays ticks [lastClientTick, now) for the touched entities, in
// increasing tick order: each entity's physics hook runs with the tick's
// back-dated timestamp and its bodies are integrated by one fixed step. No
// global solve happens. It returns the number of ticks replayed.
func (r *Reconciler) catchUp(lastClientTick int64, touched []world.Entity) int64 {
	if len(touched) == 0 {
		return 0
	}
	behind := r.clock.Behind(lastClientTick)
	if behind == 0 {
		return 0
	}
	now := r.clock.Now()
	dt := r.clock.StepSeconds()
	for t := lastClientTick; t < now; t++ {
		at := r.clock.SimTime(t)
		for _, e := range touched {
			if e.Suspended() {
				continue
			}
			if s, ok := e.(world.PhysicsStepper); ok {
				s.OnPhysicsStep(at, world.StepData{Tick: t, Dt: dt, Replay: true})
			}
			for _, b := range r.world.Bodies(e) {
				world.Integrate(b, dt)
			}
		}
	}
	return behind
}
