// Package options implements the option generator (C3): enumerate candidate
// start instants × group-order permutations × barber candidates, assembling
// contiguous, conflict-free block sequences. Grounded on the original
// source's booking/services/availability.py (generate_options /
// simulate_sequence / build_block_specs), with one deliberate departure
// spec.md makes explicit: blocks here are strictly contiguous — if a group
// cannot start exactly where the previous one ended, the whole
// (permutation, barber) combination is abandoned rather than sliding the
// group forward to its own next free slot.
package options

import (
	"context"
	"sort"
	"time"

	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/pkg/intervals"
)

// ServiceSnap is the frozen timing/pricing view of a requested service,
// used both to build blocks and, later, to freeze AppointmentServiceLines.
type ServiceSnap struct {
	ServiceID        string
	Name             string
	DurationMinutes  int
	BufferBefore     int
	BufferAfter      int
	PriceCents       int64
	EffectiveMinutes int
}

// BlockSpec is one group's worth of requested services, not yet placed on
// the timeline. For the BARBER group WorkerID is left empty; it is resolved
// per candidate during simulation. NAILS/FACIAL specs carry their resolved
// fixed worker up front.
type BlockSpec struct {
	Group    models.WorkerRole
	WorkerID string
	Minutes  int
	Services []ServiceSnap
}

// PlannedBlock is one placed block inside a candidate option.
type PlannedBlock struct {
	Sequence int
	WorkerID string
	Start    time.Time
	End      time.Time
	Services []ServiceSnap
}

// Plan is one complete, contiguous candidate option.
type Plan struct {
	Start           time.Time
	End             time.Time
	Blocks          []PlannedBlock
	GapTotalMinutes int
}

// BuildBlockSpecs groups service snapshots into one BlockSpec per group,
// preserving the order services were listed within each group. resolve
// returns the group a service belongs to and, for non-BARBER groups, the
// fixed worker id that serves it (§4.3 grouping rules).
func BuildBlockSpecs(snaps []ServiceSnap, resolve func(ServiceSnap) (group models.WorkerRole, fixedWorkerID string)) []BlockSpec {
	order := []models.WorkerRole{}
	byGroup := map[models.WorkerRole][]ServiceSnap{}
	workerByGroup := map[models.WorkerRole]string{}

	for _, snap := range snaps {
		group, fixedWorkerID := resolve(snap)
		if _, seen := byGroup[group]; !seen {
			order = append(order, group)
		}
		byGroup[group] = append(byGroup[group], snap)
		if fixedWorkerID != "" {
			workerByGroup[group] = fixedWorkerID
		}
	}

	specs := make([]BlockSpec, 0, len(order))
	for _, group := range order {
		snaps := byGroup[group]
		total := 0
		for _, s := range snaps {
			total += s.EffectiveMinutes
		}
		specs = append(specs, BlockSpec{
			Group:    group,
			WorkerID: workerByGroup[group],
			Minutes:  total,
			Services: snaps,
		})
	}
	return specs
}

// FreeIntervalsByWorker maps worker id to its free intervals on the target
// date, precomputed once per Generate call by the caller (service layer)
// via C2 for every worker that could appear in a plan (fixed workers plus
// every barber candidate).
type FreeIntervalsByWorker map[string][]intervals.Interval

const stepGranularityFallback = 5 * time.Minute

// maxRawCandidates bounds how many raw (pre-dedup) plans we accumulate
// before the search stops growing the candidate pool, so a wide-open
// calendar with many permutations can't make a single request unbounded.
const maxRawCandidates = 2000

// Generate enumerates candidate options across [window.Start, window.End)
// at the given step granularity, for the given barber candidates (in
// preference order; pass nil/empty if no BARBER group is in use), and
// returns up to limit results ordered by (gap_total_minutes, end) per
// §4.3's dedup/sort rule. ctx is checked once per candidate start instant
// so a request deadline stops generation early (§5).
func Generate(ctx context.Context, specs []BlockSpec, barberCandidates []string, free FreeIntervalsByWorker, window intervals.Interval, step time.Duration, limit int) []Plan {
	if step <= 0 {
		step = stepGranularityFallback
	}
	perms := permute(specs)
	usesBarber := false
	for _, s := range specs {
		if s.Group == models.WorkerRoleBarber {
			usesBarber = true
		}
	}

	var raw []Plan
	start := roundUpToStep(window.Start, step)
	for t := start; t.Before(window.End); t = t.Add(step) {
		select {
		case <-ctx.Done():
			return finalize(raw, window.Start, limit)
		default:
		}
		for _, perm := range orderPermutations(perms, t, barberCandidates, free) {
			if usesBarber {
				for _, barberID := range barberCandidates {
					if plan, ok := simulate(perm, free, t, barberID); ok {
						raw = append(raw, plan)
					}
				}
			} else if plan, ok := simulate(perm, free, t, ""); ok {
				raw = append(raw, plan)
			}
		}
		if len(raw) >= maxRawCandidates {
			break
		}
	}
	return finalize(raw, window.Start, limit)
}

func finalize(raw []Plan, windowStart time.Time, limit int) []Plan {
	for i := range raw {
		raw[i].GapTotalMinutes = int(raw[i].Start.Sub(windowStart).Minutes())
	}
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].GapTotalMinutes != raw[j].GapTotalMinutes {
			return raw[i].GapTotalMinutes < raw[j].GapTotalMinutes
		}
		return raw[i].End.Before(raw[j].End)
	})

	seen := map[string]bool{}
	out := make([]Plan, 0, limit)
	for _, plan := range raw {
		key := signature(plan)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, plan)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func signature(p Plan) string {
	key := p.Start.Format(time.RFC3339) + "|" + p.End.Format(time.RFC3339)
	for _, b := range p.Blocks {
		key += "|" + b.WorkerID + "," + b.Start.Format(time.RFC3339) + "," + b.End.Format(time.RFC3339)
	}
	return key
}

// simulate walks specs in order from start, placing each block starting
// exactly where the previous one ended (contiguous, no internal gaps). It
// abandons (returns ok=false) the moment any group can't be placed.
func simulate(specs []BlockSpec, free FreeIntervalsByWorker, start time.Time, barberID string) (Plan, bool) {
	cursor := start
	blocks := make([]PlannedBlock, 0, len(specs))
	for i, spec := range specs {
		workerID := spec.WorkerID
		if spec.Group == models.WorkerRoleBarber {
			workerID = barberID
		}
		if workerID == "" {
			return Plan{}, false
		}
		want := intervals.Interval{Start: cursor, End: cursor.Add(time.Duration(spec.Minutes) * time.Minute)}
		if !fitsFree(free[workerID], want) {
			return Plan{}, false
		}
		blocks = append(blocks, PlannedBlock{
			Sequence: i + 1,
			WorkerID: workerID,
			Start:    want.Start,
			End:      want.End,
			Services: spec.Services,
		})
		cursor = want.End
	}
	return Plan{Start: blocks[0].Start, End: blocks[len(blocks)-1].End, Blocks: blocks}, true
}

func fitsFree(freeIntervals []intervals.Interval, want intervals.Interval) bool {
	for _, f := range freeIntervals {
		if intervals.Contains(f, want) {
			return true
		}
	}
	return false
}

// orderPermutations applies the §4.3 heuristic: if any barber candidate can
// serve the BARBER block starting exactly at t, permutations starting with
// BARBER are tried first; otherwise permutations NOT starting with BARBER
// are tried first. This only affects search order (and therefore which
// plans get discovered before maxRawCandidates is hit on a saturated
// calendar); final results are always re-sorted by (gap, end).
func orderPermutations(perms [][]BlockSpec, t time.Time, barberCandidates []string, free FreeIntervalsByWorker) [][]BlockSpec {
	barberReadyAtT := false
	for _, spec := range perms[0] {
		if spec.Group != models.WorkerRoleBarber {
			continue
		}
		for _, barberID := range barberCandidates {
			want := intervals.Interval{Start: t, End: t.Add(time.Duration(spec.Minutes) * time.Minute)}
			if fitsFree(free[barberID], want) {
				barberReadyAtT = true
			}
		}
	}

	ordered := make([][]BlockSpec, 0, len(perms))
	var rest [][]BlockSpec
	for _, perm := range perms {
		startsWithBarber := len(perm) > 0 && perm[0].Group == models.WorkerRoleBarber
		if startsWithBarber == barberReadyAtT {
			ordered = append(ordered, perm)
		} else {
			rest = append(rest, perm)
		}
	}
	return append(ordered, rest...)
}

func permute(specs []BlockSpec) [][]BlockSpec {
	if len(specs) == 0 {
		return nil
	}
	var result [][]BlockSpec
	var helper func(cur []BlockSpec, remaining []BlockSpec)
	helper = func(cur []BlockSpec, remaining []BlockSpec) {
		if len(remaining) == 0 {
			perm := make([]BlockSpec, len(cur))
			copy(perm, cur)
			result = append(result, perm)
			return
		}
		for i := range remaining {
			next := make([]BlockSpec, 0, len(remaining)-1)
			next = append(next, remaining[:i]...)
			next = append(next, remaining[i+1:]...)
			helper(append(cur, remaining[i]), next)
		}
	}
	helper(nil, specs)
	return result
}

func roundUpToStep(t time.Time, step time.Duration) time.Time {
	rounded := t.Truncate(step)
	if rounded.Before(t) {
		rounded = rounded.Add(step)
	}
	return rounded
}
