package options_test

import (
	"context"
	"testing"
	"time"

	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/internal/options"
	"github.com/shearline/booking-core/pkg/intervals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2026, 8, 3, h, m, 0, 0, time.UTC)
}

func haircut() options.ServiceSnap {
	return options.ServiceSnap{ServiceID: "svc-haircut", Name: "Haircut", DurationMinutes: 30, EffectiveMinutes: 30, PriceCents: 2500}
}

func beardTrim() options.ServiceSnap {
	return options.ServiceSnap{ServiceID: "svc-beard", Name: "Beard Trim", DurationMinutes: 15, EffectiveMinutes: 15, PriceCents: 1000}
}

func TestBuildBlockSpecs_GroupsInFirstSeenOrder(t *testing.T) {
	snaps := []options.ServiceSnap{haircut(), beardTrim()}
	resolve := func(s options.ServiceSnap) (models.WorkerRole, string) {
		return models.WorkerRoleBarber, ""
	}
	specs := options.BuildBlockSpecs(snaps, resolve)
	require.Len(t, specs, 1)
	assert.Equal(t, models.WorkerRoleBarber, specs[0].Group)
	assert.Equal(t, 45, specs[0].Minutes)
	assert.Len(t, specs[0].Services, 2)
}

func TestBuildBlockSpecs_SeparatesDistinctGroups(t *testing.T) {
	snaps := []options.ServiceSnap{haircut(), {ServiceID: "svc-nails", Name: "Manicure", DurationMinutes: 40, EffectiveMinutes: 40}}
	resolve := func(s options.ServiceSnap) (models.WorkerRole, string) {
		if s.ServiceID == "svc-nails" {
			return models.WorkerRoleNails, "fixed-worker-1"
		}
		return models.WorkerRoleBarber, ""
	}
	specs := options.BuildBlockSpecs(snaps, resolve)
	require.Len(t, specs, 2)
	assert.Equal(t, models.WorkerRoleBarber, specs[0].Group)
	assert.Equal(t, models.WorkerRoleNails, specs[1].Group)
	assert.Equal(t, "fixed-worker-1", specs[1].WorkerID)
}

func TestGenerate_SingleBlockFindsEarliestSlot(t *testing.T) {
	specs := []options.BlockSpec{{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}}}
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(17, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(17, 0)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1"}, free, window, 5*time.Minute, 5)
	require.NotEmpty(t, plans)
	assert.Equal(t, at(9, 0), plans[0].Start)
	assert.Equal(t, at(9, 30), plans[0].End)
	assert.Equal(t, "barber-1", plans[0].Blocks[0].WorkerID)
}

func TestGenerate_RespectsLimit(t *testing.T) {
	specs := []options.BlockSpec{{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}}}
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(17, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(17, 0)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1"}, free, window, 15*time.Minute, 3)
	assert.Len(t, plans, 3)
}

func TestGenerate_MultiBlockOnlyContiguousPlacements(t *testing.T) {
	specs := []options.BlockSpec{
		{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}},
		{Group: models.WorkerRoleNails, WorkerID: "nail-1", Minutes: 40, Services: []options.ServiceSnap{{ServiceID: "svc-nails", EffectiveMinutes: 40}}},
	}
	// Nail tech is only free starting exactly when the barber block ends —
	// never earlier and never with a gap — so this exercises the
	// contiguous-only placement rule: the nail block must start at 9:30,
	// not slide later to find its own free slot.
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(12, 0)}},
		"nail-1":   {{Start: at(9, 30), End: at(12, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(10, 0)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1"}, free, window, 5*time.Minute, 10)
	require.NotEmpty(t, plans)
	for _, p := range plans {
		require.Len(t, p.Blocks, 2)
		assert.Equal(t, p.Blocks[0].End, p.Blocks[1].Start, "blocks within one option must be contiguous, never gapped")
	}
}

func TestGenerate_AbandonsWhenSecondBlockCannotFitContiguously(t *testing.T) {
	specs := []options.BlockSpec{
		{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}},
		{Group: models.WorkerRoleNails, WorkerID: "nail-1", Minutes: 40, Services: []options.ServiceSnap{{ServiceID: "svc-nails", EffectiveMinutes: 40}}},
	}
	// Nail tech is free later in the day but never contiguous with the
	// barber's 9:00-9:30 slot, so no plan should ever be produced even
	// though each worker individually has room somewhere in the window.
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(9, 30)}},
		"nail-1":   {{Start: at(11, 0), End: at(12, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(9, 30)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1"}, free, window, 5*time.Minute, 10)
	assert.Empty(t, plans)
}

func TestGenerate_DeduplicatesIdenticalPlans(t *testing.T) {
	specs := []options.BlockSpec{{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}}}
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(9, 30)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(9, 30)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1", "barber-1"}, free, window, 5*time.Minute, 10)
	assert.Len(t, plans, 1)
}

func TestGenerate_SortedByGapThenEnd(t *testing.T) {
	specs := []options.BlockSpec{{Group: models.WorkerRoleBarber, Minutes: 30, Services: []options.ServiceSnap{haircut()}}}
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(11, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(11, 0)}

	plans := options.Generate(context.Background(), specs, []string{"barber-1"}, free, window, 15*time.Minute, 10)
	require.Len(t, plans, 7)
	for i := 1; i < len(plans); i++ {
		assert.True(t, plans[i-1].GapTotalMinutes <= plans[i].GapTotalMinutes)
	}
}

func TestGenerate_ContextCancellationStopsEarly(t *testing.T) {
	specs := []options.BlockSpec{{Group: models.WorkerRoleBarber, Minutes: 5, Services: []options.ServiceSnap{haircut()}}}
	free := options.FreeIntervalsByWorker{
		"barber-1": {{Start: at(9, 0), End: at(17, 0)}},
	}
	window := intervals.Interval{Start: at(9, 0), End: at(17, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plans := options.Generate(ctx, specs, []string{"barber-1"}, free, window, time.Minute, 50)
	assert.Empty(t, plans)
}
