package inventory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/shift"
	"github.com/warp/barstock/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const bar inventory.LocationID = "negro-amaro"

var testCatalog = inventory.NewStaticCatalog([]inventory.Category{
	{Name: "TEQUILA", Labels: []string{"TEQUILA X", "DON JULIO 70"}},
	{Name: "RON", Labels: []string{"BACARDI BLANCO", "HAVANA 7"}},
	{Name: "CERVEZAS", Labels: []string{"CORONA"}},
})

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store      *memory.Memory
	ledger     *inventory.Ledger
	reconciler *inventory.Reconciler
	log        *inventory.MovementLog
	oversight  *inventory.Oversight
	clock      *clock
	cal        shift.Calendar
	logs       *test.Hook
}

// Saturday 1 March 2025, 20:00 UTC: inside shift 2025-03-01.
var shiftStart = time.Date(2025, time.March, 1, 20, 0, 0, 0, time.UTC)

const testShift shift.ID = "2025-03-01"

func newFixture(t *testing.T, opts ...inventory.Option) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store: memory.NewMemory(),
		clock: &clock{t: shiftStart},
		cal:   shift.NewCalendar(time.UTC),
		logs:  hook,
	}
	seq := 0
	base := []inventory.Option{
		inventory.WithClock(f.clock.Now),
		inventory.WithCalendar(f.cal),
		inventory.WithLogger(logger),
		inventory.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%03d", seq) }),
	}
	opts = append(base, opts...)
	f.ledger = inventory.NewLedger(f.store, testCatalog, opts...)
	f.reconciler = inventory.NewReconciler(f.store, testCatalog, opts...)
	f.log = inventory.NewMovementLog(f.store, testCatalog)
	f.oversight = inventory.NewOversight(f.ledger, f.log, f.reconciler)
	return f
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func nd(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(d(v)) }

func (f *fixture) receive(t *testing.T, label string, weight int64, ids ...string) *inventory.LabelRecord {
	t.Helper()
	rec, err := f.ledger.Receive(context.Background(), inventory.ReceiveRequest{
		Location:   bar,
		Label:      label,
		Quantity:   len(ids),
		UnitWeight: d(weight),
		UnitIDs:    ids,
		Actor:      "ana",
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) weigh(t *testing.T, label, unit string, weight int64) inventory.WeightChangeResult {
	t.Helper()
	res, err := f.ledger.RecordWeightChange(context.Background(), inventory.WeightChangeRequest{
		Location:  bar,
		Label:     label,
		UnitID:    unit,
		NewWeight: d(weight),
		ProofURL:  "https://evidence.test/" + unit,
		Actor:     "ana",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) history(t *testing.T, label string) []inventory.Movement {
	t.Helper()
	ms, err := f.log.QueryByLabel(context.Background(), bar, label)
	require.NoError(t, err)
	return ms
}

// failingStore fails every Apply and SaveReconciliations.
type failingStore struct {
	inventory.Store
	err error
}

func (s failingStore) Apply(context.Context, []inventory.Change) error { return s.err }

func (s failingStore) SaveReconciliations(context.Context, []inventory.ReconciliationRecord) error {
	return s.err
}

// conflictingStore loses the optimistic version check a fixed number of times.
type conflictingStore struct {
	inventory.Store
	conflicts int
	calls     int
}

func (s *conflictingStore) Apply(ctx context.Context, changes []inventory.Change) error {
	s.calls++
	if s.calls <= s.conflicts {
		return inventory.ErrConcurrentModification
	}
	return s.Store.Apply(ctx, changes)
}
