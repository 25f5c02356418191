package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/deal-engine/ledger"
	"github.com/warp/deal-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng := ledger.New(mem, ledger.Options{})
	require.NoError(t, eng.Load(context.Background()))
	return eng, mem
}

func mustCreate(t *testing.T, eng *ledger.Ledger, setter string, at time.Time) *ledger.Deal {
	t.Helper()
	d, err := eng.CreateAppointment(context.Background(), ledger.RepID(setter), "Rep "+setter, at)
	require.NoError(t, err)
	return d
}

func mustClose(t *testing.T, eng *ledger.Ledger, id int64, closer string, size float64, at time.Time) *ledger.Deal {
	t.Helper()
	d, err := eng.Close(context.Background(), id, ledger.RepID(closer), "Rep "+closer,
		decimal.NewFromFloat(size), at)
	require.NoError(t, err)
	return d
}

func utc(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

// failingStore wraps Memory and fails selected operations, for verifying
// the engine rolls in-memory state back when the store rejects a write.
type failingStore struct {
	*store.Memory
	failCreate bool
	failSave   bool
	failDelete bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) CreateDeal(ctx context.Context, d *ledger.Deal, next int64) error {
	if f.failCreate {
		return errStoreDown
	}
	return f.Memory.CreateDeal(ctx, d, next)
}

func (f *failingStore) SaveDeal(ctx context.Context, d *ledger.Deal) error {
	if f.failSave {
		return errStoreDown
	}
	return f.Memory.SaveDeal(ctx, d)
}

func (f *failingStore) DeleteDeal(ctx context.Context, id int64) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.Memory.DeleteDeal(ctx, id)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestCreateAppointmentAssignsSequentialIDs(t *testing.T) {
	eng, _ := newTestLedger(t)

	// GIVEN a fresh ledger with the default base
	// WHEN three appointments are created
	first := mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	second := mustCreate(t, eng, "42", utc(2024, time.March, 1, 10))
	third := mustCreate(t, eng, "7", utc(2024, time.March, 1, 11))

	// THEN IDs start at the base and increase without gaps
	assert.Equal(t, int64(1000), first.ID)
	assert.Equal(t, int64(1001), second.ID)
	assert.Equal(t, int64(1002), third.ID)
}

func TestCreateAppointmentConcurrentIDsAreUnique(t *testing.T) {
	eng, _ := newTestLedger(t)

	const n = 64
	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := eng.CreateAppointment(context.Background(),
				ledger.RepID(fmt.Sprintf("rep-%d", i%8)), "Rep", utc(2024, time.March, 1, 9))
			assert.NoError(t, err)
			ids <- d.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	// THEN every issued ID is distinct and none is skipped
	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, int64(1000+n), eng.NextID())
}

func TestCustomIDBase(t *testing.T) {
	mem := store.NewMemory()
	eng := ledger.New(mem, ledger.Options{IDBase: 5000})
	require.NoError(t, eng.Load(context.Background()))

	d := mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	assert.Equal(t, int64(5000), d.ID)
}

// =============================================================================
// CLOSE WORKFLOW
// =============================================================================

func TestCloseHappyPath(t *testing.T) {
	eng, _ := newTestLedger(t)

	// GIVEN a pending appointment set by rep 42
	d := mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	require.Equal(t, int64(1000), d.ID)
	require.Equal(t, ledger.StatusPending, d.Status)

	// WHEN rep 7 closes it at 8.5 kW with the default 3.50 rate
	closed := mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))

	// THEN the record carries every closed-state field
	assert.Equal(t, ledger.StatusClosed, closed.Status)
	assert.Equal(t, ledger.RepID("7"), closed.CloserID)
	assert.Equal(t, "8.5", closed.SystemSize.Value.String())
	assert.Equal(t, "29.75", closed.Revenue.Value.String())
	assert.Equal(t, utc(2024, time.March, 2, 14), closed.ClosedAt)

	// AND the closer's running counters reflect exactly one deal
	closer := eng.RepStatsFor("7")
	assert.Equal(t, 1, closer.DealsClosed)
	assert.Equal(t, "8.5", closer.KWTotal.Value.String())
	assert.Equal(t, "29.75", closer.RevenueTotal.Value.String())

	// AND the setter's appointment converted
	setter := eng.RepStatsFor("42")
	assert.Equal(t, 1, setter.AppointmentsSet)
	assert.Equal(t, 1, setter.AppointmentsClosed)
}

func TestCloseUnknownDeal(t *testing.T) {
	eng, _ := newTestLedger(t)

	_, err := eng.Close(context.Background(), 9999, "7", "Rep 7",
		decimal.NewFromFloat(5), utc(2024, time.March, 1, 9))

	assert.ErrorIs(t, err, ledger.ErrNotFound)
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(9999), nf.ID)
}

func TestCloseTwiceIsRejected(t *testing.T) {
	eng, _ := newTestLedger(t)

	// GIVEN a closed deal
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))
	before := eng.RepStatsFor("7")

	// WHEN a second close arrives, any size
	_, err := eng.Close(context.Background(), 1000, "9", "Rep 9",
		decimal.NewFromFloat(12), utc(2024, time.March, 3, 10))

	// THEN it is rejected with the original closer's details
	assert.ErrorIs(t, err, ledger.ErrAlreadyClosed)
	var ac *ledger.AlreadyClosedError
	require.ErrorAs(t, err, &ac)
	assert.Equal(t, "Rep 7", ac.CloserName)

	// AND no counter moved
	after := eng.RepStatsFor("7")
	assert.Equal(t, before, after)
	assert.Equal(t, 0, eng.RepStatsFor("9").DealsClosed)
	assert.Equal(t, 1, eng.Company().TotalClosed)
}

func TestCloseRejectsNonPositiveSize(t *testing.T) {
	eng, _ := newTestLedger(t)
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))

	for _, size := range []float64{0, -3.5} {
		_, err := eng.Close(context.Background(), 1000, "7", "Rep 7",
			decimal.NewFromFloat(size), utc(2024, time.March, 2, 14))
		assert.ErrorIs(t, err, ledger.ErrInvalidSize, "size %v", size)
	}

	// AND the deal is still pending
	d, err := eng.Get(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, d.Status)
}

func TestSizeFromFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -2} {
		_, err := ledger.SizeFromFloat(v)
		assert.ErrorIs(t, err, ledger.ErrInvalidSize)
	}

	size, err := ledger.SizeFromFloat(8.5)
	require.NoError(t, err)
	assert.Equal(t, "8.5", size.String())
}

func TestCloseUsesRateInEffectAtCloseTime(t *testing.T) {
	mem := store.NewMemory()
	eng := ledger.New(mem, ledger.Options{RevenueRate: decimal.NewFromFloat(4.25)})
	require.NoError(t, eng.Load(context.Background()))

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	closed := mustClose(t, eng, 1000, "7", 10, utc(2024, time.March, 2, 14))

	assert.Equal(t, "42.5", closed.Revenue.Value.String())
}

func TestCloseClampsTimestampToSetAt(t *testing.T) {
	eng, _ := newTestLedger(t)
	setAt := utc(2024, time.March, 2, 9)
	mustCreate(t, eng, "42", setAt)

	// WHEN the close event carries an earlier clock
	closed := mustClose(t, eng, 1000, "7", 5, utc(2024, time.March, 1, 9))

	// THEN ClosedAt >= SetAt still holds
	assert.Equal(t, setAt, closed.ClosedAt)
}

// =============================================================================
// DELETE AND ROLLBACK
// =============================================================================

func TestDeletePendingRestoresSetterCount(t *testing.T) {
	eng, _ := newTestLedger(t)

	// GIVEN an existing appointment so counters are non-zero
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	before := eng.RepStatsFor("42")

	// WHEN another appointment is created and deleted
	d := mustCreate(t, eng, "42", utc(2024, time.March, 1, 10))
	require.Equal(t, int64(1001), d.ID)

	removed, err := eng.Delete(context.Background(), 1001, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), removed.ID)

	// THEN the setter's count is back to its pre-create value
	assert.Equal(t, before.AppointmentsSet, eng.RepStatsFor("42").AppointmentsSet)

	// AND the deal is gone
	_, err = eng.Get(context.Background(), 1001)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRollbackSymmetry(t *testing.T) {
	eng, _ := newTestLedger(t)

	// GIVEN some prior activity so totals are non-trivial
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustClose(t, eng, 1000, "7", 6.2, utc(2024, time.March, 1, 15))

	companyBefore := eng.Company()
	setterBefore := eng.RepStatsFor("42")
	closerBefore := eng.RepStatsFor("7")

	// WHEN a full create -> close -> delete cycle runs
	d := mustCreate(t, eng, "42", utc(2024, time.March, 2, 9))
	mustClose(t, eng, d.ID, "7", 8.5, utc(2024, time.March, 2, 15))
	_, err := eng.Delete(context.Background(), d.ID, "admin")
	require.NoError(t, err)

	// THEN every aggregate equals its pre-creation value exactly
	companyAfter := eng.Company()
	assert.Equal(t, companyBefore.TotalClosed, companyAfter.TotalClosed)
	assert.True(t, companyBefore.KWTotal.Equal(companyAfter.KWTotal),
		"kw %s != %s", companyBefore.KWTotal, companyAfter.KWTotal)
	assert.True(t, companyBefore.RevenueTotal.Equal(companyAfter.RevenueTotal),
		"revenue %s != %s", companyBefore.RevenueTotal, companyAfter.RevenueTotal)

	setterAfter := eng.RepStatsFor("42")
	assert.Equal(t, setterBefore.AppointmentsSet, setterAfter.AppointmentsSet)
	assert.Equal(t, setterBefore.AppointmentsClosed, setterAfter.AppointmentsClosed)

	closerAfter := eng.RepStatsFor("7")
	assert.Equal(t, closerBefore.DealsClosed, closerAfter.DealsClosed)
	assert.True(t, closerBefore.KWTotal.Equal(closerAfter.KWTotal))
	assert.True(t, closerBefore.RevenueTotal.Equal(closerAfter.RevenueTotal))
}

func TestDeleteNeverReusesIDs(t *testing.T) {
	eng, mem := newTestLedger(t)

	// GIVEN the highest deal is deleted
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	d := mustCreate(t, eng, "42", utc(2024, time.March, 1, 10))
	_, err := eng.Delete(context.Background(), d.ID, "admin")
	require.NoError(t, err)

	// WHEN the next appointment is created
	next := mustCreate(t, eng, "7", utc(2024, time.March, 1, 11))
	assert.Equal(t, int64(1002), next.ID)

	// AND WHEN the ledger is rebuilt from the same store
	reloaded := ledger.New(mem, ledger.Options{})
	require.NoError(t, reloaded.Load(context.Background()))
	after := mustCreate(t, reloaded, "7", utc(2024, time.March, 1, 12))

	// THEN the deleted ID is still not reissued
	assert.Equal(t, int64(1003), after.ID)
}

func TestDeleteUnknownDeal(t *testing.T) {
	eng, _ := newTestLedger(t)
	_, err := eng.Delete(context.Background(), 1234, "admin")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeleteRequiresAuthorization(t *testing.T) {
	mem := store.NewMemory()
	eng := ledger.New(mem, ledger.Options{Authorizer: ledger.AdminList{"boss"}})
	require.NoError(t, eng.Load(context.Background()))

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))

	// WHEN a non-admin requests deletion
	_, err := eng.Delete(context.Background(), 1000, "42")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	// AND the deal survives
	_, err = eng.Get(context.Background(), 1000)
	assert.NoError(t, err)

	// WHEN the admin requests it
	_, err = eng.Delete(context.Background(), 1000, "boss")
	assert.NoError(t, err)
}

// =============================================================================
// PERSISTENCE FAILURES
// =============================================================================

func TestCreateFailureConsumesNoID(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	eng := ledger.New(fs, ledger.Options{})
	require.NoError(t, eng.Load(context.Background()))

	// GIVEN the store rejects writes
	fs.failCreate = true
	_, err := eng.CreateAppointment(context.Background(), "42", "Rep 42", utc(2024, time.March, 1, 9))
	assert.ErrorIs(t, err, ledger.ErrPersistence)
	assert.True(t, ledger.IsRetryable(err))

	// AND no counter moved
	assert.Equal(t, 0, eng.RepStatsFor("42").AppointmentsSet)

	// WHEN the store recovers
	fs.failCreate = false
	d := mustCreate(t, eng, "42", utc(2024, time.March, 1, 10))

	// THEN the failed attempt left no gap
	assert.Equal(t, int64(1000), d.ID)
}

func TestCloseFailureLeavesDealPending(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	eng := ledger.New(fs, ledger.Options{})
	require.NoError(t, eng.Load(context.Background()))

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))

	fs.failSave = true
	_, err := eng.Close(context.Background(), 1000, "7", "Rep 7",
		decimal.NewFromFloat(8.5), utc(2024, time.March, 2, 14))
	assert.ErrorIs(t, err, ledger.ErrPersistence)

	// THEN no in-memory success with a lost write
	d, err := eng.Get(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, d.Status)
	assert.Equal(t, 0, eng.Company().TotalClosed)

	// AND the close succeeds once the store recovers
	fs.failSave = false
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 15))
}

func TestDeleteFailureKeepsDealAndTotals(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	eng := ledger.New(fs, ledger.Options{})
	require.NoError(t, eng.Load(context.Background()))

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))

	fs.failDelete = true
	_, err := eng.Delete(context.Background(), 1000, "admin")
	assert.ErrorIs(t, err, ledger.ErrPersistence)

	d, err := eng.Get(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusClosed, d.Status)
	assert.Equal(t, 1, eng.Company().TotalClosed)
}

// =============================================================================
// CONCURRENT CLOSE / DELETE
// =============================================================================

func TestConcurrentClosesExactlyOneWins(t *testing.T) {
	eng, _ := newTestLedger(t)
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))

	const n = 16
	var wg sync.WaitGroup
	var okCount, closedCount int
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.Close(context.Background(), 1000,
				ledger.RepID(fmt.Sprintf("rep-%d", i)), "Rep",
				decimal.NewFromFloat(5), utc(2024, time.March, 2, 14))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ledger.ErrAlreadyClosed):
				closedCount++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// THEN at most one close succeeded and nothing double-counted
	assert.Equal(t, 1, okCount)
	assert.Equal(t, n-1, closedCount)
	assert.Equal(t, 1, eng.Company().TotalClosed)
}

func TestDeleteRacingCloseIsAllOrNothing(t *testing.T) {
	eng, _ := newTestLedger(t)
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := eng.Close(context.Background(), 1000, "7", "Rep 7",
			decimal.NewFromFloat(8.5), utc(2024, time.March, 2, 14))
		if err != nil {
			assert.ErrorIs(t, err, ledger.ErrNotFound)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := eng.Delete(context.Background(), 1000, "admin")
		assert.NoError(t, err)
	}()
	wg.Wait()

	// THEN whichever interleaving happened, the deal is gone and the
	// aggregates are back to zero.
	_, err := eng.Get(context.Background(), 1000)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, 0, eng.Company().TotalClosed)
	assert.True(t, eng.Company().RevenueTotal.IsZero())
	assert.Equal(t, 0, eng.RepStatsFor("42").AppointmentsSet)
}

// =============================================================================
// QUERIES, LOAD, RESET
// =============================================================================

func TestListPendingOrderedBySetAt(t *testing.T) {
	eng, _ := newTestLedger(t)

	mustCreate(t, eng, "42", utc(2024, time.March, 3, 9))
	mustCreate(t, eng, "7", utc(2024, time.March, 1, 9))
	mustCreate(t, eng, "9", utc(2024, time.March, 2, 9))
	mustClose(t, eng, 1002, "7", 5, utc(2024, time.March, 2, 15))

	pending := eng.ListPending(context.Background())
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1001), pending[0].ID) // March 1
	assert.Equal(t, int64(1000), pending[1].ID) // March 3
}

func TestListAllOrderedByID(t *testing.T) {
	eng, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		mustCreate(t, eng, "42", utc(2024, time.March, 5-i, 9))
	}

	all := eng.ListAll(context.Background())
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestLoadRebuildsCountersFromDeals(t *testing.T) {
	eng, mem := newTestLedger(t)

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 10))
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))

	// WHEN a second engine loads the same store
	reloaded := ledger.New(mem, ledger.Options{})
	require.NoError(t, reloaded.Load(context.Background()))

	// THEN the rebuilt counters match the originals
	assert.Equal(t, eng.Company(), reloaded.Company())
	assert.Equal(t, eng.RepStatsFor("42").AppointmentsSet, reloaded.RepStatsFor("42").AppointmentsSet)
	assert.Equal(t, eng.RepStatsFor("7").DealsClosed, reloaded.RepStatsFor("7").DealsClosed)
	assert.Equal(t, eng.NextID(), reloaded.NextID())
}

func TestResetClearsEverything(t *testing.T) {
	eng, _ := newTestLedger(t)
	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))

	require.NoError(t, eng.Reset(context.Background(), "admin"))

	assert.Empty(t, eng.ListAll(context.Background()))
	assert.Equal(t, 0, eng.Company().TotalClosed)
	assert.Equal(t, int64(1000), eng.NextID())

	// AND IDs restart from the base
	d := mustCreate(t, eng, "42", utc(2024, time.March, 3, 9))
	assert.Equal(t, int64(1000), d.ID)
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	eng, mem := newTestLedger(t)

	mustCreate(t, eng, "42", utc(2024, time.March, 1, 9))
	mustClose(t, eng, 1000, "7", 8.5, utc(2024, time.March, 2, 14))
	_, err := eng.Delete(context.Background(), 1000, "admin")
	require.NoError(t, err)

	trail := eng.AuditTrail(context.Background())
	require.Len(t, trail, 3)
	assert.Equal(t, ledger.AuditDealCreated, trail[0].Action)
	assert.Equal(t, ledger.AuditDealClosed, trail[1].Action)
	assert.Equal(t, ledger.AuditDealDeleted, trail[2].Action)
	for _, e := range trail {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, int64(1000), e.DealID)
	}

	// AND the entries were persisted too
	assert.Len(t, mem.AuditEntries(), 3)
}
