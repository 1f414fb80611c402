package services

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/ledger"
	"github.com/username/standingbank/backend/src/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) addDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type fixture struct {
	db     *sql.DB
	sink   *audit.MemorySink
	engine *ledger.Engine
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	sink := audit.NewMemorySink()
	c := &clock{now: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	return &fixture{
		db:     db,
		sink:   sink,
		engine: ledger.NewEngine(db, sink, ledger.WithClock(c.Now)),
		clock:  c,
	}
}

func (f *fixture) standingOrders() *StandingOrderService {
	return NewStandingOrderService(f.db, f.sink, f.clock.Now)
}

func (f *fixture) transfers() *TransferService {
	return NewTransferService(f.db, f.engine)
}

func (f *fixture) today() string {
	return f.clock.Now().Format("2006-01-02")
}

func (f *fixture) inDays(n int) string {
	return f.clock.Now().AddDate(0, 0, n).Format("2006-01-02")
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
