package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"deribit-alert-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	alerts  []*types.Alert
	listErr error
}

func (s *fakeStore) GetActiveAlerts() ([]types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.Alert
	for _, a := range s.alerts {
		if a.State != types.StateActive {
			continue
		}
		cp := *a
		if a.LastPrice != nil {
			v := *a.LastPrice
			cp.LastPrice = &v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *fakeStore) UpdateLastPrice(alertID int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == alertID {
			v := price
			a.LastPrice = &v
		}
	}
	return nil // unknown ids are no-ops, like the sqlite store
}

func (s *fakeStore) MarkTriggered(alertID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == alertID {
			a.State = types.StateTriggered
		}
	}
	return nil
}

func (s *fakeStore) delete(alertID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ID != alertID {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
}

func (s *fakeStore) get(alertID int64) *types.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == alertID {
			return a
		}
	}
	return nil
}

type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func (o *fakeOracle) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[symbol]++
	if err, ok := o.errs[symbol]; ok {
		return 0, err
	}
	price, ok := o.prices[symbol]
	if !ok {
		return 0, errors.New("unknown instrument")
	}
	return price, nil
}

func (o *fakeOracle) setPrice(symbol string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = price
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	chats []int64
	texts []string
}

func (n *fakeNotifier) Notify(chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.chats = append(n.chats, chatID)
	n.texts = append(n.texts, text)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func ptr(v float64) *float64 { return &v }

func newAlert(id, chatID int64, symbol string, target float64, last *float64) *types.Alert {
	return &types.Alert{
		ID:          id,
		ChatID:      chatID,
		Symbol:      symbol,
		TargetPrice: target,
		LastPrice:   last,
		State:       types.StateActive,
	}
}

func TestCrossingNotifiesExactlyOnce(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 50000}}
	notifier := &fakeNotifier{}

	m := New(store, oracle, notifier, Config{})

	m.RunCycle(context.Background())

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "BTC-PERPETUAL")
	assert.Contains(t, sent[0], "50,000")
	assert.Equal(t, []int64{100}, notifier.chats)

	alert := store.get(1)
	assert.Equal(t, types.StateTriggered, alert.State)
	require.NotNil(t, alert.LastPrice)
	assert.Equal(t, 50000.0, *alert.LastPrice)

	// triggered alerts are excluded from all future cycles, whatever the
	// price does afterwards
	oracle.setPrice("BTC-PERPETUAL", 49500)
	m.RunCycle(context.Background())
	oracle.setPrice("BTC-PERPETUAL", 51000)
	m.RunCycle(context.Background())

	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, 50000.0, *store.get(1).LastPrice)
}

func TestNoCrossingUpdatesObservation(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 49500}}
	notifier := &fakeNotifier{}

	New(store, oracle, notifier, Config{}).RunCycle(context.Background())

	assert.Empty(t, notifier.sent())
	alert := store.get(1)
	assert.Equal(t, types.StateActive, alert.State)
	assert.Equal(t, 49500.0, *alert.LastPrice)
}

func TestNoBaselineNeverFiresOnFirstCycle(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, nil),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 55000}}
	notifier := &fakeNotifier{}

	m := New(store, oracle, notifier, Config{})
	m.RunCycle(context.Background())

	// no crossing without a baseline, but the observation is recorded
	assert.Empty(t, notifier.sent())
	require.NotNil(t, store.get(1).LastPrice)
	assert.Equal(t, 55000.0, *store.get(1).LastPrice)

	// with the baseline in place a real crossing fires
	oracle.setPrice("BTC-PERPETUAL", 49000)
	m.RunCycle(context.Background())
	assert.Len(t, notifier.sent(), 1)
}

func TestFetchFailureSkipsAlertAndIsolatesOthers(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
		newAlert(2, 200, "ETH-PERPETUAL", 3000, ptr(3100)),
	}}
	oracle := &fakeOracle{
		prices: map[string]float64{"ETH-PERPETUAL": 2900},
		errs:   map[string]error{"BTC-PERPETUAL": errors.New("exchange down")},
	}
	notifier := &fakeNotifier{}

	New(store, oracle, notifier, Config{}).RunCycle(context.Background())

	// the failed alert is untouched this cycle
	btc := store.get(1)
	assert.Equal(t, types.StateActive, btc.State)
	assert.Equal(t, 49000.0, *btc.LastPrice)

	// the healthy alert still evaluated and fired
	eth := store.get(2)
	assert.Equal(t, types.StateTriggered, eth.State)
	require.Len(t, notifier.sent(), 1)
	assert.Contains(t, notifier.sent()[0], "ETH-PERPETUAL")
}

func TestOneFetchPerSymbolPerCycle(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 60000, ptr(49000)),
		newAlert(2, 200, "BTC-PERPETUAL", 40000, ptr(49000)),
		newAlert(3, 300, "ETH-PERPETUAL", 3000, ptr(2500)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{
		"BTC-PERPETUAL": 50000,
		"ETH-PERPETUAL": 2600,
	}}

	New(store, oracle, &fakeNotifier{}, Config{}).RunCycle(context.Background())

	assert.Equal(t, 1, oracle.calls["BTC-PERPETUAL"])
	assert.Equal(t, 1, oracle.calls["ETH-PERPETUAL"])
}

func TestFailedSymbolFetchedOnceNotPerAlert(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 60000, ptr(49000)),
		newAlert(2, 200, "BTC-PERPETUAL", 40000, ptr(49000)),
	}}
	oracle := &fakeOracle{errs: map[string]error{"BTC-PERPETUAL": errors.New("timeout")}}

	New(store, oracle, &fakeNotifier{}, Config{}).RunCycle(context.Background())

	assert.Equal(t, 1, oracle.calls["BTC-PERPETUAL"])
}

func TestDeliveryFailureStillMarksTriggered(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 50000}}
	notifier := &fakeNotifier{err: errors.New("telegram unreachable")}

	m := New(store, oracle, notifier, Config{})
	m.RunCycle(context.Background())

	// duplicate suppression beats guaranteed delivery
	assert.Equal(t, types.StateTriggered, store.get(1).State)

	// and the alert never fires again once delivery recovers
	notifier.err = nil
	m.RunCycle(context.Background())
	assert.Empty(t, notifier.sent())
}

func TestDeletedAlertProducesNoNotification(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 50000}}
	notifier := &fakeNotifier{}

	store.delete(1)
	m := New(store, oracle, notifier, Config{})
	m.RunCycle(context.Background())

	assert.Empty(t, notifier.sent())

	// stale updates against the deleted id must not error either
	assert.NoError(t, store.UpdateLastPrice(1, 50000))
	assert.NoError(t, store.MarkTriggered(1))
}

func TestStoreFailureDoesNotStopTheLoop(t *testing.T) {
	store := &fakeStore{listErr: errors.New("store unavailable")}
	m := New(store, &fakeOracle{}, &fakeNotifier{}, Config{})

	// must not panic; the next cycle retries naturally
	m.RunCycle(context.Background())

	store.mu.Lock()
	store.listErr = nil
	store.alerts = []*types.Alert{newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000))}
	store.mu.Unlock()

	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 50000}}
	notifier := &fakeNotifier{}
	New(store, oracle, notifier, Config{}).RunCycle(context.Background())
	assert.Len(t, notifier.sent(), 1)
}

func TestStartStop(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(49000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 49500}}

	m := New(store, oracle, &fakeNotifier{}, Config{Interval: 10 * time.Millisecond})
	m.Start()
	m.Start() // second Start is a no-op

	time.Sleep(35 * time.Millisecond)
	m.Stop()

	oracle.mu.Lock()
	ran := oracle.calls["BTC-PERPETUAL"]
	oracle.mu.Unlock()
	assert.GreaterOrEqual(t, ran, 2)

	// Stop is idempotent and the loop is really gone
	m.Stop()
	after := oracle.calls["BTC-PERPETUAL"]
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, oracle.calls["BTC-PERPETUAL"])
}

func TestPreviousEqualToTargetDoesNotFire(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "BTC-PERPETUAL", 50000, ptr(50000)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"BTC-PERPETUAL": 50500}}
	notifier := &fakeNotifier{}

	New(store, oracle, notifier, Config{}).RunCycle(context.Background())

	assert.Empty(t, notifier.sent())
	assert.Equal(t, types.StateActive, store.get(1).State)
	assert.Equal(t, 50500.0, *store.get(1).LastPrice)
}

func TestMessageContainsSymbolTargetAndCurrent(t *testing.T) {
	store := &fakeStore{alerts: []*types.Alert{
		newAlert(1, 100, "ETH-PERPETUAL", 3000, ptr(3100)),
	}}
	oracle := &fakeOracle{prices: map[string]float64{"ETH-PERPETUAL": 2950.5}}
	notifier := &fakeNotifier{}

	New(store, oracle, notifier, Config{}).RunCycle(context.Background())

	require.Len(t, notifier.sent(), 1)
	msg := notifier.sent()[0]
	assert.Contains(t, msg, "ETH-PERPETUAL")
	assert.True(t, strings.Contains(msg, "3,000"), "target missing from %q", msg)
	// prices above 1000 are rendered without decimals
	assert.True(t, strings.Contains(msg, "2,950"), "current price missing from %q", msg)
}
