// Package monitor drives periodic evaluation of price alerts against the
// exchange and delivers at most one notification per alert.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deribit-alert-bot/internal/crossing"
	"deribit-alert-bot/internal/types"
	"deribit-alert-bot/lib/helpers"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
)

// Store is the slice of the alert store the monitor needs. Updates on ids
// deleted by the user mid-cycle must be no-ops.
type Store interface {
	GetActiveAlerts() ([]types.Alert, error)
	UpdateLastPrice(alertID int64, price float64) error
	MarkTriggered(alertID int64) error
}

// Oracle provides the current price for an instrument. Failures degrade to
// an error; the monitor retries naturally on the next cycle.
type Oracle interface {
	FetchPrice(ctx context.Context, instrument string) (float64, error)
}

// Notifier delivers the crossing message to the alert owner.
type Notifier interface {
	Notify(chatID int64, text string) error
}

type Config struct {
	Interval     time.Duration // evaluation interval, default 30s
	FetchTimeout time.Duration // per-instrument fetch deadline, default 10s
}

type Monitor struct {
	store    Store
	oracle   Oracle
	notifier Notifier
	cfg      Config

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func New(store Store, oracle Oracle, notifier Notifier, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Monitor{
		store:    store,
		oracle:   oracle,
		notifier: notifier,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the evaluation loop. Cycles run strictly one at a time on
// a single goroutine; the next tick is not acted on until the previous
// cycle has finished.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.run()
		log.Infof("🚀 Alert monitor started (interval %s)", m.cfg.Interval)
	})
}

// Stop terminates the loop and waits for an in-flight cycle to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.RunCycle(context.Background())

	for {
		select {
		case <-ticker.C:
			m.RunCycle(context.Background())
		case <-m.stop:
			return
		}
	}
}

// RunCycle performs one complete pass over the active alerts. A failure on
// one alert never aborts the work on the others, and never stops the loop.
func (m *Monitor) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in alert cycle: %v", r)
		}
	}()

	alerts, err := m.store.GetActiveAlerts()
	if err != nil {
		log.Errorf("❌ Failed to fetch alerts from the store: %v", err)
		return
	}

	defer cyclesTotal.Inc()

	if len(alerts) == 0 {
		activeAlerts.Set(0)
		return
	}

	log.Debugf("🔄 Checking %d alerts...", len(alerts))

	// one oracle call per distinct instrument per cycle
	prices := make(map[string]float64)
	failed := make(map[string]bool)

	remaining := 0
	for _, alert := range alerts {
		price, ok := m.priceFor(ctx, alert.Symbol, prices, failed)
		if !ok {
			// transient: no state change, retried next cycle
			remaining++
			continue
		}

		if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("evaluating alert:\n%s", spew.Sdump(alert))
		}

		result := crossing.Evaluate(alert.LastPrice, price, alert.TargetPrice)
		if result.Crossed() {
			m.fire(alert, price, result)
		} else {
			remaining++
		}

		if err := m.store.UpdateLastPrice(alert.ID, price); err != nil {
			log.Errorf("❌ Failed to update last price for alert %d: %v", alert.ID, err)
		}
	}

	activeAlerts.Set(float64(remaining))
}

func (m *Monitor) priceFor(ctx context.Context, symbol string, prices map[string]float64, failed map[string]bool) (float64, bool) {
	if price, ok := prices[symbol]; ok {
		return price, true
	}
	if failed[symbol] {
		return 0, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	price, err := m.oracle.FetchPrice(fetchCtx, symbol)
	if err != nil {
		log.Warnf("⚠️ No price for %s this cycle: %v", symbol, err)
		oracleFailures.Inc()
		failed[symbol] = true
		return 0, false
	}

	prices[symbol] = price
	return price, true
}

// fire notifies the owner and marks the alert triggered. The alert is
// marked triggered even when delivery fails: a lost message is preferable
// to a duplicate one.
func (m *Monitor) fire(alert types.Alert, price float64, result crossing.Result) {
	log.Infof("🚨 Alert %d crossed %s: %s target %.2f, current %.2f",
		alert.ID, result, alert.Symbol, alert.TargetPrice, price)

	text := fmt.Sprintf("🚨 Price alert for %s: the price crossed %s. Current price: %s",
		alert.Symbol,
		helpers.FormatPriceUS(alert.TargetPrice, false),
		helpers.FormatPriceUS(price, false),
	)
	if err := m.notifier.Notify(alert.ChatID, text); err != nil {
		log.Errorf("❌ Failed to deliver alert %d to chat %d: %v", alert.ID, alert.ChatID, err)
		notifyFailures.Inc()
	}

	if err := m.store.MarkTriggered(alert.ID); err != nil {
		log.Errorf("❌ Failed to mark alert %d triggered: %v", alert.ID, err)
		return
	}
	alertsTriggered.Inc()
}
