package telegram

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"deribit-alert-bot/internal/database"
	"deribit-alert-bot/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBot builds a bot around a stub exchange without hitting the
// Telegram API.
func newTestBot(marketClient *market.Client) *Bot {
	return &Bot{
		Config:        BotConfig{FetchTimeout: time.Second},
		market:        marketClient,
		pendingSymbol: make(map[int64]string),
	}
}

func TestParseArguments(t *testing.T) {
	symbol, target := ParseArguments("BTC-PERPETUAL 50000")
	assert.Equal(t, "BTC-PERPETUAL", symbol)
	assert.Equal(t, "50000", target)

	symbol, target = ParseArguments("BTC-PERPETUAL")
	assert.Equal(t, "BTC-PERPETUAL", symbol)
	assert.Equal(t, "", target)

	symbol, target = ParseArguments("")
	assert.Equal(t, "", symbol)
	assert.Equal(t, "", target)
}

func TestCreateAlertRejectsInvalidPrice(t *testing.T) {
	b := newTestBot(market.NewClient("http://127.0.0.1:0"))

	reply := b.createAlert(1, "BTC-PERPETUAL", "not-a-number")
	assert.Contains(t, reply, "valid price")
}

func TestCreateAlertSeedsFromOracle(t *testing.T) {
	require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { database.CloseDB() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-PERPETUAL", r.URL.Query().Get("instrument_name"))
		w.Write([]byte(`{"result":{"last_price":49000}}`))
	}))
	defer srv.Close()

	b := newTestBot(market.NewClient(srv.URL))
	b.pendingSymbol[1] = "BTC-PERPETUAL"

	reply := b.createAlert(1, "BTC-PERPETUAL", "50000")
	assert.Contains(t, reply, "Alert set for BTC\\-PERPETUAL")

	alerts, err := database.GetActiveAlertsByChatID(1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 50000.0, alerts[0].TargetPrice)
	require.NotNil(t, alerts[0].LastPrice)
	assert.Equal(t, 49000.0, *alerts[0].LastPrice)

	// the alert dialog for this chat is finished
	_, pending := b.pendingSymbol[1]
	assert.False(t, pending)
}

func TestCreateAlertFailsClosedWhenOracleUnavailable(t *testing.T) {
	require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { database.CloseDB() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := newTestBot(market.NewClient(srv.URL))

	reply := b.createAlert(1, "BTC-PERPETUAL", "50000")
	assert.Contains(t, reply, "try again later")

	// no record without a seed price
	alerts, err := database.GetActiveAlertsByChatID(1)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
