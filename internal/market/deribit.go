// Package market wraps the Deribit public API as a price oracle.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrUnavailable is returned for every failed price lookup, whatever the
// underlying cause. The caller retries on its next cycle; the adapter does
// not retry on its own.
var ErrUnavailable = errors.New("price unavailable")

const (
	DefaultBaseURL = "https://www.deribit.com/api/v2"

	instrumentsCacheKey = "instruments"
	instrumentsCacheTTL = 10 * time.Minute
)

// currencies whose perpetual swaps the bot offers for alerts
var currencies = []string{"BTC", "ETH"}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *gocache.Cache
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: gocache.New(instrumentsCacheTTL, 2*instrumentsCacheTTL),
	}
}

// FetchPrice returns the last traded price for an instrument. Any network,
// HTTP or decoding failure degrades to ErrUnavailable.
func (c *Client) FetchPrice(ctx context.Context, instrument string) (float64, error) {
	endpoint := fmt.Sprintf("%s/public/ticker?instrument_name=%s", c.baseURL, url.QueryEscape(instrument))

	var payload struct {
		Result struct {
			LastPrice *float64 `json:"last_price"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		log.Debugf("ticker request for %s failed: %v", instrument, err)
		return 0, errors.Wrapf(ErrUnavailable, "fetch ticker %s", instrument)
	}

	if payload.Error != nil {
		log.Debugf("ticker request for %s rejected: %d %s", instrument, payload.Error.Code, payload.Error.Message)
		return 0, errors.Wrapf(ErrUnavailable, "fetch ticker %s", instrument)
	}

	if payload.Result.LastPrice == nil {
		return 0, errors.Wrapf(ErrUnavailable, "no last price for %s", instrument)
	}

	return *payload.Result.LastPrice, nil
}

// GetInstruments lists the active BTC and ETH perpetual instruments users
// can set alerts on. Results are cached so the /setalert keyboard does not
// hit the exchange on every command.
func (c *Client) GetInstruments(ctx context.Context) ([]string, error) {
	if cached, found := c.cache.Get(instrumentsCacheKey); found {
		return cached.([]string), nil
	}

	var names []string
	for _, currency := range currencies {
		endpoint := fmt.Sprintf("%s/public/get_instruments?currency=%s&expired=false", c.baseURL, currency)

		var payload struct {
			Result []struct {
				InstrumentName   string `json:"instrument_name"`
				Kind             string `json:"kind"`
				SettlementPeriod string `json:"settlement_period"`
				IsActive         bool   `json:"is_active"`
			} `json:"result"`
		}

		if err := c.getJSON(ctx, endpoint, &payload); err != nil {
			return nil, errors.Wrapf(err, "list %s instruments", currency)
		}

		for _, instrument := range payload.Result {
			if instrument.Kind == "future" && instrument.SettlementPeriod == "perpetual" && instrument.IsActive {
				names = append(names, instrument.InstrumentName)
			}
		}
	}

	c.cache.Set(instrumentsCacheKey, names, gocache.DefaultExpiration)
	return names, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
