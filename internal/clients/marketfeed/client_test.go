package marketfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient("test-key", WithBaseURL(srv.URL))
	return client, srv
}

func TestPrice(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote/AAPL", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		assert.Equal(t, "json", r.URL.Query().Get("fmt"))
		w.Write([]byte(`{"ticker":"AAPL","price":185.5,"currency":"USD"}`))
	})
	defer srv.Close()

	quote, err := client.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Ticker)
	assert.Equal(t, 185.5, quote.Price)
	assert.Equal(t, "USD", quote.Currency)
}

func TestPrice_StringEncodedNumber(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":"AAPL","price":"185.50","currency":"USD"}`))
	})
	defer srv.Close()

	quote, err := client.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 185.5, quote.Price)
}

func TestPrice_APIError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("quota exceeded"))
	})
	defer srv.Close()

	_, err := client.Price(context.Background(), "AAPL")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "quota exceeded")
}

func TestPriceBatch(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL,D05.SI", r.URL.Query().Get("symbols"))
		w.Write([]byte(`[
			{"ticker":"AAPL","price":185.5,"currency":"USD"},
			{"ticker":"D05.SI","price":35.2,"currency":"SGD"}
		]`))
	})
	defer srv.Close()

	quotes, err := client.PriceBatch(context.Background(), []string{"AAPL", "D05.SI"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, 35.2, quotes["D05.SI"].Price)
}

func TestPriceBatch_EmptyInputSkipsRequest(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty ticker list")
	})
	defer srv.Close()

	quotes, err := client.PriceBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestHistoricalCloses(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/AAPL", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "a", r.URL.Query().Get("order"))
		w.Write([]byte(`[
			{"date":"2024-01-02","close":185.5},
			{"date":"2024-01-03","close":186.0}
		]`))
	})
	defer srv.Close()

	closes, err := client.HistoricalCloses(context.Background(), "AAPL", "2024-01-01", "")
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, "2024-01-02", closes[0].Date)
	assert.Equal(t, 186.0, closes[1].Close)
}

func TestDividends(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/div/AAPL", r.URL.Path)
		w.Write([]byte(`[{"date":"2024-05-10","value":0.25}]`))
	})
	defer srv.Close()

	events, err := client.Dividends(context.Background(), "AAPL", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "2024-05-10", events[0].ExDate)
	assert.Equal(t, 0.25, events[0].PerShare)
}

func TestMetadata_CountryFallsBackToExchange(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":"AAPL","currency":"usd","exchange":"NMS","name":"Apple Inc"}`))
	})
	defer srv.Close()

	meta, err := client.Metadata(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "USD", meta.Currency)
	assert.Equal(t, "US", meta.Country)
	assert.Equal(t, "Apple Inc", meta.Name)
}

func TestHistoricalRates(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fx/USDSGD/history", r.URL.Path)
		w.Write([]byte(`[{"date":"2024-01-15","close":1.35}]`))
	})
	defer srv.Close()

	rates, err := client.HistoricalRates(context.Background(), "usd", "sgd", "2024-01-15", "2024-01-20")
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 1.35, rates[0].Close)
}

func TestLiveRate(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fx/USDSGD/live", r.URL.Path)
		w.Write([]byte(`{"pair":"USDSGD","rate":1.34}`))
	})
	defer srv.Close()

	rate, err := client.LiveRate(context.Background(), "USD", "SGD")
	require.NoError(t, err)
	assert.Equal(t, 1.34, rate)
}

func TestLiveRate_RejectsNonPositive(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pair":"USDSGD","rate":0}`))
	})
	defer srv.Close()

	_, err := client.LiveRate(context.Background(), "USD", "SGD")
	assert.Error(t, err)
}
