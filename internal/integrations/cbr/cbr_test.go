package cbr

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kavishgr/loanledger/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const keyRateResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">
  <soap:Body>
    <KeyRateResponse xmlns="http://web.cbr.ru/">
      <KeyRateResult>
        <diffgram>
          <KeyRate>
            <KR><DT>2026-08-28T00:00:00+03:00</DT><Rate>16.00</Rate></KR>
            <KR><DT>2026-08-27T00:00:00+03:00</DT><Rate>15.50</Rate></KR>
          </KeyRate>
        </diffgram>
      </KeyRateResult>
    </KeyRateResponse>
  </soap:Body>
</soap:Envelope>`

func newKeyRateServer(t *testing.T, body string, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, "POST", r.Method)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSource(url string) *KeyRateSource {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewKeyRateSource(&config.Config{
		CBRURL:     url,
		RateMargin: decimal.NewFromInt(5),
	}, logger)
}

func TestInterestRateAddsMargin(t *testing.T) {
	var calls int
	srv := newKeyRateServer(t, keyRateResponse, &calls)

	rate, err := newTestSource(srv.URL).InterestRate()
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(21)), "got %s", rate)
}

func TestInterestRateCachesResult(t *testing.T) {
	var calls int
	srv := newKeyRateServer(t, keyRateResponse, &calls)
	src := newTestSource(srv.URL)

	first, err := src.InterestRate()
	require.NoError(t, err)
	second, err := src.InterestRate()
	require.NoError(t, err)
	require.True(t, first.Equal(second))
	require.Equal(t, 1, calls)
}

func TestInterestRateRejectsEmptyResponse(t *testing.T) {
	var calls int
	srv := newKeyRateServer(t, `<?xml version="1.0"?><Envelope></Envelope>`, &calls)

	_, err := newTestSource(srv.URL).InterestRate()
	require.Error(t, err)
}
