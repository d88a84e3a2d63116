package cbr

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/kavishgr/loanledger/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// cacheTTL bounds how often the key rate is re-fetched.
const cacheTTL = time.Hour

// KeyRateSource derives the loan interest rate from the Central Bank of
// Russia key rate plus a configured margin. The fetched rate is cached,
// the key rate does not move hour to hour.
type KeyRateSource struct {
	url    string
	margin decimal.Decimal
	client *http.Client
	log    *logrus.Logger

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
}

// NewKeyRateSource initializes a key-rate backed interest-rate source
func NewKeyRateSource(cfg *config.Config, log *logrus.Logger) *KeyRateSource {
	return &KeyRateSource{
		url:    cfg.CBRURL,
		margin: cfg.RateMargin,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// InterestRate returns the current key rate plus margin, in percent.
func (c *KeyRateSource) InterestRate() (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < cacheTTL {
		return c.cached, nil
	}

	body, err := c.sendRequest(c.buildSOAPRequest())
	if err != nil {
		return decimal.Zero, err
	}
	keyRate, err := c.parseXMLResponse(body)
	if err != nil {
		return decimal.Zero, err
	}

	rate := keyRate.Add(c.margin)
	c.cached = rate
	c.cachedAt = time.Now()
	c.log.Infof("Retrieved key rate: %s%% (including %s%% margin)", rate, c.margin)
	return rate, nil
}

// buildSOAPRequest creates a SOAP request for the key rate
func (c *KeyRateSource) buildSOAPRequest() string {
	fromDate := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	toDate := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, fromDate, toDate)
}

// sendRequest sends the SOAP request to CBR
func (c *KeyRateSource) sendRequest(soapRequest string) ([]byte, error) {
	req, err := http.NewRequest("POST", c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("CBR XML response: %s", string(body))
	return body, nil
}

// parseXMLResponse extracts the latest key rate from the SOAP response
func (c *KeyRateSource) parseXMLResponse(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse XML: %w", err)
	}

	krElements := doc.FindElements("//diffgram/KeyRate/KR")
	if len(krElements) == 0 {
		return decimal.Zero, fmt.Errorf("no key rate data found in XML")
	}

	// The first element carries the most recent rate.
	rateElement := krElements[0].FindElement("./Rate")
	if rateElement == nil {
		return decimal.Zero, fmt.Errorf("rate element not found in XML")
	}

	rate, err := decimal.NewFromString(rateElement.Text())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse rate: %w", err)
	}
	return rate, nil
}
