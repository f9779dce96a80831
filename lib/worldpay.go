package lib

import (
	"bytes"
	"cardpay/config"
	"cardpay/helper"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.elastic.co/apm"
)

var GatewayRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cardpay_gateway_request_duration_seconds",
		Help:    "Duration of Worldpay API calls by operation and HTTP status.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation", "status"},
)

// PrometheusInit registers the gateway metrics with the default registry.
func PrometheusInit() {
	prometheus.MustRegister(GatewayRequestDuration)
}

// GatewayError is a failed Worldpay call: a non-2xx status, a transport failure
// (StatusCode 0) or a response that could not be understood.
type GatewayError struct {
	Operation  string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "worldpay %s failed", e.Operation)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// WorldpayClient talks to the Worldpay Access API with one merchant identity.
type WorldpayClient struct {
	baseURL      string
	entity       string
	authHeader   string
	overrideName string
	narrative    string
	facilitator  config.PaymentFacilitator
	httpClient   *http.Client
}

func NewWorldpayClient(cfg config.WorldpayConfig) *WorldpayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WorldpayClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/") + "/",
		entity:       cfg.MerchantEntity,
		authHeader:   authorizationHeader(cfg),
		overrideName: cfg.OverrideName,
		narrative:    cfg.Narrative,
		facilitator:  cfg.Facilitator,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func authorizationHeader(cfg config.WorldpayConfig) string {
	if cfg.APIToken != "" {
		return "Bearer " + cfg.APIToken
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return "Basic " + credentials
}

type merchantRef struct {
	Entity string `json:"entity"`
}

type paymentInstrumentRef struct {
	Type string `json:"type"`
	Href string `json:"href"`
	CVC  string `json:"cvc,omitempty"`
}

type instructionValue struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

func (c *WorldpayClient) resolve(endpoint config.EndpointConfig, href string) string {
	if href != "" {
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return href
		}
		return c.baseURL + strings.TrimLeft(href, "/")
	}
	return c.baseURL + endpoint.Path
}

// do sends one gateway call. href overrides the configured path for calls that
// target a resource returned earlier, out may be nil.
func (c *WorldpayClient) do(ctx context.Context, operation, href string, reqBody, out interface{}) error {
	endpoint, err := config.GetEndpointConfig(operation)
	if err != nil {
		return err
	}
	span, ctx := apm.StartSpan(ctx, operation, "external.worldpay")
	defer span.End()

	url := c.resolve(endpoint, href)

	var jsonBody []byte
	var body io.Reader
	if reqBody != nil {
		jsonBody, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("error marshalling %s request: %w", operation, err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, endpoint.Method, url, body)
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	if endpoint.MediaType != "" {
		req.Header.Set("Accept", endpoint.MediaType)
		if reqBody != nil {
			req.Header.Set("Content-Type", endpoint.MediaType)
		}
	}

	logger := helper.GatewayLoggerFor(endpoint.LogType)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		duration := time.Since(start)
		GatewayRequestDuration.WithLabelValues(operation, "0").Observe(duration.Seconds())
		logger.LogAPICall(url, endpoint.Method, duration, 0, jsonMap(jsonBody), map[string]interface{}{"error": err.Error()})
		return &GatewayError{Operation: operation, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	GatewayRequestDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(duration.Seconds())
	if err != nil {
		return &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Message: "error reading response body", Err: err}
	}

	respLog := jsonMap(respBody)
	if respLog == nil && len(respBody) > 0 {
		respLog = map[string]interface{}{"body": string(respBody)}
	}
	logger.LogAPICall(url, endpoint.Method, duration, resp.StatusCode, jsonMap(jsonBody), respLog)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		helper.Error("Worldpay %s error: %d %s", operation, resp.StatusCode, string(respBody))
		return &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Message:    "error decoding response",
			Err:        err,
		}
	}
	return nil
}

func jsonMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
