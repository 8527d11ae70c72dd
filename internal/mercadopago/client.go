package mercadopago

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eventtix/tix-mercadopago/internal/obs"
)

const defaultBaseURL = "https://api.mercadolibre.com"

// Sentinel errors for the three gateway operations. Callers match on these
// with errors.Is and convert them into order outcomes.
var (
	ErrAuth         = errors.New("mercadopago: access token fetch failed")
	ErrPreference   = errors.New("mercadopago: preference creation failed")
	ErrNotification = errors.New("mercadopago: notification fetch failed")
)

// Config carries the gateway credentials and transport policy. Every value
// is passed in explicitly; the client holds no global state.
type Config struct {
	ClientID     string
	ClientSecret string
	Sandbox      bool
	LogEnabled   bool
	Timeout      time.Duration
	// InsecureTLS relaxes certificate verification on this client's transport
	// only. It never touches the process-wide default transport.
	InsecureTLS bool
	// BaseURL overrides the production API host, used by tests.
	BaseURL string
}

// Client talks to the MercadoPago API: token exchange, preference creation
// and collection-notification lookup. Access tokens are fetched fresh for
// every operation and never cached.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger

	tokenURL      string
	preferenceURL string
	ipnURL        string
	sandboxIPNURL string
}

// NewClient builds a Client with its own instrumented transport.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{}
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	if !cfg.LogEnabled {
		logger = zerolog.Nop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		logger:        logger,
		tokenURL:      base + "/oauth/token",
		preferenceURL: base + "/checkout/preferences",
		ipnURL:        base + "/collections/notifications",
		sandboxIPNURL: base + "/sandbox/collections/notifications",
	}
}

// FetchAccessToken exchanges the client credentials for a short-lived
// access token. Any transport error, non-2xx status or malformed body
// yields ErrAuth and no token.
func (c *Client) FetchAccessToken(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("mercadopago.Client").Start(ctx, "Client.FetchAccessToken")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	c.logEvent().Str("client_id", c.cfg.ClientID).Msg("fetching gateway access token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req, "oauth_token")
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if status < 200 || status > 299 {
		c.logEvent().Int("status", status).Msg("gateway rejected credential exchange")
		return "", fmt.Errorf("%w: unexpected status %d", ErrAuth, status)
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode body: %v", ErrAuth, err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuth)
	}
	return parsed.AccessToken, nil
}

// CreatePreference submits a checkout preference and returns the redirect
// URL the buyer should be sent to. Success is strictly HTTP 201; the
// sandbox init point is returned when sandbox mode is on.
func (c *Client) CreatePreference(ctx context.Context, pref Preference) (string, error) {
	ctx, span := otel.Tracer("mercadopago.Client").Start(ctx, "Client.CreatePreference")
	defer span.End()
	span.SetAttributes(attribute.String("payment.external_reference", pref.ExternalReference))

	token, err := c.FetchAccessToken(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(pref)
	if err != nil {
		return "", fmt.Errorf("%w: encode preference: %v", ErrPreference, err)
	}
	endpoint := c.preferenceURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPreference, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	body, status, err := c.do(req, "checkout_preference")
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrPreference, err)
	}
	if status != http.StatusCreated {
		c.logEvent().Int("status", status).Msg("gateway rejected preference creation")
		return "", fmt.Errorf("%w: unexpected status %d", ErrPreference, status)
	}
	var parsed struct {
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode body: %v", ErrPreference, err)
	}
	redirect := parsed.InitPoint
	if c.cfg.Sandbox {
		redirect = parsed.SandboxInitPoint
	}
	if strings.TrimSpace(redirect) == "" {
		return "", fmt.Errorf("%w: missing init point", ErrPreference)
	}
	c.logEvent().Msg("payment link generated")
	return redirect, nil
}

// GetNotification re-fetches the authoritative collection record for an
// IPN callback. Success is strictly HTTP 200.
func (c *Client) GetNotification(ctx context.Context, collectionID string) (Notification, error) {
	ctx, span := otel.Tracer("mercadopago.Client").Start(ctx, "Client.GetNotification")
	defer span.End()
	span.SetAttributes(attribute.String("payment.collection_id", collectionID))

	var zero Notification
	token, err := c.FetchAccessToken(ctx)
	if err != nil {
		return zero, err
	}
	base := c.ipnURL
	if c.cfg.Sandbox {
		base = c.sandboxIPNURL
	}
	endpoint := base + "/" + url.PathEscape(collectionID) + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrNotification, err)
	}
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, "collection_notification")
	if err != nil {
		span.RecordError(err)
		return zero, fmt.Errorf("%w: %v", ErrNotification, err)
	}
	if status != http.StatusOK {
		c.logEvent().Int("status", status).Str("collection_id", collectionID).Msg("gateway rejected notification lookup")
		return zero, fmt.Errorf("%w: unexpected status %d", ErrNotification, status)
	}
	var parsed Notification
	if err := json.Unmarshal(body, &parsed); err != nil {
		return zero, fmt.Errorf("%w: decode body: %v", ErrNotification, err)
	}
	c.logEvent().Str("collection_id", collectionID).Str("collection_status", parsed.Collection.Status).Msg("notification verified with gateway")
	return parsed, nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if obs.GatewayRequestLatency != nil {
		obs.GatewayRequestLatency.WithLabelValues(endpoint).Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		countGatewayRequest(endpoint, "transport_error")
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		countGatewayRequest(endpoint, "read_error")
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		countGatewayRequest(endpoint, "success")
	} else {
		countGatewayRequest(endpoint, "rejected")
	}
	return body, resp.StatusCode, nil
}

func countGatewayRequest(endpoint, result string) {
	if obs.GatewayRequestTotal != nil {
		obs.GatewayRequestTotal.WithLabelValues(endpoint, result).Inc()
	}
}

// logEvent returns a debug event. The logger is replaced with a disabled
// one at construction when LogEnabled is off, so logging is best effort
// and never fails the request.
func (c *Client) logEvent() *zerolog.Event {
	return c.logger.Debug()
}
