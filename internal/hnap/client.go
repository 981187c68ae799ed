// Package hnap implements the HNAP1 JSON RPC protocol spoken by Arris and
// Motorola cable modems: challenge-response login, per-request signing and
// response envelope validation.
package hnap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodySize caps how much of a response is read. Event logs on busy
// modems run to a few hundred kilobytes.
const maxBodySize = 4 << 20

// Config holds the protocol client settings.
type Config struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxInactive    time.Duration `mapstructure:"max_inactive"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DefaultConfig returns the default protocol client settings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxInactive:    DefaultMaxInactive,
		RateLimit:      4,
		RateBurst:      4,
	}
}

// SessionOptions returns the session options implied by the config.
func (c Config) SessionOptions() []SessionOption {
	return []SessionOption{
		WithTimeouts(c.ConnectTimeout, c.ReadTimeout),
		WithMaxInactive(c.MaxInactive),
	}
}

// Client executes commands against sessions. It performs no retries; the
// caller decides when to try again.
type Client struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a protocol client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Execute runs cmd against s, logging in first when the session is not
// valid, and returns the unwrapped {Operation}Response object.
func (c *Client) Execute(ctx context.Context, s *Session, cmd Command, args Args) (Response, error) {
	if !s.Valid() {
		if s.Expired() {
			c.logger.Info("session expired, logging in again",
				zap.String("host", s.Host()),
			)
			s.Invalidate()
		}
		if err := c.Login(ctx, s); err != nil {
			return nil, err
		}
	}
	return c.do(ctx, s, cmd, args)
}

// Login runs the two round trip challenge-response login and stores the
// derived secrets in s. On failure s holds no credentials.
func (c *Client) Login(ctx context.Context, s *Session) error {
	s.clear()

	resp, err := c.do(ctx, s, LoginRequestCommand(), Args{"username": s.Username()})
	if err != nil {
		loginsTotal.WithLabelValues("failed").Inc()
		return &AuthError{Step: "request", Err: err}
	}

	cookie := resp.String("Cookie")
	publicKey := resp.String("PublicKey")
	challenge := resp.String("Challenge")
	if cookie == "" || publicKey == "" || challenge == "" {
		s.clear()
		loginsTotal.WithLabelValues("failed").Inc()
		return &AuthError{Step: "request", Err: fmt.Errorf("challenge incomplete (cookie=%t public_key=%t challenge=%t)",
			cookie != "", publicKey != "", challenge != "")}
	}

	s.authenticate(challenge, publicKey, cookie)

	if _, err := c.do(ctx, s, LoginCommand(), Args{
		"username":         s.Username(),
		"encoded_password": s.encodedPassword,
	}); err != nil {
		s.clear()
		loginsTotal.WithLabelValues("failed").Inc()
		return &AuthError{Step: "login", Err: err}
	}

	loginsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("logged in", zap.String("host", s.Host()), zap.String("username", s.Username()))
	return nil
}

// Capabilities fetches the raw capability document the device serves on
// GET /HNAP1/.
func (c *Client) Capabilities(ctx context.Context, s *Session) (string, error) {
	if !s.Valid() {
		if err := c.Login(ctx, s); err != nil {
			return "", err
		}
	}

	raw, status, err := c.send(ctx, s, http.MethodGet, "", "", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &ProtocolError{Operation: "capabilities", StatusCode: status, Body: string(raw)}
	}
	s.touch()
	return string(raw), nil
}

// do sends one command and validates its response envelope.
func (c *Client) do(ctx context.Context, s *Session, cmd Command, args Args) (Response, error) {
	body, err := json.Marshal(map[string]any{cmd.Operation: cmd.BuildPayload(args)})
	if err != nil {
		return nil, fmt.Errorf("hnap %s: encode payload: %w", cmd.Operation, err)
	}

	start := time.Now()
	raw, status, err := c.send(ctx, s, cmd.Method, cmd.Operation, cmd.SOAPAction(), body)
	requestDuration.WithLabelValues(cmd.Operation).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(cmd.Operation, outcomeTransport).Inc()
		return nil, err
	}

	c.logger.Debug("hnap response",
		zap.String("command", cmd.String()),
		zap.Int("status", status),
		zap.ByteString("body", raw),
	)

	if status < 200 || status >= 300 {
		requestsTotal.WithLabelValues(cmd.Operation, outcomeProtocol).Inc()
		return nil, &ProtocolError{Operation: cmd.Operation, StatusCode: status, Body: string(raw)}
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		requestsTotal.WithLabelValues(cmd.Operation, outcomeProtocol).Inc()
		return nil, &ProtocolError{Operation: cmd.Operation, Body: string(raw), Err: fmt.Errorf("decode body: %w", err)}
	}

	inner, err := cmd.Validate(decoded)
	if err != nil {
		requestsTotal.WithLabelValues(cmd.Operation, outcomeProtocol).Inc()
		return nil, err
	}

	requestsTotal.WithLabelValues(cmd.Operation, outcomeOK).Inc()
	s.touch()
	return inner, nil
}

// send signs and issues one HTTP request and returns the raw body.
func (c *Client) send(ctx context.Context, s *Session, method, operation, soapAction string, body []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, &TransportError{Operation: operation, Err: err}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.URL(), reader)
	if err != nil {
		return nil, 0, fmt.Errorf("hnap %s: build request: %w", operation, err)
	}

	// HNAP servers match these header names literally, so bypass
	// canonicalization.
	req.Header["HNAP_AUTH"] = []string{s.authHeader(operation)}
	if soapAction != "" {
		req.Header["SOAPAction"] = []string{soapAction}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range s.cookies(req.URL) {
		req.AddCookie(ck)
	}

	c.logger.Debug("hnap request",
		zap.String("method", method),
		zap.String("url", s.URL()),
		zap.String("operation", operation),
	)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()
	s.keepCookies(req.URL, resp.Cookies())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Operation: operation, Err: err}
	}
	return raw, resp.StatusCode, nil
}
