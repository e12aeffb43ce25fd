// Package authority talks to the tax authority's electronic invoicing service
// through its JSON gateway, authenticating every session with the caller's
// own client certificate.
package authority

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/facturia/facturia/internal/shared"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

// Identity names the taxpayer and the materialized key pair used to sign in.
type Identity struct {
	AccountID string
	CertPath  string
	KeyPath   string
}

// Gateway is an authenticated conversation with the authority.
type Gateway interface {
	LastVoucher(ctx context.Context, pointOfSale, voucherType int) (int64, error)
	CreateVoucher(ctx context.Context, req VoucherRequest) (Authorization, error)
	Close()
}

// Client wraps interactions with the authority gateway.
type Client struct {
	baseURL string
	timeout time.Duration
	rootCAs *x509.CertPool
	logger  zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout bounds every gateway round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRootCAs overrides the pool used to verify the gateway certificate.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Client) {
		c.rootCAs = pool
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a new client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "authority").Logger()
	return c
}

// Ping checks if the gateway is reachable. It does not authenticate.
func (c *Client) Ping(ctx context.Context) error {
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: c.rootCAs, MinVersion: tls.VersionTLS12}},
	}
	defer httpClient.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("authority gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// Open loads the key pair named by id and returns a session authenticated with it.
func (c *Client) Open(ctx context.Context, id Identity) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pair, err := tls.LoadX509KeyPair(id.CertPath, id.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate or private key is malformed: %v", shared.ErrInvalidRequest, err)
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{pair},
			RootCAs:      c.rootCAs,
			MinVersion:   tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}
	return &Session{
		accountID:  id.AccountID,
		baseURL:    c.baseURL,
		httpClient: &http.Client{Timeout: c.timeout, Transport: transport},
		transport:  transport,
		logger:     c.logger.With().Str("account_id", id.AccountID).Logger(),
	}, nil
}

// Dial is Open returning the Gateway interface.
func (c *Client) Dial(ctx context.Context, id Identity) (Gateway, error) {
	s, err := c.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Session is an authenticated gateway connection for one account.
type Session struct {
	accountID  string
	baseURL    string
	httpClient *http.Client
	transport  *http.Transport
	logger     zerolog.Logger
}

var _ Gateway = (*Session)(nil)

type lastVoucherRequest struct {
	CUIT     string `json:"Cuit"`
	PtoVta   int    `json:"PtoVta"`
	CbteTipo int    `json:"CbteTipo"`
}

type lastVoucherResponse struct {
	CbteNro int64     `json:"CbteNro"`
	Errors  []Message `json:"Errors,omitempty"`
}

// LastVoucher returns the last voucher number the authority accepted for the
// point of sale and voucher type, or zero when none was issued yet.
func (s *Session) LastVoucher(ctx context.Context, pointOfSale, voucherType int) (int64, error) {
	var out lastVoucherResponse
	if err := s.post(ctx, "/wsfe/last-voucher", lastVoucherRequest{
		CUIT:     s.accountID,
		PtoVta:   pointOfSale,
		CbteTipo: voucherType,
	}, &out); err != nil {
		return 0, err
	}
	if len(out.Errors) > 0 {
		return 0, faultFromMessages(out.Errors)
	}
	if out.CbteNro < 0 {
		return 0, fmt.Errorf("%w: negative last voucher number %d", shared.ErrAuthorityFault, out.CbteNro)
	}
	return out.CbteNro, nil
}

type createVoucherRequest struct {
	CUIT string `json:"Cuit"`
	VoucherRequest
}

// CreateVoucher asks the authority to authorize one voucher.
func (s *Session) CreateVoucher(ctx context.Context, req VoucherRequest) (Authorization, error) {
	var out voucherResponse
	if err := s.post(ctx, "/wsfe/vouchers", createVoucherRequest{CUIT: s.accountID, VoucherRequest: req}, &out); err != nil {
		return Authorization{}, err
	}
	auth, err := out.authorization(req.CbteDesde)
	if err != nil {
		return Authorization{}, err
	}
	if auth.Expiry.IsZero() {
		s.logger.Warn().Str("cae_expiry", out.CAEFchVto).Int64("voucher", auth.VoucherNumber).Msg("authorized voucher has no readable expiry")
	}
	for _, obs := range out.Observaciones {
		s.logger.Warn().Int("code", obs.Code).Str("msg", obs.Msg).Int64("voucher", auth.VoucherNumber).Msg("authority observation")
	}
	return auth, nil
}

// Close releases idle connections held by the session.
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

func (s *Session) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("authority: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("authority: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(err)
	}
	s.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("authority call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return faultFromStatus(resp.StatusCode, raw)
	}
	if isSOAPFault(raw) {
		return soapFault(raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed gateway response: %v", shared.ErrAuthorityFault, err)
	}
	return nil
}
