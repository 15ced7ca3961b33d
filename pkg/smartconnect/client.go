// Package smartconnect is a typed client for the Angel One SmartAPI market
// data surface: session generation with TOTP, REST quotes, historical
// candles, the put-call ratio read, and the binary tick stream.
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	defaultRoot    = "https://apiconnect.angelone.in"
	defaultLogin   = "https://smartapi.angelone.in/publisher-login"
	defaultTimeout = 5 * time.Second
)

var routes = map[string]string{
	"login":  "/rest/auth/angelbroking/user/v1/loginByPassword",
	"logout": "/rest/secure/angelbroking/user/v1/logout",
	"tokens": "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"quote":  "/rest/secure/angelbroking/market/v1/quote",
	"candle": "/rest/secure/angelbroking/historical/v1/getCandleData",
	"pcr":    "/rest/secure/angelbroking/marketData/v1/putCallRatio",
}

// ErrTokenRejected marks 401/403 and TokenException responses. Match with
// errors.Is.
var ErrTokenRejected = errors.New("smartconnect: token rejected")

// APIError is a non-auth upstream failure with the broker's error code.
type APIError struct {
	Route   string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("smartconnect: %s failed: %s (%s)", e.Route, e.Message, e.Code)
}

// Config configures a Client. APIKey and ClientCode are mandatory; PIN and
// TOTPSecret are only needed when the client generates its own session
// instead of receiving tokens from the auth collaborator.
type Config struct {
	APIKey     string
	ClientCode string
	PIN        string
	TOTPSecret string

	AccessToken string
	FeedToken   string

	RootURL  string
	LoginURL string
	WSURL    string
	Timeout  time.Duration

	HTTP *http.Client
}

// Client talks to the SmartAPI REST surface. Safe for concurrent use.
type Client struct {
	apiKey     string
	clientCode string
	pin        string
	totpSecret string

	rootURL  string
	loginURL string
	wsURL    string

	http *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string

	localIP string
	macAddr string

	// SessionExpiryHook fires once per request that hits a token rejection.
	SessionExpiryHook func()
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLogin
	}
	if cfg.WSURL == "" {
		cfg.WSURL = defaultStreamURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		apiKey:      cfg.APIKey,
		clientCode:  cfg.ClientCode,
		pin:         cfg.PIN,
		totpSecret:  cfg.TOTPSecret,
		rootURL:     cfg.RootURL,
		loginURL:    cfg.LoginURL,
		wsURL:       cfg.WSURL,
		http:        hc,
		accessToken: cfg.AccessToken,
		feedToken:   cfg.FeedToken,
		localIP:     localIP(),
		macAddr:     macAddr(),
	}
}

// LoginURL is the publisher-login URL for the OAuth collaborator flow.
func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s?api_key=%s", c.loginURL, c.apiKey)
}

// SetTokens installs externally obtained session tokens.
func (c *Client) SetTokens(access, feed string) {
	c.mu.Lock()
	c.accessToken = access
	if feed != "" {
		c.feedToken = feed
	}
	c.mu.Unlock()
}

// AccessToken returns the current JWT.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// FeedToken returns the current feed token for the tick stream.
func (c *Client) FeedToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedToken
}

type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type sessionData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// GenerateSession logs in with client code, PIN, and a freshly computed TOTP
// and stores the resulting tokens on the client.
func (c *Client) GenerateSession(ctx context.Context) error {
	if c.totpSecret == "" {
		return errors.New("smartconnect: no TOTP secret configured")
	}
	code, err := totp.GenerateCode(c.totpSecret, time.Now())
	if err != nil {
		return fmt.Errorf("smartconnect: totp: %w", err)
	}

	var data sessionData
	err = c.post(ctx, "login", map[string]string{
		"clientcode": c.clientCode,
		"password":   c.pin,
		"totp":       code,
	}, &data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = data.JWTToken
	c.refreshToken = data.RefreshToken
	c.feedToken = data.FeedToken
	c.mu.Unlock()
	return nil
}

// RenewTokens exchanges the refresh token for a fresh JWT/feed token pair.
func (c *Client) RenewTokens(ctx context.Context) error {
	c.mu.RLock()
	rt := c.refreshToken
	c.mu.RUnlock()
	if rt == "" {
		return errors.New("smartconnect: no refresh token")
	}

	var data sessionData
	if err := c.post(ctx, "tokens", map[string]string{"refreshToken": rt}, &data); err != nil {
		return err
	}
	c.mu.Lock()
	if data.JWTToken != "" {
		c.accessToken = data.JWTToken
	}
	if data.FeedToken != "" {
		c.feedToken = data.FeedToken
	}
	c.mu.Unlock()
	return nil
}

// Logout terminates the session upstream.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "logout", map[string]string{"clientcode": c.clientCode}, nil)
}

// QuoteData is one instrument's FULL-mode quote. Prices are paise.
type QuoteData struct {
	Exchange      string
	Token         string
	LTP           int64
	Open          int64
	High          int64
	Low           int64
	Close         int64 // prior close
	LastTradedQty int64
	Volume        int64
	OI            int64
	ExchangeTS    time.Time
}

type quoteResponse struct {
	Fetched []struct {
		Exchange      string  `json:"exchange"`
		Token         string  `json:"symbolToken"`
		LTP           float64 `json:"ltp"`
		Open          float64 `json:"open"`
		High          float64 `json:"high"`
		Low           float64 `json:"low"`
		Close         float64 `json:"close"`
		LastTradeQty  int64   `json:"lastTradeQty"`
		TradeVolume   int64   `json:"tradeVolume"`
		OpenInterest  int64   `json:"opnInterest"`
		ExchFeedTime  string  `json:"exchFeedTime"`
		ExchTradeTime string  `json:"exchTradeTime"`
	} `json:"fetched"`
}

// Quote fetches FULL-mode quotes for tokens grouped by exchange segment,
// e.g. {"NSE": ["99926000"]}.
func (c *Client) Quote(ctx context.Context, exchangeTokens map[string][]string) ([]QuoteData, error) {
	var resp quoteResponse
	err := c.post(ctx, "quote", map[string]any{
		"mode":           "FULL",
		"exchangeTokens": exchangeTokens,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]QuoteData, 0, len(resp.Fetched))
	for _, f := range resp.Fetched {
		q := QuoteData{
			Exchange:      f.Exchange,
			Token:         f.Token,
			LTP:           toPaise(f.LTP),
			Open:          toPaise(f.Open),
			High:          toPaise(f.High),
			Low:           toPaise(f.Low),
			Close:         toPaise(f.Close),
			LastTradedQty: f.LastTradeQty,
			Volume:        f.TradeVolume,
			OI:            f.OpenInterest,
		}
		if ts, err := time.ParseInLocation("02-Jan-2006 15:04:05", f.ExchTradeTime, istZone); err == nil {
			q.ExchangeTS = ts
		} else {
			q.ExchangeTS = time.Now().In(istZone)
		}
		out = append(out, q)
	}
	return out, nil
}

// CandleRequest selects a historical candle window. Interval uses the
// upstream names: ONE_MINUTE, FIVE_MINUTE, ONE_DAY, ...
type CandleRequest struct {
	Exchange string
	Token    string
	Interval string
	From     time.Time
	To       time.Time
}

// CandleRow is one historical bar. Prices are paise.
type CandleRow struct {
	TS     time.Time
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

// CandleData fetches historical candles, oldest first.
func (c *Client) CandleData(ctx context.Context, req CandleRequest) ([]CandleRow, error) {
	var rows [][]any
	err := c.post(ctx, "candle", map[string]string{
		"exchange":    req.Exchange,
		"symboltoken": req.Token,
		"interval":    req.Interval,
		"fromdate":    req.From.In(istZone).Format("2006-01-02 15:04"),
		"todate":      req.To.In(istZone).Format("2006-01-02 15:04"),
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]CandleRow, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		tsStr, _ := r[0].(string)
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			continue
		}
		out = append(out, CandleRow{
			TS:     ts,
			Open:   toPaise(num(r[1])),
			High:   toPaise(num(r[2])),
			Low:    toPaise(num(r[3])),
			Close:  toPaise(num(r[4])),
			Volume: int64(num(r[5])),
		})
	}
	return out, nil
}

// PCRRow is one instrument's put-call ratio as reported by the broker.
type PCRRow struct {
	PCR           float64 `json:"pcr"`
	TradingSymbol string  `json:"tradingSymbol"`
}

// PutCallRatio reads the broker-computed PCR across index derivatives.
func (c *Client) PutCallRatio(ctx context.Context) ([]PCRRow, error) {
	var rows []PCRRow
	if err := c.get(ctx, "pcr", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	h.Set("X-ClientLocalIP", c.localIP)
	h.Set("X-ClientPublicIP", c.localIP)
	h.Set("X-MACAddress", c.macAddr)
	h.Set("X-PrivateKey", c.apiKey)
	if tok := c.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

func (c *Client) post(ctx context.Context, route string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, route, bytes.NewReader(b), out)
}

func (c *Client) get(ctx context.Context, route string, out any) error {
	return c.do(ctx, http.MethodGet, route, nil, out)
}

func (c *Client) do(ctx context.Context, method, route string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.rootURL+routes[route], body)
	if err != nil {
		return err
	}
	req.Header = c.headers()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartconnect: %s: read body: %w", route, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.fireExpiry()
		return fmt.Errorf("smartconnect: %s: http %d: %w", route, resp.StatusCode, ErrTokenRejected)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("smartconnect: %s: bad response: %w", route, err)
	}
	if env.ErrorType == "TokenException" || isAuthCode(env.ErrorCode) {
		c.fireExpiry()
		return fmt.Errorf("smartconnect: %s: %s: %w", route, env.Message, ErrTokenRejected)
	}
	if !env.Status {
		return &APIError{Route: route, Code: env.ErrorCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("smartconnect: %s: decode data: %w", route, err)
		}
	}
	return nil
}

func (c *Client) fireExpiry() {
	if c.SessionExpiryHook != nil {
		c.SessionExpiryHook()
	}
}

// Upstream auth error codes: expired/invalid token and forced logout.
func isAuthCode(code string) bool {
	switch code {
	case "AG8001", "AG8002", "AG8003", "AB8050", "AB8051":
		return true
	}
	return false
}

var istZone = time.FixedZone("IST", 5*3600+30*60)

func toPaise(rupees float64) int64 {
	if rupees >= 0 {
		return int64(rupees*100 + 0.5)
	}
	return int64(rupees*100 - 0.5)
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func macAddr() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}
