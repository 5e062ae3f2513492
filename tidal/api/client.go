package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/xeptore/tdl/config"
	"github.com/xeptore/tdl/httputil"
	"github.com/xeptore/tdl/tidal/auth"
)

const (
	AudioQuality      = "HI_RES_LOSSLESS"
	PlaybackMode      = "STREAM"
	AssetPresentation = "FULL"
)

var ErrTooManyRequests = errors.New("too many requests")

// Client talks to the metadata API with the API credentials and to the playback API with the streaming credentials.
type Client struct {
	http    *http.Client
	session *auth.Session
	limiter *rate.Limiter
	conf    config.Tidal
}

func NewClient(httpClient *http.Client, session *auth.Session, limiter *rate.Limiter, conf config.Tidal) *Client {
	return &Client{
		http:    httpClient,
		session: session,
		limiter: limiter,
		conf:    conf,
	}
}

// NewHTTPClient returns a client dialing through the configured SOCKS5 proxy, if any.
// Timeouts are applied per request.
func NewHTTPClient(conf config.Proxy) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert

	if conf.Enabled() {
		var proxyAuth *proxy.Auth
		if len(conf.Username) > 0 && len(conf.Password) > 0 {
			proxyAuth = &proxy.Auth{
				User:     conf.Username,
				Password: conf.Password,
			}
		}

		sock5, err := proxy.SOCKS5("tcp", net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)), proxyAuth, proxy.Direct)
		if nil != err {
			return nil, fmt.Errorf("create socks5 dialer: %v", err)
		}

		dc, ok := sock5.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("failed to cast proxy to ContextDialer")
		}
		transport.Proxy = nil
		transport.DialContext = dc.DialContext
	}

	return &http.Client{Transport: transport}, nil //nolint:exhaustruct
}

// PathSegment escapes an opaque identifier so it always stays a single URL path segment.
func PathSegment(s string) string {
	escaped := url.PathEscape(s)
	if escaped == "." || escaped == ".." {
		return strings.ReplaceAll(escaped, ".", "%2E")
	}

	return escaped
}

func joinURL(base string, segments ...string) (*url.URL, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = PathSegment(s)
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/"))
	if nil != err {
		return nil, fmt.Errorf("parse request URL: %v", err)
	}

	return u, nil
}

// Get issues a GET against the metadata API for the path made of segments.
// The country code is always sent, query params are added to it.
func (c *Client) Get(ctx context.Context, logger zerolog.Logger, segments []string, query url.Values) ([]byte, error) {
	reqURL, err := joinURL(c.conf.APIURL, segments...)
	if nil != err {
		logger.Error().Err(err).Strs("segments", segments).Msg("Failed to build API request URL")
		return nil, err
	}

	reqParams := make(url.Values, len(query)+1)
	reqParams.Set("countryCode", c.conf.CountryCode)
	for k, vs := range query {
		for _, v := range vs {
			reqParams.Add(k, v)
		}
	}
	reqURL.RawQuery = reqParams.Encode()

	headers := http.Header{}
	headers.Set("Accept", "application/vnd.api+json")

	return c.do(ctx, logger, reqURL, c.session.API, headers, time.Duration(c.conf.Timeouts.API)*time.Second)
}

// PlaybackInfo fetches the playback info of a track at the highest lossless quality.
func (c *Client) PlaybackInfo(ctx context.Context, logger zerolog.Logger, trackID string) ([]byte, error) {
	reqURL, err := joinURL(c.conf.PlaybackURL, "tracks", trackID, "playbackinfo")
	if nil != err {
		logger.Error().Err(err).Msg("Failed to build playback info request URL")
		return nil, err
	}

	reqParams := make(url.Values, 3)
	reqParams.Add("audioquality", AudioQuality)
	reqParams.Add("playbackmode", PlaybackMode)
	reqParams.Add("assetpresentation", AssetPresentation)
	reqURL.RawQuery = reqParams.Encode()

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	// Requests without a recognizable user agent are rejected upstream.
	headers.Set("User-Agent", c.conf.UserAgent)

	return c.do(ctx, logger, reqURL, c.session.Streaming, headers, time.Duration(c.conf.Timeouts.Playback)*time.Second)
}

func (c *Client) do(
	ctx context.Context,
	logger zerolog.Logger,
	reqURL *url.URL,
	creds auth.Credentials,
	headers http.Header,
	timeout time.Duration,
) (b []byte, err error) {
	logger = logger.With().Str("url", reqURL.Redacted()).Logger()

	if creds.Expired(time.Now()) {
		logger.Warn().Time("expired_at", creds.ExpiresAt()).Msg("Credentials have expired, upstream will most likely reject the request")
	}

	if err := c.limiter.Wait(ctx); nil != err {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to create request")
		return nil, fmt.Errorf("create request: %v", err)
	}
	req.Header = headers
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.http.Do(req)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to send request")
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close response body")
			err = errors.Join(err, fmt.Errorf("close response body: %v", closeErr))
		}
	}()

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		logger.Error().Err(err).Int("status_code", resp.StatusCode).Msg("Failed to read response body")
		return nil, fmt.Errorf("read %d response body: %w", resp.StatusCode, err)
	}

	switch code := resp.StatusCode; {
	case httputil.IsSuccess(code):
		return respBytes, nil
	case code == http.StatusUnauthorized:
		statusErr := &httputil.StatusError{StatusCode: code, Body: respBytes}
		if ok, err := httputil.IsTokenExpiredResponse(respBytes); nil == err && ok {
			logger.Error().Msg("Access token has expired")
			return nil, fmt.Errorf("%w: token expired: %w", auth.ErrUnauthorized, statusErr)
		}

		if ok, err := httputil.IsTokenInvalidResponse(respBytes); nil == err && ok {
			logger.Error().Msg("Access token is invalid")
			return nil, fmt.Errorf("%w: token invalid: %w", auth.ErrUnauthorized, statusErr)
		}

		logger.Error().Bytes("response_body", respBytes).Msg("Unexpected 401 response")

		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthorized, statusErr)
	case code == http.StatusTooManyRequests:
		logger.Error().Str("retry_after", resp.Header.Get("Retry-After")).Msg("Rate limited by upstream")
		return nil, fmt.Errorf("%w: %w", ErrTooManyRequests, &httputil.StatusError{StatusCode: code, Body: respBytes})
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", respBytes).Msg("Unexpected response status code")
		return nil, &httputil.StatusError{StatusCode: code, Body: respBytes}
	}
}
