package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/xeptore/tdl/httputil"
	"github.com/xeptore/tdl/redact"
)

// StreamingTokenExpiresIn is assumed for caller supplied streaming tokens, the service does not report it.
const StreamingTokenExpiresIn = 14400

var ErrUnauthorized = errors.New("unauthorized")

// Error is returned for any failure to obtain API credentials.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "authenticate: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Credentials struct {
	AccessToken string
	TokenType   string
	// ExpiresIn is the number of seconds the token is valid for, counted from IssuedAt.
	ExpiresIn int
	IssuedAt  time.Time
}

func (c Credentials) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

func (c Credentials) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}

func (c Credentials) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("access_token", redact.String(c.AccessToken)).
		Str("token_type", c.TokenType).
		Int("expires_in", c.ExpiresIn).
		Time("expires_at", c.ExpiresAt())
}

// Session holds the API scoped and the streaming scoped credentials.
// It is never refreshed: callers authenticate again to rotate tokens.
type Session struct {
	API       Credentials
	Streaming Credentials
}

func (s *Session) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("api", s.API.ToDict()).
		Dict("streaming", s.Streaming.ToDict())
}

// Authenticate exchanges the API client id and secret for API credentials using the client credentials grant,
// and wraps streamingToken as the streaming credentials.
func Authenticate(
	ctx context.Context,
	logger zerolog.Logger,
	client *http.Client,
	tokenURL string,
	clientID string,
	clientSecret string,
	streamingToken string,
) (*Session, error) {
	creds, err := requestToken(ctx, logger, client, tokenURL, clientID, clientSecret)
	if nil != err {
		return nil, &Error{Err: err}
	}

	return &Session{
		API: *creds,
		Streaming: Credentials{
			AccessToken: streamingToken,
			TokenType:   "Bearer",
			ExpiresIn:   StreamingTokenExpiresIn,
			IssuedAt:    time.Now(),
		},
	}, nil
}

func requestToken(
	ctx context.Context,
	logger zerolog.Logger,
	client *http.Client,
	tokenURL string,
	clientID string,
	clientSecret string,
) (creds *Credentials, err error) {
	reqParams := make(url.Values, 1)
	reqParams.Add("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBufferString(reqParams.Encode()))
	if nil != err {
		logger.Error().Err(err).Msg("Failed to create token request")
		return nil, fmt.Errorf("create token request: %v", err)
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json")
	req.Header.Add(
		"Authorization",
		"Basic "+base64.StdEncoding.Strict().EncodeToString([]byte(clientID+":"+clientSecret)),
	)

	issuedAt := time.Now()
	resp, err := client.Do(req)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to issue token request")
		return nil, fmt.Errorf("issue token request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			logger.Error().Err(closeErr).Msg("Failed to close token response body")
			err = errors.Join(err, fmt.Errorf("close token response body: %v", closeErr))
		}
	}()

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		logger.Error().Err(err).Int("status_code", resp.StatusCode).Msg("Failed to read token response body")
		return nil, fmt.Errorf("read token response body: %v", err)
	}

	switch code := resp.StatusCode; {
	case httputil.IsSuccess(code):
	case code == http.StatusUnauthorized || code == http.StatusBadRequest:
		logger.Error().Int("status_code", code).Bytes("response_body", respBytes).Msg("Client credentials were rejected")
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, &httputil.StatusError{StatusCode: code, Body: respBytes})
	default:
		logger.Error().Int("status_code", code).Bytes("response_body", respBytes).Msg("Unexpected token response status code")
		return nil, &httputil.StatusError{StatusCode: code, Body: respBytes}
	}

	var respBody struct {
		AccessToken string `json:"access_token"` //nolint:gosec
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		logger.Error().Err(err).Bytes("response_body", respBytes).Msg("Failed to decode token response body")
		return nil, fmt.Errorf("decode token response body: %w", err)
	}

	if respBody.AccessToken == "" {
		logger.Error().Bytes("response_body", respBytes).Msg("Token response has no access token")
		return nil, errors.New("token response has no access token")
	}

	return &Credentials{
		AccessToken: respBody.AccessToken,
		TokenType:   respBody.TokenType,
		ExpiresIn:   respBody.ExpiresIn,
		IssuedAt:    issuedAt,
	}, nil
}
