package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// StatusError is returned for upstream responses with an unexpected status code.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return "unexpected status code " + strconv.Itoa(e.StatusCode) + " with body: " + string(e.Body)
}

func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

var ErrEmptyBody = errors.New("unexpected empty response body")

// ReadResponseBody reads the whole body. An empty body is an error only for successful responses.
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(respBody) == 0 && IsSuccess(resp.StatusCode) {
		return nil, ErrEmptyBody
	}

	return respBody, nil
}

// upstreamError covers both the legacy API error body and the JSON:API errors document.
type upstreamError struct {
	Status      int    `json:"status"`
	SubStatus   int    `json:"subStatus"`
	UserMessage string `json:"userMessage"`
	Errors      []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func decodeUpstreamError(b []byte) (*upstreamError, error) {
	var body upstreamError
	if err := json.Unmarshal(b, &body); nil != err {
		return nil, fmt.Errorf("failed to decode 401 status code response body: %v", err)
	}

	return &body, nil
}

func IsTokenExpiredResponse(b []byte) (bool, error) {
	body, err := decodeUpstreamError(b)
	if nil != err {
		return false, err
	}

	if body.Status == 401 && body.SubStatus == 11003 {
		return true, nil
	}

	for _, e := range body.Errors {
		if e.Code == "EXPIRED_TOKEN" || e.Code == "TOKEN_EXPIRED" {
			return true, nil
		}
	}

	return false, nil
}

func IsTokenInvalidResponse(b []byte) (bool, error) {
	body, err := decodeUpstreamError(b)
	if nil != err {
		return false, err
	}

	if body.Status == 401 && body.SubStatus == 11002 {
		return true, nil
	}

	for _, e := range body.Errors {
		if e.Code == "UNAUTHORIZED" || e.Code == "INVALID_TOKEN" {
			return true, nil
		}
	}

	return false, nil
}
