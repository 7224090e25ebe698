// Package receiptstore is a client of the object store that keeps deposit receipts.
package receiptstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type Service struct {
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
	breaker    *gobreaker.CircuitBreaker
	settings   gobreaker.Settings
	failures   uint32
}

func (s *Service) LoggerComponent() string {
	return "ReceiptStore.Service"
}

func NewService(apiURL string, opts ...ServiceOption) (*Service, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid receipt store url %q", apiURL)
	}

	s := &Service{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
		settings: gobreaker.Settings{
			Name:        "receiptstore",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		},
		failures: 5,
	}

	for _, o := range opts {
		o(s)
	}

	s.logger = s.logger.With().Str("component", s.LoggerComponent()).Logger()

	s.settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= s.failures
	}
	s.settings.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
	}
	s.settings.IsSuccessful = func(err error) bool {
		// client errors say nothing about the health of the store
		var re *RemoteError
		return err == nil || (errors.As(err, &re) && re.StatusCode < 500)
	}
	s.breaker = gobreaker.NewCircuitBreaker(s.settings)

	return s, nil
}

type ServiceOption func(s *Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = c
	}
}

// WithBreaker tunes the circuit breaker: it opens after the given number of consecutive failures,
// stays open for timeout and then lets maxRequests probes through.
func WithBreaker(maxRequests uint32, interval, timeout time.Duration, failures uint32) ServiceOption {
	return func(s *Service) {
		if maxRequests > 0 {
			s.settings.MaxRequests = maxRequests
		}
		if interval > 0 {
			s.settings.Interval = interval
		}
		if timeout > 0 {
			s.settings.Timeout = timeout
		}
		if failures > 0 {
			s.failures = failures
		}
	}
}

// Put uploads an object under key and returns the URL it is served from
func (s *Service) Put(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error) {
	l := s.logger.With().
		Str("method", "Put").
		Str("key", key).
		Logger()
	ctx = l.WithContext(ctx)

	out := &PutObjectResponse{}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.call(ctx, http.MethodPut, "/objects/"+key, contentType, body, size, out)
	})
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("receipt store returned no url")
	}

	l.Debug().Str("url", out.URL).Msg("Put success")

	return out.URL, nil
}

type RemoteError struct {
	ResponseBody string
	StatusCode   int
}

func NewRemoteError(responseBody string, statusCode int) *RemoteError {
	return &RemoteError{ResponseBody: responseBody, StatusCode: statusCode}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("receipt store responded %d: %s", e.StatusCode, e.ResponseBody)
}

func (s *Service) call(
	ctx context.Context,
	method string,
	endpoint string,
	contentType string,
	body io.Reader,
	size int64,
	out interface{},
) error {
	fullURL := s.apiURL + endpoint
	l := zerolog.Ctx(ctx).With().
		Str("http_method", method).
		Str("url", fullURL).
		Logger()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	l.Debug().Int64("size", size).Msg("Doing request")

	res, err := s.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).Msg("Call failed")
		return errors.Wrap(err, "do request")
	}

	if res.StatusCode >= 400 {
		resBody := readString(res.Body)
		l.Error().
			Int("http_status", res.StatusCode).
			Str("http_body", resBody).
			Msg("Service responded with error")
		return NewRemoteError(resBody, res.StatusCode)
	}

	return errors.Wrap(readJSON(res.Body, out), "body read")
}
