// Package service provides the application services that drive the event feed.
package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// LongPollClient talks to the events endpoint and to the realtime long-poll server it advertises.
// It is stateless; retry counters live in the EventFeed that owns it.
type LongPollClient struct {
	http    domainService.HTTPClient
	baseURL string
	logger  logger.Logger
	metrics domainService.Metrics
	tracer  trace.Tracer
}

// NewLongPollClient creates a client for the API rooted at baseURL.
func NewLongPollClient(http domainService.HTTPClient, baseURL string, log logger.Logger, metrics domainService.Metrics) *LongPollClient {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if metrics == nil {
		metrics = domainService.NewNoopMetrics()
	}
	return &LongPollClient{
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.WithComponent("long_poll_client"),
		metrics: metrics,
		tracer:  otel.Tracer("github.com/turtacn/contentsdk/feed"),
	}
}

// EventsURL returns the URL of the events endpoint.
func (c *LongPollClient) EventsURL() string {
	return c.baseURL + "/events"
}

// Discover asks the API for fresh long-poll coordinates.
func (c *LongPollClient) Discover(ctx context.Context) (*models.LongPollInfo, error) {
	ctx, span := c.tracer.Start(ctx, "LongPollClient.Discover")
	defer span.End()

	resp, err := c.http.Options(ctx, c.EventsURL(), domainService.RequestOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var servers models.RealtimeServers
	if err := json.Unmarshal(resp.Body, &servers); err != nil {
		return nil, errors.ErrMalformedResponse("long-poll discovery body is not JSON").WithCause(err)
	}
	info, ok := servers.Realtime()
	if !ok {
		return nil, errors.ErrMalformedResponse("long-poll discovery returned no realtime_server entry")
	}

	c.logger.Debug(ctx, "Discovered long-poll endpoint",
		logger.Int("max_retries", info.MaxRetries),
		logger.Duration("retry_timeout", info.RetryTimeout),
	)
	return info, nil
}

// Wait issues one long-poll request against info. stream_position is merged into the
// URL's own query string, which usually already carries the channel parameters.
// A body that cannot be decoded yields SignalOther.
func (c *LongPollClient) Wait(ctx context.Context, info *models.LongPollInfo, position models.StreamPosition) (constants.LongPollSignal, error) {
	ctx, span := c.tracer.Start(ctx, "LongPollClient.Wait")
	defer span.End()

	target, err := withQuery(info.URL, url.Values{"stream_position": {position.String()}})
	if err != nil {
		return constants.SignalOther, errors.ErrMalformedResponse("long-poll url is invalid").WithCause(err)
	}

	resp, err := c.http.Get(ctx, target, domainService.RequestOptions{Timeout: info.RetryTimeout})
	if err != nil {
		span.RecordError(err)
		return constants.SignalOther, err
	}

	signal := models.ParseLongPollSignal(resp.Body)
	span.SetAttributes(attribute.String("long_poll.signal", string(signal)))
	c.metrics.RecordLongPollSignal(string(signal))
	return signal, nil
}

// FetchEvents reads up to limit events starting at position.
func (c *LongPollClient) FetchEvents(ctx context.Context, position models.StreamPosition, limit int) (*models.EventPage, error) {
	ctx, span := c.tracer.Start(ctx, "LongPollClient.FetchEvents", trace.WithAttributes(
		attribute.Int("events.limit", limit),
	))
	defer span.End()

	query := url.Values{"stream_position": {position.String()}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.http.Get(ctx, c.EventsURL(), domainService.RequestOptions{Query: query})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var page models.EventPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, errors.ErrMalformedResponse("event page body is not valid JSON").WithCause(err)
	}
	span.SetAttributes(attribute.Int("events.count", len(page.Entries)))
	return &page, nil
}

// withQuery sets the given parameters on rawURL, keeping every other parameter it already has.
func withQuery(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
