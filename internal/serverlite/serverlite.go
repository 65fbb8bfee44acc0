// Package serverlite is an in-memory content API used by end-to-end tests and
// local runs of contentctl. It serves the token, revoke, events and long-poll
// endpoints with just enough fidelity to drive a TokenSession and an EventFeed.
package serverlite

import (
	"context"
	"crypto/rsa"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/constants"
)

// Config describes the credentials the server accepts.
type Config struct {
	ClientID     string
	ClientSecret string
	// PublicKey verifies grant assertions. Assertions are accepted unverified when nil.
	PublicKey *rsa.PublicKey
	// TokenTTL is the lifetime of issued access tokens. Defaults to one hour.
	TokenTTL time.Duration
	// LongPollTimeout bounds one realtime wait before the server answers "reconnect".
	LongPollTimeout time.Duration
	// LongPollMaxRetries is advertised in the realtime_server entry.
	LongPollMaxRetries int
}

// Server is a lightweight content API.
type Server struct {
	HttpServer *http.Server
	cfg        Config
	router     *gin.Engine
	now        func() time.Time

	mu      sync.Mutex
	baseURL string
	tokens  map[string]issuedToken
	grants  int
	revoked []string
	events  []models.Event
	changed chan struct{}
}

// NewServer creates and configures a new server.
func NewServer(cfg Config) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.LongPollTimeout <= 0 {
		cfg.LongPollTimeout = 10 * time.Second
	}
	if cfg.LongPollMaxRetries <= 0 {
		cfg.LongPollMaxRetries = 10
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{
		cfg:     cfg,
		router:  router,
		now:     time.Now,
		tokens:  make(map[string]issuedToken),
		changed: make(chan struct{}),
	}

	router.GET("/health", s.healthCheck)
	router.POST("/oauth2/token", s.issueToken)
	router.POST("/oauth2/revoke", s.revokeToken)
	api := router.Group("/2.0", s.requireToken)
	api.OPTIONS("/events", s.realtimeServers)
	api.GET("/events", s.listEvents)
	router.GET("/subscribe", s.longPoll)

	s.HttpServer = &http.Server{Handler: router}
	return s
}

// Handler exposes the router, e.g. for httptest.NewServer. Call SetBaseURL
// afterwards so discovery advertises the right long-poll address.
func (s *Server) Handler() http.Handler { return s.router }

// SetBaseURL records the scheme and host clients reach the server on.
func (s *Server) SetBaseURL(u string) {
	s.mu.Lock()
	s.baseURL = u
	s.mu.Unlock()
}

// Start listens on addr and serves in a goroutine. It returns the base URL.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	base := "http://" + ln.Addr().String()
	s.SetBaseURL(base)
	go func() {
		if err := s.HttpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return base, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.HttpServer.Shutdown(ctx)
}

// Publish appends events to the stream and wakes every pending long-poll.
func (s *Server) Publish(events ...models.Event) {
	s.mu.Lock()
	s.events = append(s.events, events...)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Grants returns the number of successful JWT grants served.
func (s *Server) Grants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants
}

// Revoked returns the live access tokens revoked so far, oldest first.
func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// ExpireTokens invalidates every issued access token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	s.tokens = make(map[string]issuedToken)
	s.mu.Unlock()
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) realtimeServers(c *gin.Context) {
	s.mu.Lock()
	base := s.baseURL
	s.mu.Unlock()
	if base == "" {
		base = "http://" + c.Request.Host
	}
	c.JSON(http.StatusOK, gin.H{
		"chunk_size": 1,
		"entries": []gin.H{{
			"type":          constants.RealtimeServerType,
			"url":           base + "/subscribe?channel=contentsdk",
			"ttl":           "10",
			"max_retries":   strconv.Itoa(s.cfg.LongPollMaxRetries),
			"retry_timeout": int(s.cfg.LongPollTimeout/time.Second) + 5,
		}},
	})
}

// listEvents serves GET /events. Positions are offsets into the event log.
func (s *Server) listEvents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.events)
	raw := c.Query("stream_position")
	if raw == constants.StreamPositionNow {
		c.JSON(http.StatusOK, gin.H{
			"chunk_size":           0,
			"next_stream_position": strconv.Itoa(total),
			"entries":              []models.Event{},
		})
		return
	}
	pos, err := parsePosition(raw, total)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	end := total
	if limit > 0 && pos+limit < end {
		end = pos + limit
	}
	entries := append([]models.Event{}, s.events[pos:end]...)
	c.JSON(http.StatusOK, gin.H{
		"chunk_size":           len(entries),
		"next_stream_position": strconv.Itoa(end),
		"entries":              entries,
	})
}

// longPoll answers new_change as soon as events exist past stream_position,
// and reconnect once LongPollTimeout passes without any.
func (s *Server) longPoll(c *gin.Context) {
	timer := time.NewTimer(s.cfg.LongPollTimeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		pos, err := parsePosition(c.Query("stream_position"), len(s.events))
		ready := err == nil && pos < len(s.events)
		changed := s.changed
		s.mu.Unlock()

		if err != nil {
			c.JSON(http.StatusOK, gin.H{"message": "invalid_position"})
			return
		}
		if ready {
			c.JSON(http.StatusOK, gin.H{"message": string(constants.SignalNewChange)})
			return
		}
		select {
		case <-changed:
		case <-timer.C:
			c.JSON(http.StatusOK, gin.H{"message": string(constants.SignalReconnect)})
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func parsePosition(raw string, total int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	pos, err := strconv.Atoi(raw)
	if err != nil || pos < 0 {
		return 0, &positionError{raw: raw}
	}
	if pos > total {
		pos = total
	}
	return pos, nil
}

type positionError struct{ raw string }

func (e *positionError) Error() string { return "invalid stream_position " + strconv.Quote(e.raw) }
