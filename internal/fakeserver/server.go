// Package fakeserver is an in-process implementation of the credential
// service used by tests and by `skapctl serve`. It keeps everything in
// memory and verifies signatures and envelopes the way the real service is
// expected to.
package fakeserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/api"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/privacylog"
)

// ChallengeSize is the length of an issued challenge.
const ChallengeSize = 32

type user struct {
	signaturePublicKey []byte
	kemPublicKey       []byte
	challenge          []byte
	sessionSecret      []byte
	records            map[string]crypto.Envelope
	order              []string
	incoming           []api.SharedRecord
}

// Server holds the service state. It is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	users    map[string]*user
	tokens   map[string]string
	failures map[string][]int
	nextID   int

	requests atomic.Int64
	logger   *slog.Logger
	recorder metrics.Recorder
	exporter http.Handler
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = privacylog.Wrap(l)
		}
	}
}

// WithRecorder records one operation per handled request on r.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.exporter = h }
}

var ginMode sync.Once

// New returns an empty server.
func New(opts ...Option) *Server {
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	s := &Server{
		users:    make(map[string]*user),
		tokens:   make(map[string]string),
		failures: make(map[string][]int),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(s.recovery(), s.logging())
	if s.recorder != nil {
		router.Use(metrics.HTTPMiddleware(s.recorder))
	}
	if s.exporter != nil {
		router.GET("/metrics", gin.WrapH(s.exporter))
	}
	router.Use(s.count(), s.inject())

	router.GET("/challenge/:uid", s.handleChallenge)
	router.POST("/verify/:uid", s.handleVerify)

	authed := router.Group("/", s.authenticate())
	authed.GET("/sync/:uid", s.handleSync)
	authed.POST("/create_pass/:uid", s.handleCreate)
	authed.POST("/update_pass/:uid/:id", s.handleUpdate)
	authed.POST("/delete_pass/:uid/:id", s.handleDelete)
	authed.GET("/send_all/:uid", s.handleSendAll)
	authed.GET("/public_key/:uid", s.handlePublicKey)
	authed.POST("/share_pass/:uid/:id/:recipient", s.handleShare)
	authed.POST("/accept_share/:uid/:id", s.handleShareStatus(crypto.ShareAccepted))
	authed.POST("/reject_share/:uid/:id", s.handleShareStatus(crypto.ShareRejected))

	s.engine = router
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Register adds a user with its public keys.
func (s *Server) Register(uid string, signaturePublicKey, kemPublicKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[uid] = &user{
		signaturePublicKey: append([]byte(nil), signaturePublicKey...),
		kemPublicKey:       append([]byte(nil), kemPublicKey...),
		records:            make(map[string]crypto.Envelope),
	}
}

// Requests reports how many requests reached the server.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// FailNext makes the next request on route answer with status. route is
// the first path segment, e.g. "sync". Calls queue in order.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], status)
}

// RevokeTokens invalidates every issued session token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tokens)
}

// RecordCount reports how many owned records uid has.
func (s *Server) RecordCount(uid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[uid]; ok {
		return len(u.order)
	}
	return 0
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting fake server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down fake server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", slog.Any("error", err), slog.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route(c.Request.URL.Path)),
			slog.String("uid", c.Param("uid")),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.requests.Add(1)
		c.Next()
	}
}

func (s *Server) inject() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := route(c.Request.URL.Path)
		s.mu.Lock()
		queue := s.failures[r]
		var status int
		if len(queue) > 0 {
			status, s.failures[r] = queue[0], queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"error": "injected failure"})
			return
		}
		c.Next()
	}
}

func route(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// authenticate requires a bearer token issued to the uid in the path. The
// public key lookup accepts any valid token.
func (s *Server) authenticate() gin.HandlerFunc {
	const bearerPrefix = "bearer "
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		s.mu.Lock()
		owner, ok := s.tokens[header[len(bearerPrefix):]]
		s.mu.Unlock()

		if !ok || (owner != c.Param("uid") && route(c.Request.URL.Path) != "public_key") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		c.Next()
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// lookup returns the user for uid. The caller holds s.mu.
func (s *Server) lookup(c *gin.Context, uid string) (*user, bool) {
	u, ok := s.users[uid]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
	}
	return u, ok
}

func (s *Server) handleChallenge(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	challenge := make([]byte, ChallengeSize)
	_, _ = rand.Read(challenge)
	u.challenge = challenge
	c.JSON(http.StatusOK, codec.Bytes(challenge))
}

func (s *Server) handleVerify(c *gin.Context) {
	var sig codec.Bytes
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed signature"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := c.Param("uid")
	u, ok := s.lookup(c, uid)
	if !ok {
		return
	}
	challenge := u.challenge
	u.challenge = nil
	if challenge == nil || !crypto.Verify(u.signaturePublicKey, challenge, sig) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature rejected"})
		return
	}

	token := randomHex(16)
	s.tokens[token] = uid
	c.String(http.StatusOK, token)
}

func (s *Server) handleSync(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	ct, ss, err := crypto.Encapsulate(u.kemPublicKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	u.sessionSecret = ss
	c.JSON(http.StatusOK, codec.Bytes(ct))
}

// unwrap peels the session layer off an uploaded envelope. It writes the
// error response itself. The caller holds s.mu.
func (s *Server) unwrap(c *gin.Context, u *user) (*crypto.Envelope, bool) {
	var env crypto.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope"})
		return nil, false
	}
	if u.sessionSecret == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return nil, false
	}
	inner, err := crypto.UnwrapSession(&env, u.sessionSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "envelope rejected"})
		return nil, false
	}
	return inner, true
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Server) handleCreate(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	inner, ok := s.unwrap(c, u)
	if !ok {
		return
	}
	id := s.newID()
	u.records[id] = *inner
	u.order = append(u.order, id)
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) handleUpdate(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	id := c.Param("id")
	if _, exists := u.records[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown record"})
		return
	}
	inner, ok := s.unwrap(c, u)
	if !ok {
		return
	}
	u.records[id] = *inner
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	id := c.Param("id")
	if _, exists := u.records[id]; !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown record"})
		return
	}
	delete(u.records, id)
	for i, v := range u.order {
		if v == id {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSendAll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	if u.sessionSecret == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}

	resp := api.ListResponse{
		Passwords: make([]api.OwnedRecord, 0, len(u.order)),
		Shared:    append([]api.SharedRecord{}, u.incoming...),
	}
	for _, id := range u.order {
		inner := u.records[id]
		env, err := crypto.WrapSession(&inner, u.sessionSecret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.Passwords = append(resp.Passwords, api.OwnedRecord{Envelope: *env, ID: id})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePublicKey(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(c, c.Param("uid"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, codec.Bytes(u.kemPublicKey))
}

func (s *Server) handleShare(c *gin.Context) {
	var shared crypto.SharedEnvelope
	if err := c.ShouldBindJSON(&shared); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed shared envelope"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid := c.Param("uid")
	if _, ok := s.lookup(c, uid); !ok {
		return
	}
	recipient, ok := s.lookup(c, c.Param("recipient"))
	if !ok {
		return
	}
	shared.Status = crypto.SharePending
	recipient.incoming = append(recipient.incoming, api.SharedRecord{
		Shared: shared,
		Owner:  uid,
		ID:     s.newID(),
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleShareStatus(status crypto.ShareStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()

		u, ok := s.lookup(c, c.Param("uid"))
		if !ok {
			return
		}
		id := c.Param("id")
		for i := range u.incoming {
			if u.incoming[i].ID == id {
				u.incoming[i].Shared.Status = status
				c.Status(http.StatusNoContent)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown share"})
	}
}
