package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/owlcms/competition-hub/internal/auth"
	configpkg "github.com/owlcms/competition-hub/internal/config"
	"github.com/owlcms/competition-hub/internal/frame"
	"github.com/owlcms/competition-hub/internal/hub"
	"github.com/owlcms/competition-hub/internal/logging"
	"github.com/owlcms/competition-hub/internal/metrics"
	"github.com/owlcms/competition-hub/internal/precondition"
	"github.com/owlcms/competition-hub/internal/telemetry"
	"github.com/owlcms/competition-hub/internal/version"
)

// Will be configured in main() after parsing flags/env.
var upgrader = websocket.Upgrader{}

const (
	writeWait          = 10 * time.Second // write deadline for outgoing frames
	pongWaitMultiplier = 2                // read deadline = pingInterval * multiplier

	// databaseZipTimeoutCheckInterval is how often the writer goroutine
	// checks the 5s database/database_zip pairing window, piggybacking on
	// the same ticker machinery as ping/read-deadline bookkeeping.
	databaseZipTimeoutCheckInterval = 1 * time.Second
)

// Always allow localhost for dev convenience.
var localHosts = map[string]struct{}{
	"127.0.0.1": {},
	"localhost": {},
	"::1":       {},
}

// Connection is the single active producer websocket the hub accepts at any
// given time; a newcomer replaces its predecessor (spec.md §4.K "accept at
// most one producer").
type Connection struct {
	conn          *websocket.Conn
	send          chan []byte
	id            string
	log           *logging.Logger
	authenticated bool
}

// Server owns the hub and the at-most-one producer Connection, and adapts
// the wire transport (frame codec, version gate, auth) into Hub calls.
type Server struct {
	mu      sync.Mutex
	current *Connection

	hub         *hub.Hub
	authKeys    *auth.KeyChecker
	versionGate version.Gate

	pingInterval    time.Duration
	maxPayloadBytes int64

	log     *logging.Logger
	metrics *metrics.Registry
}

// NewServer constructs a Server around an already-wired Hub.
func NewServer(h *hub.Hub, authKeys *auth.KeyChecker, gate version.Gate, pingInterval time.Duration, maxPayloadBytes int64, logger *logging.Logger, metricsReg *metrics.Registry) *Server {
	if logger == nil {
		logger = logging.L()
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = configpkg.DefaultMaxPayloadBytes
	}
	return &Server{
		hub:             h,
		authKeys:        authKeys,
		versionGate:     gate,
		pingInterval:    pingInterval,
		maxPayloadBytes: maxPayloadBytes,
		log:             logger,
		metrics:         metricsReg,
	}
}

// sendToCurrent marshals a hub.Response and enqueues it on the active
// producer connection's writer, or is a silent no-op when none is active.
// This is the callback registered on the Hub via hub.WithRequestResourcesSender,
// inverting what would otherwise be a Hub -> Connection import cycle.
//
// Every send to a Connection's channel, and every close of it, happens while
// holding s.mu and after checking the Connection is still s.current, so a
// reply is never sent on a channel that replace or clear has already closed.
func (s *Server) sendToCurrent(result precondition.PluginResult) {
	data, err := json.Marshal(hub.Response{Status: result.Status, Reason: result.Reason, Missing: result.Missing})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current
	if c == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("dropping requestResources push: connection buffer full")
	}
}

func (s *Server) replace(newConn *Connection) {
	s.mu.Lock()
	old := s.current
	s.current = newConn
	if old != nil {
		close(old.send)
	}
	s.mu.Unlock()
	if old != nil {
		old.log.Info("superseded by a new producer connection")
		_ = old.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
			time.Now().Add(writeWait))
		_ = old.conn.Close()
	}
}

// clear removes c from the active-producer slot if it is still installed
// there, closing its send channel in the same critical section so the
// writer never observes a channel close racing a reply send (see reply).
func (s *Server) clear(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == c {
		s.current = nil
		close(c.send)
	}
}

// --- Origin allowlist helpers ---

func buildOriginChecker(logger *logging.Logger, allowlist []string) func(*http.Request) bool {
	if logger == nil {
		logger = logging.L()
	}
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			logger.Warn("ignoring invalid allowed origin", logging.String("origin", origin), logging.Error(err))
			continue
		}
		key := strings.ToLower(u.Scheme + "://" + u.Host)
		allowed[key] = struct{}{}
	}

	return func(r *http.Request) bool {
		originHeader := r.Header.Get("Origin")
		if originHeader == "" {
			// No Origin usually means a scripted producer, not a browser; permit.
			return true
		}

		originURL, err := url.Parse(originHeader)
		if err != nil || originURL.Host == "" {
			logger.Warn("rejecting request with invalid origin", logging.String("origin", originHeader), logging.Error(err))
			return false
		}

		if _, ok := localHosts[originURL.Hostname()]; ok {
			return true
		}
		if len(allowed) == 0 {
			return true
		}

		key := strings.ToLower(originURL.Scheme + "://" + originURL.Host)
		if _, ok := allowed[key]; ok {
			return true
		}

		logger.Warn("rejecting request from disallowed origin", logging.String("origin", originHeader))
		return false
	}
}

// --- WS handler ---

// updateKeyProbe extracts the updateKey field (if present) from a text
// frame's payload without requiring the hub itself to know about auth.
type updateKeyProbe struct {
	UpdateKey string `json:"updateKey"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx, baseLogger, _ := logging.WithTrace(r.Context(), logging.LoggerFromContext(r.Context()), logging.TraceIDFromContext(r.Context()))
	reqLogger := baseLogger.With(logging.String("remote_addr", r.RemoteAddr))
	ctx = logging.ContextWithLogger(ctx, reqLogger)
	r = r.WithContext(ctx)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		reqLogger.Error("websocket upgrade failed", logging.Error(err))
		return
	}

	c := &Connection{conn: conn, send: make(chan []byte, 64), id: uuid.NewString()}
	c.log = reqLogger.With(logging.String("connection_id", c.id))

	s.replace(c)
	s.hub.FirstConnectionReset()
	s.hub.OnConnect()
	c.log.Info("producer connected")

	if s.maxPayloadBytes > 0 {
		conn.SetReadLimit(s.maxPayloadBytes)
	}

	waitDuration := time.Duration(pongWaitMultiplier) * s.pingInterval
	if err := conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
		c.log.Error("failed to set initial read deadline", logging.Error(err))
		_ = conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	go s.readLoop(c, waitDuration)
	s.writeLoop(c)
}

// readLoop owns decoding and dispatch; it signals the writer to stop by
// closing the connection's send channel rather than a separate done channel,
// so any reply already enqueued (e.g. a 401 before closing) is flushed first.
func (s *Server) readLoop(c *Connection, waitDuration time.Duration) {
	defer func() {
		s.clear(c)
		s.hub.OnDisconnect()
		c.log.Info("producer disconnected")
	}()

	for {
		messageType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.log.Warn("read deadline exceeded", logging.Error(err))
			} else if websocket.IsCloseError(err, websocket.CloseMessageTooBig) || errors.Is(err, websocket.ErrReadLimit) {
				c.log.Warn("closing connection due to oversized payload", logging.Error(err))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected websocket close", logging.Error(err))
			} else {
				c.log.Debug("read error", logging.Error(err))
			}
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
			c.log.Error("failed to extend read deadline", logging.Error(err))
			return
		}

		var resp hub.Response
		var closeAfter bool
		switch messageType {
		case websocket.TextMessage:
			resp, closeAfter = s.handleText(c, msg)
		case websocket.BinaryMessage:
			resp, closeAfter = s.handleBinary(c, msg)
		default:
			continue
		}

		s.reply(c, resp)
		if closeAfter {
			return
		}
	}
}

// handleText decodes, version-gates, and authenticates one text frame before
// dispatching it into the Hub. Returns the response to send and whether the
// connection must be closed afterward (authentication failure).
func (s *Server) handleText(c *Connection, raw []byte) (hub.Response, bool) {
	env, err := frame.DecodeText(raw)
	if err != nil {
		s.observeTransportMalformation(err)
		return hub.Response{Status: 400, Error: "Protocol version check failed", Reason: "invalid_envelope",
			Details: map[string]interface{}{"info": err.Error()}}, false
	}

	if _, err := s.versionGate.Check(env.Version); err != nil {
		s.observeTransportMalformation(err)
		return hub.Response{Status: 400, Error: "Protocol version check failed", Reason: "protocol_version",
			Details: map[string]interface{}{"received": env.Version, "info": err.Error()}}, false
	}

	if s.authKeys.Required() {
		var probe updateKeyProbe
		_ = json.Unmarshal(env.Payload, &probe)
		if !s.authKeys.Check(probe.UpdateKey) {
			c.log.Warn("rejecting frame: updateKey mismatch")
			return hub.Response{Status: 401, Message: "Access not authorized"}, true
		}
	}
	c.authenticated = true

	return s.hub.IngestText(env.Type, env.Payload), false
}

// handleBinary decodes one binary resource frame. Binary frames carry no
// updateKey of their own; they trust whatever auth state the current
// connection already established via a prior text frame.
func (s *Server) handleBinary(c *Connection, raw []byte) (hub.Response, bool) {
	bf, err := frame.DecodeBinary(raw)
	if err != nil {
		s.observeTransportMalformation(err)
		return hub.Response{Status: 400, Error: "malformed binary frame", Reason: "malformed_binary",
			Details: map[string]interface{}{"info": err.Error()}}, false
	}

	if bf.Version != "" {
		if _, err := s.versionGate.Check(bf.Version); err != nil {
			s.observeTransportMalformation(err)
			return hub.Response{Status: 400, Error: "Protocol version check failed", Reason: "protocol_version",
				Details: map[string]interface{}{"received": bf.Version, "info": err.Error()}}, false
		}
	}

	if s.authKeys.Required() && !c.authenticated {
		c.log.Warn("rejecting binary frame: no prior authenticated text frame")
		return hub.Response{Status: 401, Message: "Access not authorized"}, true
	}

	return s.hub.IngestBinary(bf.Type, bf.Payload), false
}

func (s *Server) observeTransportMalformation(err error) {
	if sink := telemetry.Default(); sink != nil {
		sink.CaptureError(err, map[string]string{"component": "frame"})
	}
}

// reply enqueues a response on c's writer, but only while c is still the
// active producer slot: a concurrent replace() may already have closed
// c.send, and sending on a closed channel panics.
func (s *Server) reply(c *Connection, resp hub.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("failed to marshal response envelope", logging.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != c {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("dropping response: connection buffer full")
	}
}

// writeLoop is the connection's sole writer, as gorilla/websocket forbids
// concurrent writes; it owns closing the underlying connection on exit.
func (s *Server) writeLoop(c *Connection) {
	pingTicker := time.NewTicker(s.pingInterval)
	dbZipTicker := time.NewTicker(databaseZipTimeoutCheckInterval)
	defer func() {
		pingTicker.Stop()
		dbZipTicker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("failed to set write deadline", logging.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Error("write error", logging.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				c.log.Warn("ping failure", logging.Error(err))
				return
			}
		case <-dbZipTicker.C:
			if s.hub.CheckDatabaseZipTimeout(time.Now()) {
				c.log.Warn("database_zip pairing window expired; re-requesting")
				s.hub.RequestResources([]string{"database_zip"})
			}
		}
	}
}

func healthzHandler(h *hub.Hub) http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Ready  bool   `json:"ready"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.LoggerFromContext(r.Context()).With(logging.String("handler", "healthz"))
		resp := response{Status: "ok", Ready: h.IsReady()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("encode healthz response failed", logging.Error(err))
		}
	}
}

func buildHandler(s *Server, h *hub.Hub, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", healthzHandler(h))
	return logging.HTTPTraceMiddleware(logger)(mux)
}

// --- main ---

func main() {
	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logging.ReplaceGlobals(logger)

	if _, err := telemetry.Init(cfg.SentryDSN, "production"); err != nil {
		logger.Warn("failed to initialize telemetry sink", logging.Error(err))
	}

	allowlist := cfg.AllowedOrigins
	originLogger := logger.With(logging.String("component", "origin-check"))
	upgrader.CheckOrigin = buildOriginChecker(originLogger, allowlist)
	if len(allowlist) > 0 {
		logger.Info("allowing WebSocket origins", logging.Strings("origins", allowlist))
	} else {
		logger.Info("no allowed origins configured; permitting local and non-browser producers")
	}

	maxPayloadBytes := cfg.MaxPayloadBytes
	if maxPayloadBytes <= 0 {
		logger.Warn("invalid max payload provided; using default", logging.Int64("configured_bytes", maxPayloadBytes), logging.Int64("default_bytes", configpkg.DefaultMaxPayloadBytes))
		maxPayloadBytes = configpkg.DefaultMaxPayloadBytes
	}
	logger.Info("maximum WebSocket payload configured", logging.Int64("bytes", maxPayloadBytes))

	promReg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(promReg)

	authKeys := auth.NewKeyChecker(cfg.UpdateKey)
	if authKeys.Required() {
		logger.Info("updateKey authentication enabled")
	} else {
		logger.Info("updateKey authentication disabled")
	}

	gate := version.NewGate(configpkg.MinimumProtocolVersion)

	var srv *Server
	h := hub.New(
		hub.WithLogger(logger.With(logging.String("component", "hub"))),
		hub.WithMetrics(metricsReg),
		hub.WithRequestResourcesSender(func(result precondition.PluginResult) {
			if srv != nil {
				srv.sendToCurrent(result)
			}
		}),
	)
	h.SetLocalFilesDir(cfg.LocalFilesDir)
	h.SetLocalUrlPrefix(cfg.LocalURLPrefix)

	srv = NewServer(h, authKeys, gate, cfg.PingInterval, maxPayloadBytes, logger.With(logging.String("component", "server")), metricsReg)

	handler := buildHandler(srv, h, logger)
	server := &http.Server{Addr: cfg.Address, Handler: handler}

	if cfg.MetricsEnabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", metrics.Handler(promReg))
			logger.Info("metrics listening", logging.String("address", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil {
				logger.Error("metrics server terminated", logging.Error(err))
			}
		}()
	}

	logger.Info("hub listening", logging.String("address", cfg.Address), logging.Bool("tls", cfg.TLSCertPath != ""))

	if cfg.TLSCertPath != "" {
		if err := server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath); err != nil {
			logger.Fatal("hub server terminated", logging.Error(err))
		}
		return
	}

	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("hub server terminated", logging.Error(err))
	}
}
