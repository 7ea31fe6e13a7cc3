// Package subscription implements the Subscription Manager (spec.md
// §4.3): a per-account singleton owning one persistent websocket, a
// server-side push subscription, reconnect-with-backoff, and a health
// watchdog. Grounded on the teacher's internal/fallback.FallbackService
// for the supervisor-goroutine-with-shutdown-channel shape, and on
// internal/keyshare.WebSocketManager for gorilla/websocket conventions
// (mutex-guarded connection handle, JSON-framed messages).
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/platform"
	"github.com/openclaw/ringcentral-bridge/internal/rcauth"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

const (
	watchdogPeriod    = 30 * time.Second
	watchdogDriftSlop = 10 * time.Second
	inboundStaleAfter = 5 * time.Minute
	ownerIDRetryFloor = 60 * time.Second
)

// EventHandler is invoked once per received notification, on its own
// goroutine, so inbound events progress in parallel (spec.md §5). It must
// not panic; the manager does not recover handler panics.
type EventHandler func(ctx context.Context, accountID string, event rctypes.InboundEvent)

// StatusSink receives a Status snapshot on every change to the liveness
// signals (spec.md §4.9).
type StatusSink func(rctypes.Status)

// Manager is the singleton subscription state for one account, keyed by
// (clientId, server, jwtPrefix) per spec.md §4.3.
type Manager struct {
	account *rcconfig.AccountConfig
	client  *platform.Client
	session *rcauth.Session
	log     *logger.Logger

	onEvent    EventHandler
	statusSink StatusSink

	mu                sync.Mutex
	conn              *websocket.Conn
	subscriptionToken string
	ownerID           string
	ownerResolvedAt   time.Time
	ownerBackoffUntil time.Time
	state             State
	lastConnectAt     time.Time
	lastInboundAt     time.Time
	lastOutboundAt    time.Time
	lastWatchdogTick  time.Time
	isReconnecting    bool
	connectInFlight   chan struct{}

	backoff BackoffState

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Manager. It does not connect until Start is called.
func New(account *rcconfig.AccountConfig, client *platform.Client, session *rcauth.Session, log *logger.Logger, onEvent EventHandler, statusSink StatusSink) *Manager {
	return &Manager{
		account:    account,
		client:     client,
		session:    session,
		log:        log.WithComponent("subscription"),
		onEvent:    onEvent,
		statusSink: statusSink,
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// Start begins the connect/reconnect supervisor loop and the watchdog
// ticker. It returns a cancel handle; calling it (or cancelling ctx)
// begins graceful shutdown (§4.9, §5).
func (m *Manager) Start(ctx context.Context) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go m.superviseLoop(runCtx)
	go m.watchdogLoop(runCtx)

	return func() {
		cancel()
		<-m.done
	}
}

func (m *Manager) superviseLoop(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.cleanup(context.Background())
			return
		default:
		}

		if !m.backoff.AllowedNow() {
			time.Sleep(time.Until(m.backoff.NextAllowedConnectAt))
		}

		err := m.connect(ctx)
		if err == nil {
			m.backoff.Reset()
			m.readLoop(ctx)
		}

		if ctx.Err() != nil {
			m.cleanup(context.Background())
			return
		}

		if isFatalAuthError(err) {
			m.log.Error("subscription manager stopping: fatal authentication error", "error", err)
			m.setState(StateTerminated)
			return
		}

		m.scheduleReconnect(err)

		select {
		case <-ctx.Done():
			m.cleanup(context.Background())
			return
		case <-time.After(m.reconnectDelay()):
		}
	}
}

// reconnectDelay consults the rate-limit gate first, falling back to
// exponential backoff.
func (m *Manager) reconnectDelay() time.Duration {
	if !m.backoff.AllowedNow() {
		return time.Until(m.backoff.NextAllowedConnectAt)
	}
	return m.backoff.NextDelay()
}

func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isReconnecting {
		return
	}
	m.isReconnecting = true
	defer func() { m.isReconnecting = false }()

	if rl, ok := asRateLimit(cause); ok {
		m.backoff.GateRateLimit(rl)
	}

	m.backoff.TotalReconnects++
	m.backoff.LastReconnectAt = time.Now()
	m.setStateLocked(StateBackoff)
	m.emitStatusLocked()
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	if m.connectInFlight != nil {
		wait := m.connectInFlight
		m.mu.Unlock()
		<-wait
		return nil
	}
	m.connectInFlight = make(chan struct{})
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		close(m.connectInFlight)
		m.connectInFlight = nil
		m.mu.Unlock()
	}()

	m.setState(StateConnecting)

	wsURL := m.client.WebSocketURL()
	token, err := m.session.BearerToken(ctx)
	if err != nil {
		return err
	}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + token}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		m.setState(StateError)
		return fmt.Errorf("dial websocket: %w", err)
	}

	var handshake struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := conn.ReadJSON(&handshake); err != nil {
		conn.Close()
		m.setState(StateError)
		return fmt.Errorf("read websocket handshake: %w", err)
	}

	subID, err := m.client.CreateWebSocketSubscription(ctx, handshake.ConnectionID)
	if err != nil {
		conn.Close()
		if isRateLimitErr(err) {
			m.setState(StateBackoff)
			return err
		}
		m.setState(StateError)
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.subscriptionToken = subID
	m.lastConnectAt = time.Now()
	m.mu.Unlock()

	m.resolveOwnerID(ctx)

	m.setState(StateSubscribed)
	return nil
}

// resolveOwnerID implements §4.3: prefer the first DM allow-list entry;
// else GET the current extension; on rate-limit, continue without
// ownerId and back off >=60s before retrying.
func (m *Manager) resolveOwnerID(ctx context.Context) {
	m.mu.Lock()
	already := m.ownerID != ""
	backoffActive := time.Now().Before(m.ownerBackoffUntil)
	m.mu.Unlock()
	if already || backoffActive {
		return
	}

	if len(m.account.DMAllowFrom) > 0 && m.account.DMAllowFrom[0] != "*" {
		m.mu.Lock()
		m.ownerID = m.account.DMAllowFrom[0]
		m.ownerResolvedAt = time.Now()
		m.mu.Unlock()
		return
	}

	id, err := m.client.CurrentExtension(ctx)
	if err != nil {
		if isRateLimitErr(err) {
			m.mu.Lock()
			m.ownerBackoffUntil = time.Now().Add(ownerIDRetryFloor)
			m.mu.Unlock()
		}
		m.log.Warn("owner id resolution failed; self-echo filter degraded", "error", err)
		return
	}

	m.mu.Lock()
	m.ownerID = id
	m.ownerResolvedAt = time.Now()
	m.mu.Unlock()
}

// OwnerID returns the resolved ownerId, or "" if not yet known.
func (m *Manager) OwnerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownerID
}

func (m *Manager) readLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}

		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			m.log.Debug("websocket read ended", "error", err)
			return
		}

		event, ok := parseEvent(raw)
		if !ok {
			continue
		}

		m.mu.Lock()
		m.lastInboundAt = time.Now()
		m.mu.Unlock()
		m.emitStatus()

		go m.onEvent(ctx, m.account.AccountID, event)
	}
}

// RecordOutbound updates lastOutboundAt (§4.9) and notifies the status
// sink. Called by the outbound delivery component.
func (m *Manager) RecordOutbound() {
	m.mu.Lock()
	m.lastOutboundAt = time.Now()
	m.mu.Unlock()
	m.emitStatus()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(s)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
}

func (m *Manager) emitStatus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitStatusLocked()
}

func (m *Manager) emitStatusLocked() {
	if m.statusSink == nil {
		return
	}
	m.statusSink(rctypes.Status{
		AccountID:       m.account.AccountID,
		LastInboundAt:   m.lastInboundAt,
		LastOutboundAt:  m.lastOutboundAt,
		TotalReconnects: m.backoff.TotalReconnects,
		LastReconnectAt: m.backoff.LastReconnectAt,
		State:           string(m.state),
	})
}

func (m *Manager) cleanup(ctx context.Context) {
	m.mu.Lock()
	conn := m.conn
	subID := m.subscriptionToken
	m.conn = nil
	m.subscriptionToken = ""
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	if subID != "" {
		if err := m.client.DeleteSubscription(ctx, subID); err != nil {
			m.log.Warn("failed to revoke subscription on cleanup", "error", err)
		}
	}
	if conn != nil {
		conn.Close()
	}
}

// forceReconnect closes the current connection so the read loop returns
// and the supervisor schedules a fresh connect.
func (m *Manager) forceReconnect(reason string) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.log.Warn("forcing reconnect", "reason", reason)
	if conn != nil {
		conn.Close()
	}
}

var errFatalAuth = errors.New("subscription: fatal authentication error")

func isFatalAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, rcauth.ErrAuthentication) || errors.Is(err, errFatalAuth)
}
