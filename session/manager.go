// Package session runs and supervises one fix.Connection per counterparty:
// dialing or accepting, reconnecting with backoff, broadcasting rendered
// audit lines of inbound application messages to subscribers (the admin
// API's live tail), and feeding the audit log and metrics tracker.
package session

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/glennswest/fixgw/app"
	"github.com/glennswest/fixgw/fix"
	"github.com/glennswest/fixgw/logs"
	"github.com/glennswest/fixgw/timer"
	"github.com/glennswest/fixgw/transport"
)

// renderAuditLine renders a parsed application message's tags back into
// pipe-delimited tag=value form, sorted by tag number, for the audit log
// and live stream. Map iteration order is not guaranteed, so the sort
// keeps output deterministic even though it isn't the original wire order.
func renderAuditLine(msgType []byte, tags map[uint32][]byte) []byte {
	nums := make([]int, 0, len(tags))
	for t := range tags {
		nums = append(nums, int(t))
	}
	sort.Ints(nums)

	out := append([]byte("35="), msgType...)
	for _, n := range nums {
		out = append(out, '|')
		out = append(out, []byte(strconv.Itoa(n))...)
		out = append(out, '=')
		out = append(out, tags[uint32(n)]...)
	}
	return out
}

// Entry is one managed counterparty connection plus its bookkeeping.
type Entry struct {
	Name         string
	Host         string
	Port         int
	Role         fix.Role
	SenderCompID string
	TargetCompID string
	HeartBtInt   string

	Connected    bool
	LastError    string
	LastActivity time.Time

	cancel context.CancelFunc
	conn   *fix.Connection
}

// Manager owns the full set of counterparty connections, (re)connecting
// each independently and exposing live status for the admin API.
type Manager struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	auditLog    *logs.Writer
	metrics     *Metrics
	alerts      *AlertMatcher
	throttleBPS int64
	throttle    int
	subscribers map[string][]chan []byte
	subMu       sync.RWMutex
}

func NewManager(auditLog *logs.Writer, dataPath string, throttleBytesPerSec int64, throttleBurst int) *Manager {
	m := &Manager{
		entries:     make(map[string]*Entry),
		auditLog:    auditLog,
		metrics:     NewMetrics(dataPath),
		alerts:      NewAlertMatcher(nil),
		throttleBPS: throttleBytesPerSec,
		throttle:    throttleBurst,
		subscribers: make(map[string][]chan []byte),
	}
	go m.healthCheck()
	return m
}

// SetAlertPatterns configures substrings that, if seen in an inbound
// message's Text(58) field, are logged at warning level for operators.
func (m *Manager) SetAlertPatterns(patterns []string) {
	m.alerts = NewAlertMatcher(patterns)
}

func (m *Manager) GetMetrics(name string) *CounterpartyMetrics { return m.metrics.Get(name) }
func (m *Manager) GetAllMetrics() map[string]*CounterpartyMetrics { return m.metrics.All() }

// Start launches (or restarts) the supervised connection loop for one
// counterparty.
func (m *Manager) Start(name, host string, port int, role fix.Role, senderCompID, targetCompID, heartBtInt string) {
	m.mu.Lock()
	if existing, exists := m.entries[name]; exists && existing.cancel != nil {
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &Entry{
		Name:         name,
		Host:         host,
		Port:         port,
		Role:         role,
		SenderCompID: senderCompID,
		TargetCompID: targetCompID,
		HeartBtInt:   heartBtInt,
		cancel:       cancel,
	}
	m.entries[name] = entry
	m.mu.Unlock()

	go m.runLoop(ctx, entry)
}

func (m *Manager) Stop(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, exists := m.entries[name]; exists {
		if entry.cancel != nil {
			entry.cancel()
		}
		delete(m.entries, name)
	}
}

// InState, OutState, NextInSeq, and NextOutSeq report the live fix.Connection
// state for an entry; they return the zero value if the entry has no
// connection established yet (e.g. between reconnect attempts).
func (e *Entry) InState() fix.InState {
	if e.conn == nil {
		return fix.InDisconnected
	}
	return e.conn.InState()
}

func (e *Entry) OutState() fix.OutState {
	if e.conn == nil {
		return fix.OutDisconnected
	}
	return e.conn.OutState()
}

func (e *Entry) NextInSeq() uint32 {
	if e.conn == nil {
		return 0
	}
	return e.conn.GetExpectedIncomingSeq()
}

func (e *Entry) NextOutSeq() uint32 {
	if e.conn == nil {
		return 0
	}
	return e.conn.NextOutSeq()
}

func (m *Manager) Get(name string) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[name]
}

func (m *Manager) All() map[string]*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// ForceExpectedIncomingSeq lets the admin API correct a counterparty's
// next_in_seq after an out-of-band reconciliation.
func (m *Manager) ForceExpectedIncomingSeq(name string, n uint32) error {
	m.mu.RLock()
	entry, exists := m.entries[name]
	m.mu.RUnlock()
	if !exists || entry.conn == nil {
		return fmt.Errorf("counterparty not connected: %s", name)
	}
	entry.conn.ForceExpectedIncomingSeq(n)
	return nil
}

func (m *Manager) Subscribe(name string) chan []byte {
	ch := make(chan []byte, 64)
	m.subMu.Lock()
	m.subscribers[name] = append(m.subscribers[name], ch)
	m.subMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(name string, ch chan []byte) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	subs := m.subscribers[name]
	for i, s := range subs {
		if s == ch {
			m.subscribers[name] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) broadcast(name string, data []byte) {
	m.subMu.RLock()
	subs := m.subscribers[name]
	m.subMu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- data:
		default: // slow subscriber, drop rather than block the session
		}
	}
}

// healthCheck restarts any connection whose incoming state has gone
// Disconnected while the manager still believes it should be running.
func (m *Manager) healthCheck() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		var stale []string
		for name, entry := range m.entries {
			if entry.Connected && entry.conn != nil && entry.conn.InState() == fix.InDisconnected {
				stale = append(stale, name)
			}
		}
		m.mu.RUnlock()

		for _, name := range stale {
			entry := m.Get(name)
			if entry == nil {
				continue
			}
			log.Warnf("health check: %s disconnected, restarting", name)
			m.Start(name, entry.Host, entry.Port, entry.Role, entry.SenderCompID, entry.TargetCompID, entry.HeartBtInt)
		}
	}
}

func (m *Manager) runLoop(ctx context.Context, entry *Entry) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connectTime := time.Now()
		err := m.runOnce(ctx, entry)
		entry.Connected = false
		if err != nil {
			entry.LastError = err.Error()
			log.Errorf("fix session %s ended: %v", entry.Name, err)
		}
		m.metrics.RecordDisconnect(entry.Name)

		if time.Since(connectTime) > 30*time.Second {
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
		}
	}
}

func (m *Manager) runOnce(ctx context.Context, entry *Entry) error {
	if entry.Role != fix.Initiator {
		return fmt.Errorf("acceptor role requires an externally accepted connection, not a supervised dial loop")
	}
	addr := fmt.Sprintf("%s:%d", entry.Host, entry.Port)
	return m.runConnection(ctx, entry, transport.NewInitiator(addr, 10*time.Second))
}

// Accept runs one acceptor-role session over an already-established
// net.Conn, handed in by the embedder's net.Listener.Accept loop. Unlike
// Start, this does not reconnect on failure — a new inbound connection
// produces a fresh call to Accept.
func (m *Manager) Accept(name, host string, port int, senderCompID, targetCompID, heartBtInt string, conn net.Conn) {
	entry := &Entry{
		Name: name, Host: host, Port: port, Role: fix.Acceptor,
		SenderCompID: senderCompID, TargetCompID: targetCompID, HeartBtInt: heartBtInt,
	}
	m.mu.Lock()
	m.entries[name] = entry
	m.mu.Unlock()

	go func() {
		if err := m.runConnection(context.Background(), entry, transport.NewAccepted(conn)); err != nil {
			log.Warnf("accepted session %s ended: %v", name, err)
		}
		m.metrics.RecordDisconnect(name)
	}()
}

func (m *Manager) runConnection(ctx context.Context, entry *Entry, tp fix.Transport) error {
	conn := fix.NewConnection(entry.Role, tp, timer.NewRealtime())
	conn.SetLogf(func(format string, args ...interface{}) { log.Debugf("[fix:%s] "+format, append([]interface{}{entry.Name}, args...)...) })
	if m.throttleBPS > 0 {
		conn.SetOutboundLimiter(rate.NewLimiter(rate.Limit(m.throttleBPS), m.throttle))
	}

	m.mu.Lock()
	entry.conn = conn
	m.mu.Unlock()

	done := make(chan struct{})
	var connectErr error

	embedder := app.New(entry.Name, entry.SenderCompID, entry.TargetCompID, entry.HeartBtInt, []string{"D", "8", "9"}, func(correlationID string, msgType []byte, tags map[uint32][]byte) {
		m.metrics.RecordMessage(entry.Name, string(msgType))
		line := renderAuditLine(msgType, tags)
		if m.auditLog != nil {
			if err := m.auditLog.Write(entry.Name, logs.DirectionIn, line); err != nil {
				log.Warnf("audit log write failed for %s: %v", entry.Name, err)
			}
		}
		m.broadcast(entry.Name, line)
		if text, ok := tags[58]; ok {
			m.alerts.Check(entry.Name, string(text))
		}
	})

	conn.Connect(wrapWithAudit(embedder, entry, m, done, &connectErr))

	select {
	case <-ctx.Done():
		conn.EndSession(embedder)
		return ctx.Err()
	case <-done:
		return connectErr
	}
}

// auditingApplication wraps the reference app.Counterparty to mark the
// Entry connected and record a connect metric on an inbound Logon, and to
// close runConnection's done channel on a Logout or a fatal error. The
// audit log and broadcast writes happen in the message handler that
// runConnection passes to app.New.
type auditingApplication struct {
	*app.Counterparty
	entry *Entry
	mgr   *Manager
	done  chan struct{}
	errp  *error
	once  sync.Once
}

func wrapWithAudit(inner *app.Counterparty, entry *Entry, mgr *Manager, done chan struct{}, errp *error) *auditingApplication {
	a := &auditingApplication{Counterparty: inner, entry: entry, mgr: mgr, done: done, errp: errp}
	return a
}

func (a *auditingApplication) OnRequest(req fix.SessionRequest, conn *fix.Connection) {
	a.Counterparty.OnRequest(req, conn)
	if req.Direction == fix.DirIn && req.Kind == fix.ReqLogon {
		a.entry.Connected = true
		a.entry.LastError = ""
		a.entry.LastActivity = time.Now()
		a.mgr.metrics.RecordConnect(a.entry.Name)
	}
	if req.Kind == fix.ReqLogout {
		a.once.Do(func() { close(a.done) })
	}
}

func (a *auditingApplication) OnError(err error, conn *fix.Connection) {
	a.Counterparty.OnError(err, conn)
	*a.errp = err
	a.once.Do(func() { close(a.done) })
}

func (a *auditingApplication) OnMessagePending(conn *fix.Connection) {
	conn.ReadFixMessage(a)
}
