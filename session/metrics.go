package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CounterpartyMetrics tracks per-counterparty traffic and connection
// history, persisted to disk so restarts don't lose the run's history.
type CounterpartyMetrics struct {
	Name              string           `json:"name"`
	MessagesByType    map[string]int64 `json:"messagesByType"`
	TotalMessages     int64            `json:"totalMessages"`
	ConnectCount      int              `json:"connectCount"`
	DisconnectCount   int              `json:"disconnectCount"`
	LastMessageAt     *time.Time       `json:"lastMessageAt,omitempty"`
	LastDisconnectAt  *time.Time       `json:"lastDisconnectAt,omitempty"`
}

// Metrics is the persisted, in-memory set of all counterparties' traffic
// counters, grounded on the same load-mutate-save shape as a boot-event
// analytics store (saved to disk on every update), with boot/OS fields
// replaced by message and connection counts.
type Metrics struct {
	mu       sync.RWMutex
	entries  map[string]*CounterpartyMetrics
	dataPath string
}

func NewMetrics(dataPath string) *Metrics {
	m := &Metrics{
		entries:  make(map[string]*CounterpartyMetrics),
		dataPath: dataPath,
	}
	m.load()
	return m
}

func (m *Metrics) getOrCreate(name string) *CounterpartyMetrics {
	e, ok := m.entries[name]
	if !ok {
		e = &CounterpartyMetrics{Name: name, MessagesByType: make(map[string]int64)}
		m.entries[name] = e
	}
	return e
}

func (m *Metrics) RecordMessage(counterparty, msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.getOrCreate(counterparty)
	e.MessagesByType[msgType]++
	e.TotalMessages++
	now := time.Now()
	e.LastMessageAt = &now
	m.save()
}

func (m *Metrics) RecordConnect(counterparty string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.getOrCreate(counterparty)
	e.ConnectCount++
	m.save()
}

func (m *Metrics) RecordDisconnect(counterparty string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.getOrCreate(counterparty)
	e.DisconnectCount++
	now := time.Now()
	e.LastDisconnectAt = &now
	m.save()
}

func (m *Metrics) Get(counterparty string) *CounterpartyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[counterparty]
}

func (m *Metrics) All() map[string]*CounterpartyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*CounterpartyMetrics, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func (m *Metrics) getFilePath() string {
	return filepath.Join(m.dataPath, "session-metrics.json")
}

// save must be called with m.mu held.
func (m *Metrics) save() {
	if m.dataPath == "" {
		return
	}

	data := struct {
		Counterparties map[string]*CounterpartyMetrics `json:"counterparties"`
	}{
		Counterparties: m.entries,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Errorf("failed to marshal session metrics: %v", err)
		return
	}

	if err := os.MkdirAll(m.dataPath, 0755); err != nil {
		log.Errorf("failed to create metrics directory: %v", err)
		return
	}

	if err := os.WriteFile(m.getFilePath(), jsonData, 0644); err != nil {
		log.Errorf("failed to write session metrics: %v", err)
	}
}

func (m *Metrics) load() {
	if m.dataPath == "" {
		return
	}

	jsonData, err := os.ReadFile(m.getFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("failed to read session metrics: %v", err)
		}
		return
	}

	var data struct {
		Counterparties map[string]*CounterpartyMetrics `json:"counterparties"`
	}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		log.Errorf("failed to unmarshal session metrics: %v", err)
		return
	}
	if data.Counterparties != nil {
		m.entries = data.Counterparties
	}
}
