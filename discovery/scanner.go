// Package discovery maintains the set of known FIX counterparties: a
// statically configured list, optionally kept in sync with a directory
// HTTP API that can add, remove, or re-credential counterparties at
// runtime without a restart.
package discovery

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Counterparty is one FIX session endpoint this gateway may connect to or
// accept from.
type Counterparty struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Role         string `json:"role"` // "initiator" or "acceptor"
	SenderCompID string `json:"sender_comp_id"`
	TargetCompID string `json:"target_comp_id"`
	HeartBtInt   string `json:"heart_bt_int"`
	Enabled      bool   `json:"enabled"`
}

// directoryEntry is the wire shape of one record from the directory API.
type directoryEntry struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		Role         string `json:"role"`
		SenderCompID string `json:"senderCompID"`
		TargetCompID string `json:"targetCompID"`
		HeartBtInt   string `json:"heartBtInt"`
	} `json:"spec"`
	Status struct {
		Enabled bool `json:"enabled"`
	} `json:"status"`
}

type directoryList struct {
	Items []directoryEntry `json:"items"`
}

type watchEvent struct {
	Type   string          `json:"type"`
	Object directoryEntry `json:"object"`
}

// Registry holds the live set of counterparties, optionally refreshed from
// a directory HTTP API (list + long-poll watch), matching the reconnect
// loop of an external discovery source that can change out from under the
// gateway while it runs.
type Registry struct {
	counterparties map[string]*Counterparty
	mu             sync.RWMutex
	onChange       func(map[string]*Counterparty)
	directoryURL   string
	httpClient     *http.Client
}

func NewRegistry(directoryURL string) *Registry {
	return &Registry{
		counterparties: make(map[string]*Counterparty),
		directoryURL:   directoryURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Add statically registers a counterparty (from config.yaml), independent
// of the directory API.
func (r *Registry) Add(cp Counterparty) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counterparties[cp.Name] = &cp
	log.Infof("registered counterparty: %s (%s:%d, role=%s)", cp.Name, cp.Host, cp.Port, cp.Role)
}

func (r *Registry) OnChange(fn func(map[string]*Counterparty)) {
	r.onChange = fn
}

func (r *Registry) All() map[string]*Counterparty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Counterparty, len(r.counterparties))
	for k, v := range r.counterparties {
		out[k] = v
	}
	return out
}

func (r *Registry) Refresh() { r.fetchDirectory() }

// Run polls the directory once, then watches it for changes until ctx is
// canceled, reconnecting on failure. With no directory URL it reports the
// statically registered set to OnChange once and returns.
func (r *Registry) Run(ctx context.Context) {
	if r.directoryURL == "" {
		if r.onChange != nil {
			r.onChange(r.All())
		}
		return
	}

	r.fetchDirectory()
	if r.onChange != nil {
		r.onChange(r.All())
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r.watchDirectory(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				log.Info("reconnecting counterparty directory watch")
				r.fetchDirectory()
			}
		}
	}
}

func (r *Registry) fetchDirectory() {
	resp, err := r.httpClient.Get(r.directoryURL + "/api/v1/counterparties")
	if err != nil {
		log.Warnf("failed to fetch counterparty directory: %v", err)
		return
	}
	defer resp.Body.Close()

	var list directoryList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		log.Warnf("failed to decode counterparty directory response: %v", err)
		return
	}

	changed := false
	r.mu.Lock()
	for _, entry := range list.Items {
		if r.applyEntry(entry) {
			changed = true
		}
	}
	r.mu.Unlock()

	if changed && r.onChange != nil {
		go r.onChange(r.All())
	}
}

func (r *Registry) watchDirectory(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, "GET", r.directoryURL+"/api/v1/counterparties?watch=true", nil)
	if err != nil {
		log.Warnf("failed to build counterparty directory watch request: %v", err)
		return
	}

	watchClient := &http.Client{}
	resp, err := watchClient.Do(req)
	if err != nil {
		log.Warnf("counterparty directory watch failed: %v", err)
		return
	}
	defer resp.Body.Close()

	log.Info("counterparty directory watch connected")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event watchEvent
		if err := json.Unmarshal(line, &event); err != nil {
			log.Warnf("failed to decode directory watch event: %v", err)
			continue
		}

		changed := false
		r.mu.Lock()
		switch event.Type {
		case "ADDED", "MODIFIED":
			changed = r.applyEntry(event.Object)
		case "DELETED":
			name := event.Object.Metadata.Name
			if _, exists := r.counterparties[name]; exists {
				delete(r.counterparties, name)
				log.Infof("counterparty removed from directory: %s", name)
				changed = true
			}
		}
		r.mu.Unlock()

		if changed && r.onChange != nil {
			go r.onChange(r.All())
		}
	}
}

// applyEntry updates the counterparty map from one directory record. Must
// be called with r.mu held. Returns true if anything changed.
func (r *Registry) applyEntry(entry directoryEntry) bool {
	name := entry.Metadata.Name
	if name == "" || entry.Spec.Host == "" {
		return false
	}

	existing, exists := r.counterparties[name]
	if exists {
		changed := false
		if existing.Enabled != entry.Status.Enabled {
			existing.Enabled = entry.Status.Enabled
			changed = true
		}
		if entry.Spec.Port != 0 && existing.Port != entry.Spec.Port {
			existing.Port = entry.Spec.Port
			changed = true
		}
		if entry.Spec.SenderCompID != "" && existing.SenderCompID != entry.Spec.SenderCompID {
			existing.SenderCompID = entry.Spec.SenderCompID
			changed = true
		}
		if entry.Spec.TargetCompID != "" && existing.TargetCompID != entry.Spec.TargetCompID {
			existing.TargetCompID = entry.Spec.TargetCompID
			changed = true
		}
		return changed
	}

	r.counterparties[name] = &Counterparty{
		Name:         name,
		Host:         entry.Spec.Host,
		Port:         entry.Spec.Port,
		Role:         entry.Spec.Role,
		SenderCompID: entry.Spec.SenderCompID,
		TargetCompID: entry.Spec.TargetCompID,
		HeartBtInt:   entry.Spec.HeartBtInt,
		Enabled:      entry.Status.Enabled,
	}
	log.Infof("discovered counterparty: %s (%s:%d)", name, entry.Spec.Host, entry.Spec.Port)
	return true
}
