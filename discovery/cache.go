package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Cache persists a counterparty map to a JSON file on disk and reads it
// back. Registry does not use it, so nothing is loaded from it at startup.
type Cache struct {
	path string
	mu   sync.Mutex
}

func NewCache(dataDir string) *Cache {
	return &Cache{
		path: filepath.Join(dataDir, "counterparty-cache.json"),
	}
}

// Load reads cached counterparties from disk. Returns nil if no cache exists.
func (c *Cache) Load() map[string]*Counterparty {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("failed to read counterparty cache: %v", err)
		}
		return nil
	}

	var counterparties map[string]*Counterparty
	if err := json.Unmarshal(data, &counterparties); err != nil {
		log.Warnf("failed to parse counterparty cache: %v", err)
		return nil
	}

	log.Infof("loaded %d counterparties from cache", len(counterparties))
	return counterparties
}

// Save writes the current counterparty map to disk atomically.
func (c *Cache) Save(counterparties map[string]*Counterparty) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(counterparties, "", "  ")
	if err != nil {
		log.Warnf("failed to marshal counterparty cache: %v", err)
		return
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warnf("failed to create cache dir: %v", err)
		return
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.Warnf("failed to write counterparty cache tmp: %v", err)
		return
	}

	if err := os.Rename(tmp, c.path); err != nil {
		log.Warnf("failed to rename counterparty cache: %v", err)
		os.Remove(tmp)
		return
	}

	log.Debugf("saved %d counterparties to cache", len(counterparties))
}
