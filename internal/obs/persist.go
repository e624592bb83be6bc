package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/openirrigation/weatherd/internal/metrics"
	"github.com/openirrigation/weatherd/internal/models"
)

const (
	snapshotFile     = "observations.json"
	snapshotInterval = 30 * time.Minute
)

// Persister periodically snapshots the store to disk and restores it on
// startup, so observation history survives process restarts.
type Persister struct {
	store *Store
	dir   string
}

// NewPersister validates the persistence directory up front; an inaccessible
// directory is a configuration error, not something to discover at the first
// snapshot tick.
func NewPersister(store *Store, dir string) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: persistence directory %s: %v", models.ErrConfiguration, dir, err)
	}
	return &Persister{store: store, dir: dir}, nil
}

func (p *Persister) path() string {
	return filepath.Join(p.dir, snapshotFile)
}

// Persist writes the current store contents as a single JSON array. The
// write goes to a temp file first and is renamed into place so a crash
// mid-write never leaves a truncated snapshot.
func (p *Persister) Persist() error {
	samples := p.store.Snapshot()
	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}

	tmp := p.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Restore loads the on-disk snapshot into the store. A missing file is a
// normal first run; a corrupt file resets the store to empty. Never fatal.
func (p *Persister) Restore() {
	data, err := os.ReadFile(p.path())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("store: read snapshot: %v", err)
		}
		return
	}

	var samples []models.Observation
	if err := json.Unmarshal(data, &samples); err != nil {
		log.Printf("store: corrupt snapshot %s, starting empty: %v", p.path(), err)
		p.store.replaceAll(nil)
		return
	}

	p.store.replaceAll(samples)
	log.Printf("store: restored %d observations from %s", len(samples), p.path())
}

// Run trims and snapshots the store every 30 minutes until ctx is cancelled,
// then takes a final snapshot on the way out. Write errors are logged and
// retried at the next tick.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.store.Trim(time.Now())
			if err := p.Persist(); err != nil {
				metrics.SnapshotWrites.WithLabelValues("error").Inc()
				log.Printf("store: final snapshot: %v", err)
			} else {
				metrics.SnapshotWrites.WithLabelValues("ok").Inc()
				log.Printf("store: final snapshot written")
			}
			return
		case <-ticker.C:
			p.store.Trim(time.Now())
			if err := p.Persist(); err != nil {
				metrics.SnapshotWrites.WithLabelValues("error").Inc()
				log.Printf("store: snapshot: %v", err)
			} else {
				metrics.SnapshotWrites.WithLabelValues("ok").Inc()
			}
		}
	}
}
