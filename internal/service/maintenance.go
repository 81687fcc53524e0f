package service

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"pagebuilder/internal/domain"
)

// Maintenance prunes old checkpoints on a cron schedule.
type Maintenance struct {
	pages     domain.PageStore
	snapshots domain.SnapshotStore
	keep      int

	mu        sync.Mutex
	cronSched *cron.Cron
}

func NewMaintenance(pages domain.PageStore, snapshots domain.SnapshotStore, keep int) *Maintenance {
	return &Maintenance{pages: pages, snapshots: snapshots, keep: keep}
}

// RunOnce prunes every page down to the configured number of checkpoints
// and reports how many were removed. Nothing is pruned when keep is zero.
func (m *Maintenance) RunOnce() (int, error) {
	if m.keep <= 0 {
		return 0, nil
	}
	pages, err := m.pages.ListPages()
	if err != nil {
		return 0, fmt.Errorf("list pages: %w", err)
	}
	total := 0
	for _, p := range pages {
		n, err := m.snapshots.Prune(p.ID, m.keep)
		if err != nil {
			log.Printf("maintenance: prune %s: %v", p.ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Start schedules RunOnce with a standard five-field cron expression.
func (m *Maintenance) Start(expr string) error {
	m.Stop()
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		n, err := m.RunOnce()
		if err != nil {
			log.Printf("maintenance: %v", err)
			return
		}
		if n > 0 {
			log.Printf("maintenance: pruned %d snapshot(s)", n)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	c.Start()
	m.mu.Lock()
	m.cronSched = c
	m.mu.Unlock()
	log.Printf("maintenance: scheduled %q, keeping %d snapshot(s) per page", expr, m.keep)
	return nil
}

func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cronSched != nil {
		m.cronSched.Stop()
		m.cronSched = nil
	}
}
