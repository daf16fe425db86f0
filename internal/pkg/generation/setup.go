package generation

import (
	"fmt"
	"sync"

	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/database"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
	"github.com/ManuelReschke/ClipFox/internal/pkg/s3storage"
)

var (
	setupOnce           sync.Once
	setupErr            error
	defaultOrchestrator *Orchestrator
	defaultPoller       *Poller
)

// Setup builds the package-level orchestrator and poller from the global
// database, repository factory and environment. Must run after the database
// and cache are up.
func Setup() error {
	setupOnce.Do(func() {
		jobs := repository.GetGlobalFactory().GetGenerationJobRepository()
		ledgerSvc := ledger.NewServiceFromDB(database.GetDB())
		client := NewHTTPClientFromEnv()

		s3cfg, err := s3storage.LoadConfig()
		if err != nil {
			setupErr = fmt.Errorf("generation setup: %w", err)
			return
		}
		store, err := s3storage.NewClient(s3cfg)
		if err != nil {
			setupErr = fmt.Errorf("generation setup: %w", err)
			return
		}

		defaultOrchestrator = NewOrchestrator(jobs, ledgerSvc, client)
		defaultPoller = NewPoller(jobs, ledgerSvc, client, store, nil)
	})
	return setupErr
}

// GetOrchestrator returns the shared orchestrator. Setup must have succeeded.
func GetOrchestrator() *Orchestrator {
	return defaultOrchestrator
}

// GetPoller returns the shared poller. Setup must have succeeded.
func GetPoller() *Poller {
	return defaultPoller
}
