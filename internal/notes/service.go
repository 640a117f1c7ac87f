package notes

import (
	"time"
)

// Service is the orchestration layer behind the HTTP handlers and the CLI:
// accounts, workspace edits, settings, repository linking, and git sync.
type Service struct {
	database   Database
	github     GitHub
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	sessionTTL time.Duration
}

// NewService creates a new Service with the provided dependencies.
// github may be nil when no GitHub App is configured; sync operations then fail.
func NewService(database Database, github GitHub, logger Logger, clock Clock, idgen IDGenerator, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &Service{
		database:   database,
		github:     github,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		sessionTTL: sessionTTL,
	}
}

func (s *Service) requireGitHub() error {
	if s.github == nil {
		return invalidf("GitHub integration is not configured")
	}
	return nil
}
