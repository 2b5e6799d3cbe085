package session

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/command"
	"github.com/tessellab/simfarm/pkg/runner"
)

// watchdogInterval is the default pause between stalled-upload scans.
const watchdogInterval = 10 * time.Second

var sessionIDChecker = regexp.MustCompile(`^[0-9A-Za-z_\-]+$`)

// Manager owns a guarded collection of sessions keyed by session id. For
// each logged-in session it runs one background watchdog that periodically
// expires stalled uploads; the watchdog is cancelled explicitly on logout.
type Manager struct {
	jobsRoot      string
	paramsPath    string
	serializer    command.Serializer
	newRunner     runner.Factory
	logger        *zap.Logger
	interval      time.Duration
	uploadTimeout time.Duration

	mu        sync.RWMutex
	sessions  map[string]*Session
	watchdogs map[string]context.CancelFunc
}

// ManagerParams configures a Manager.
type ManagerParams struct {
	// JobsRoot is the directory under which every session gets its own
	// job-storage subdirectory.
	JobsRoot string
	// ParamsPath is the shared parameters file seeded into every new job
	// directory.
	ParamsPath string
	Serializer command.Serializer
	NewRunner  runner.Factory
	Logger     *zap.Logger
	// WatchdogInterval overrides the stalled-upload scan interval.
	// Zero means the default.
	WatchdogInterval time.Duration
	// UploadTimeout overrides how long a transfer may idle before the
	// watchdog expires it. Zero means the default.
	UploadTimeout time.Duration
}

// NewManager returns an empty Manager.
func NewManager(p ManagerParams) *Manager {
	interval := p.WatchdogInterval
	if interval <= 0 {
		interval = watchdogInterval
	}
	return &Manager{
		jobsRoot:      p.JobsRoot,
		paramsPath:    p.ParamsPath,
		serializer:    p.Serializer,
		newRunner:     p.NewRunner,
		logger:        p.Logger,
		interval:      interval,
		uploadTimeout: p.UploadTimeout,
		sessions:      make(map[string]*Session),
		watchdogs:     make(map[string]context.CancelFunc),
	}
}

// CreateSession logs a session in, constructing it first if it does not
// exist yet. A fresh session gets its job-storage directory and a watchdog.
func (m *Manager) CreateSession(id string) (*Session, error) {
	if !sessionIDChecker.MatchString(id) {
		return nil, fmt.Errorf("invalid session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.SetLoggedIn(true)
		if _, running := m.watchdogs[id]; !running {
			m.startWatchdogLocked(id, s)
		}
		return s, nil
	}

	s, err := New(Params{
		ID:            id,
		JobsDir:       filepath.Join(m.jobsRoot, id),
		ParamsPath:    m.paramsPath,
		Serializer:    m.serializer,
		NewRunner:     m.newRunner,
		Logger:        m.logger,
		UploadTimeout: m.uploadTimeout,
	})
	if err != nil {
		return nil, err
	}

	m.sessions[id] = s
	m.startWatchdogLocked(id, s)
	return s, nil
}

// Session looks up an existing session.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// DestroySession logs the session out and cancels its watchdog. The
// session's jobs stay on disk; a later CreateSession with the same id picks
// them up again.
func (m *Manager) DestroySession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.SetLoggedIn(false)

	if cancel, ok := m.watchdogs[id]; ok {
		cancel()
		delete(m.watchdogs, id)
	}
}

// Close cancels every watchdog. Sessions themselves are left as they are.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cancel := range m.watchdogs {
		cancel()
		delete(m.watchdogs, id)
	}
}

func (m *Manager) startWatchdogLocked(id string, s *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogs[id] = cancel
	go m.watchSession(ctx, id, s)
}

// watchSession expires stalled uploads on every job in the session until
// the session logs out or the watchdog is cancelled.
func (m *Manager) watchSession(ctx context.Context, id string, s *Session) {
	m.logger.Debug("Starting upload watchdog", zap.String("session", id))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Upload watchdog cancelled", zap.String("session", id))
			return
		case <-ticker.C:
			if !s.IsLoggedIn() {
				m.logger.Debug("Upload watchdog exiting, session logged out",
					zap.String("session", id))
				return
			}
			s.TerminateHungUploads()
		}
	}
}
