package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RollbackState is the migration position recorded on disk.
type RollbackState string

const (
	// StateActive routes per the feature flags.
	StateActive RollbackState = "active"
	// StateRolledBack pins every request to the legacy path.
	StateRolledBack RollbackState = "rolled_back"
)

// RollbackEvent records one state transition.
type RollbackEvent struct {
	From   RollbackState `json:"from"`
	To     RollbackState `json:"to"`
	Reason string        `json:"reason"`
	At     time.Time     `json:"at"`
}

// rollbackFile is the on-disk shape of the rollback state.
type rollbackFile struct {
	State   RollbackState   `json:"state"`
	History []RollbackEvent `json:"history,omitempty"`
}

// RollbackManager persists the migration rollback switch so an operator
// decision survives process restarts. The only legal transitions are
// active to rolled_back (Trigger) and rolled_back to active (Reset).
type RollbackManager struct {
	mu     sync.Mutex
	path   string
	state  rollbackFile
	logger *zap.Logger
	now    func() time.Time
}

// NewRollbackManager loads the state file at path, treating a missing file
// as the active state with no history.
func NewRollbackManager(path string, logger *zap.Logger) (*RollbackManager, error) {
	if path == "" {
		return nil, fmt.Errorf("rollback: state file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &RollbackManager{
		path:   path,
		state:  rollbackFile{State: StateActive},
		logger: logger,
		now:    time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read rollback state: %w", err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return nil, fmt.Errorf("failed to parse rollback state: %w", err)
	}
	if m.state.State != StateActive && m.state.State != StateRolledBack {
		return nil, fmt.Errorf("rollback: unknown state %q in %s", m.state.State, path)
	}
	return m, nil
}

// CurrentState returns the persisted state.
func (m *RollbackManager) CurrentState() RollbackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.State
}

// RolledBack reports whether the legacy path is pinned.
func (m *RollbackManager) RolledBack() bool {
	return m.CurrentState() == StateRolledBack
}

// History returns a copy of the transition log, oldest first.
func (m *RollbackManager) History() []RollbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]RollbackEvent, len(m.state.History))
	copy(history, m.state.History)
	return history
}

// Trigger moves active to rolled_back and persists the transition.
func (m *RollbackManager) Trigger(reason string) error {
	return m.transition(StateActive, StateRolledBack, reason)
}

// Reset moves rolled_back back to active and persists the transition.
func (m *RollbackManager) Reset(reason string) error {
	return m.transition(StateRolledBack, StateActive, reason)
}

// RecommendRollback reports whether the operator should trigger a rollback.
// An open circuit breaker while still active is the signal.
func (m *RollbackManager) RecommendRollback(flags *FeatureFlags) bool {
	if flags == nil {
		return false
	}
	return m.CurrentState() == StateActive && flags.State() == BreakerOpen
}

func (m *RollbackManager) transition(from, to RollbackState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.State != from {
		return fmt.Errorf("rollback: cannot move from %s to %s", m.state.State, to)
	}
	if reason == "" {
		reason = "unspecified"
	}

	event := RollbackEvent{From: from, To: to, Reason: reason, At: m.now()}
	m.state.State = to
	m.state.History = append(m.state.History, event)
	if err := m.persist(); err != nil {
		// Roll the in-memory change back so state and disk stay in step.
		m.state.State = from
		m.state.History = m.state.History[:len(m.state.History)-1]
		return err
	}

	m.logger.Info("rollback state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return nil
}

func (m *RollbackManager) persist() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rollback state: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rollback state: %w", err)
	}
	return nil
}
