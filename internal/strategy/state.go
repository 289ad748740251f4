package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/statforge/pairtrader/internal/pairs"
	"github.com/statforge/pairtrader/internal/risk"
)

// Snapshot is the persisted strategy state: risk counters plus the pair book
// with positions and performance.
type Snapshot struct {
	SavedAt time.Time     `json:"saved_at"`
	Mode    string        `json:"mode"`
	Risk    risk.State    `json:"risk"`
	Pairs   []*pairs.Pair `json:"pairs"`
}

const stateDirName = ".pairtrader"
const stateFileName = "state.json"

// DefaultStatePath returns the state file location under the user's home
// directory.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, stateDirName, stateFileName), nil
}

// SaveState writes the current strategy state to path (the default location
// when path is empty).
func (s *StatArb) SaveState(path string) error {
	if path == "" {
		var err error
		if path, err = DefaultStatePath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	snap := &Snapshot{
		SavedAt: time.Now(),
		Mode:    s.mode.Name(),
		Risk:    s.RiskState(),
		Pairs:   s.manager.AllPairs(),
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}

	s.logger.Info("state saved", zap.String("path", path), zap.Int("pairs", len(snap.Pairs)))
	return nil
}

// LoadState restores a saved snapshot: risk counters come back as saved,
// pairs are reinserted as PENDING for revalidation from fresh data. A
// missing file is not an error.
func (s *StatArb) LoadState(path string) error {
	if path == "" {
		var err error
		if path, err = DefaultStatePath(); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing state file %s: %w", path, err)
	}
	if snap.Mode != "" && snap.Mode != s.mode.Name() {
		return fmt.Errorf("state file mode %q does not match configured mode %q", snap.Mode, s.mode.Name())
	}

	s.stateMu.Lock()
	s.state = snap.Risk
	s.stateMu.Unlock()

	restored := 0
	for _, p := range snap.Pairs {
		if p == nil {
			continue
		}
		if err := s.manager.RestorePair(p); err != nil {
			s.logger.Warn("pair restore skipped", zap.String("pair", p.ID), zap.Error(err))
			continue
		}
		restored++
	}

	s.logger.Info("state loaded",
		zap.String("path", path),
		zap.Time("saved_at", snap.SavedAt),
		zap.Int("pairs", restored))
	return nil
}
