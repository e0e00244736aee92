package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TSIWatch/internal/model"
)

// State is what survives between runs: the last known portfolio and which
// stop-loss alerts were already sent.
type State struct {
	Portfolio       []model.PortfolioEntry `json:"portfolio"`
	PortfolioSource string                 `json:"portfolio_source,omitempty"`
	LoadedAt        time.Time              `json:"loaded_at"`
	LastRefresh     time.Time              `json:"last_refresh"`
	LastCheck       time.Time              `json:"last_check"`
	// AlertedOn maps ticker to the trading day ("2006-01-02") its last alert was sent.
	AlertedOn map[string]string `json:"alerted_on,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// LoadState reads the session from a JSON file. Returns a zero state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes the session to a JSON file.
func SaveState(filePath string, state *State, now time.Time) error {
	state.UpdatedAt = now
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	return os.WriteFile(filePath, data, 0o644)
}
