package client

import (
	"encoding/json"
	"os"
	"time"
)

// persistedState is the on-disk session cache. Version is the protocol
// marker: a file written by an older client build is discarded wholesale,
// forcing re-login after a breaking server contract change.
type persistedState struct {
	Version     string    `json:"version"`
	AccessToken string    `json:"access_token"`
	LoggedInAt  time.Time `json:"logged_in_at"`
}

func loadState(path, version string, maxAge time.Duration) (persistedState, bool) {
	if path == "" {
		return persistedState{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return persistedState{}, false
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return persistedState{}, false
	}

	if st.Version != version {
		_ = os.Remove(path)
		return persistedState{}, false
	}

	if st.LoggedInAt.IsZero() || time.Since(st.LoggedInAt) > maxAge {
		_ = os.Remove(path)
		return persistedState{}, false
	}

	return st, true
}

func saveState(path string, st persistedState) error {
	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func clearState(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
