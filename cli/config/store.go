package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials is the persisted client state. Field names match the JSON
// keys of the config file; unknown keys survive a load/save round trip.
type Credentials struct {
	DeviceID           string `json:"device_id"`
	DeviceToken        string `json:"device_token"`
	DeviceRefreshToken string `json:"device_refresh_token"`
	RoleID             string `json:"role_id"`
	UserID             string `json:"user_id"`
	UserToken          string `json:"user_token"`
	UserRefreshToken   string `json:"user_refresh_token"`
	SelectedStudy      string `json:"selected_study"`
	LastMeasurement    string `json:"last_measurement"`
	StudyCfgHash       string `json:"study_cfg_hash"`
	StudyCfgData       string `json:"study_cfg_data"`
	RestURL            string `json:"rest_url,omitempty"`
	WSURL              string `json:"ws_url,omitempty"`
}

// Token returns the user token when logged in, else the device token.
func (c Credentials) Token() string {
	if c.UserToken != "" {
		return c.UserToken
	}
	return c.DeviceToken
}

// Store is a JSON credential file. Load merges the file over the default
// (empty) values; Write replaces the file with indented JSON.
type Store struct {
	path string

	mu    sync.Mutex
	creds Credentials
	extra map[string]json.RawMessage
}

// LoadStore reads the credential file at path. A missing file yields an
// empty store that is created on the first Write.
func LoadStore(path string) (*Store, error) {
	s := &Store{path: path, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read credentials %q: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.extra); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.creds); err != nil {
		return nil, fmt.Errorf("invalid credentials in %s: %w", path, err)
	}
	for _, k := range knownKeys() {
		delete(s.extra, k)
	}
	return s, nil
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// Credentials returns a copy of the current values.
func (s *Store) Credentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// Update applies fn to the credentials in memory. Call Write to persist.
func (s *Store) Update(fn func(c *Credentials)) {
	s.mu.Lock()
	fn(&s.creds)
	s.mu.Unlock()
}

// Save records the last completed measurement and writes the file.
func (s *Store) Save(_ context.Context, lastMeasurement string) error {
	s.Update(func(c *Credentials) { c.LastMeasurement = lastMeasurement })
	return s.Write()
}

// Write persists the store atomically with owner-only permissions.
func (s *Store) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]any, len(s.extra)+16)
	for k, v := range s.extra {
		merged[k] = v
	}
	known, err := json.Marshal(s.creds)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".dfx-credentials-*")
	if err != nil {
		return fmt.Errorf("cannot write credentials: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("cannot write credentials: %w", err)
	}
	return nil
}

func knownKeys() []string {
	return []string{
		"device_id", "device_token", "device_refresh_token", "role_id",
		"user_id", "user_token", "user_refresh_token", "selected_study",
		"last_measurement", "study_cfg_hash", "study_cfg_data", "rest_url", "ws_url",
	}
}
