// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for xraysync.
// This module manages all interactions with the OS keychain/credential store and
// holds the Xray Cloud API credential pair for local (non-platform) runs, so that
// operators never have to put the client secret in a parameter file.
//
// The package supports macOS Keychain, Windows Credential Manager and the
// freedesktop Secret Service, with thread-safe operations and proper error
// handling.
package keychain

import (
	"errors"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "xraysync"

// Keys used for storing secrets in the OS keychain.
const (
	KeyClientID     = "xray_client_id"
	KeyClientSecret = "xray_client_secret"
)

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}

	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends.
func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.PassBackend,
		},
		PassPrefix:               ServiceName,
		WinCredPrefix:            ServiceName,
		LibSecretCollectionName:  "login",
		KeychainTrustApplication: true,
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, err
	}
	return ring, nil
}

// SaveCredentials stores the Xray client ID and secret in the OS keychain.
// This method is thread-safe.
func (m *Manager) SaveCredentials(clientID, clientSecret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if clientID == "" || clientSecret == "" {
		return errors.New("client ID and client secret are both required")
	}
	if err := m.ring.Set(keyring.Item{Key: KeyClientID, Data: []byte(clientID)}); err != nil {
		return err
	}
	return m.ring.Set(keyring.Item{Key: KeyClientSecret, Data: []byte(clientSecret)})
}

// LoadCredentials retrieves the Xray client ID and secret from the keychain.
// This method is thread-safe.
func (m *Manager) LoadCredentials() (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, err := m.ring.Get(KeyClientID)
	if err != nil {
		return "", "", err
	}
	secret, err := m.ring.Get(KeyClientSecret)
	if err != nil {
		return "", "", err
	}
	if len(id.Data) == 0 || len(secret.Data) == 0 {
		return "", "", errors.New("stored credentials are empty")
	}
	return string(id.Data), string(secret.Data), nil
}

// ClearCredentials removes the stored Xray credential pair from the keychain.
// This method is thread-safe.
func (m *Manager) ClearCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.ring.Remove(KeyClientID)
	_ = m.ring.Remove(KeyClientSecret)
	return nil
}
