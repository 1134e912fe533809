// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package safety

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filippo.io/age"
)

// SecretStore persists named secrets for a repository as an
// age-encrypted JSON document. The x25519 identity lives next to the
// ciphertext with 0600 permissions; both files stay inside the state
// directory, which is gitignored.
type SecretStore struct {
	identityPath   string
	ciphertextPath string
}

// NewSecretStore returns a store rooted at the given state directory.
func NewSecretStore(stateDir string) *SecretStore {
	return &SecretStore{
		identityPath:   filepath.Join(stateDir, "secrets.key"),
		ciphertextPath: filepath.Join(stateDir, "secrets.age"),
	}
}

// Set stores or replaces one secret and rewrites the ciphertext.
func (s *SecretStore) Set(key, value string) error {
	normalized := strings.ToUpper(strings.TrimSpace(key))
	if !secretKeyPattern.MatchString(normalized) {
		return fmt.Errorf("invalid secret key %q: use letters, numbers, and underscores only", key)
	}
	values, err := s.load()
	if err != nil {
		return err
	}
	values[normalized] = value
	return s.save(values)
}

// Delete removes one secret. Deleting an absent key is an error so
// typos surface instead of silently succeeding.
func (s *SecretStore) Delete(key string) error {
	normalized := strings.ToUpper(strings.TrimSpace(key))
	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[normalized]; !ok {
		return fmt.Errorf("secret %q not found", normalized)
	}
	delete(values, normalized)
	return s.save(values)
}

// Keys lists stored secret names in sorted order. Values are never
// returned in bulk; use Load to resolve them for a run.
func (s *SecretStore) Keys() ([]string, error) {
	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Load decrypts every stored secret for injection into a run.
func (s *SecretStore) Load() ([]Secret, error) {
	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	secrets := make([]Secret, 0, len(keys))
	for _, key := range keys {
		secrets = append(secrets, Secret{Key: key, Value: values[key]})
	}
	return secrets, nil
}

func (s *SecretStore) load() (map[string]string, error) {
	ciphertext, err := os.ReadFile(s.ciphertextPath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secret store: %w", err)
	}

	identity, err := s.identity()
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret store: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted secret store: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("parsing secret store: %w", err)
	}
	return values, nil
}

func (s *SecretStore) save(values map[string]string) error {
	identity, err := s.identity()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding secret store: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	tmp := s.ciphertextPath + ".tmp"
	if err := os.WriteFile(tmp, ciphertext.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing secret store: %w", err)
	}
	if err := os.Rename(tmp, s.ciphertextPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing secret store: %w", err)
	}
	return nil
}

// identity loads the store's x25519 identity, generating one on first
// use.
func (s *SecretStore) identity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(s.identityPath)
	if err == nil {
		identity, parseErr := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if parseErr != nil {
			return nil, fmt.Errorf("parsing secret store identity: %w", parseErr)
		}
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading secret store identity: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating secret store identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(s.identityPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing secret store identity: %w", err)
	}
	return identity, nil
}
