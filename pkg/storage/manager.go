package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"smscraper/pkg/models"
)

// Manager persists scraped records as JSON files and deduplicates by record
// key across runs.
type Manager struct {
	outputDir string
	saved     map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a storage manager rooted at outputDir, scanning any
// records already on disk for duplicate detection.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		saved:     make(map[string]bool),
	}

	if err := manager.scanExistingRecords(); err != nil {
		return nil, fmt.Errorf("failed to scan existing records: %w", err)
	}

	return manager, nil
}

// scanExistingRecords seeds the dedupe map from files already in the output
// directory.
func (m *Manager) scanExistingRecords() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		m.saved[key] = true
	}

	return nil
}

// postKey builds the record key, and thus the filename, for a post.
func postKey(platform, id string) string {
	return fmt.Sprintf("%s_post_%s", platform, id)
}

// profileKey builds the record key for a profile.
func profileKey(platform, username string) string {
	return fmt.Sprintf("%s_profile_%s", platform, username)
}

// IsSaved reports whether a post with the given platform and id is already
// stored.
func (m *Manager) IsSaved(platform, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saved[postKey(platform, id)]
}

// SavePost writes a post record to disk. Posts already saved are skipped and
// reported via the bool return.
func (m *Manager) SavePost(post *models.Post) (bool, error) {
	if post == nil || post.ID == "" {
		return false, fmt.Errorf("post must have an id")
	}

	key := postKey(post.Platform, post.ID)

	m.mu.Lock()
	if m.saved[key] {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	if err := m.writeRecord(key, post); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.saved[key] = true
	m.mu.Unlock()

	return true, nil
}

// SaveProfile writes a profile record to disk, overwriting any previous
// snapshot for the same account.
func (m *Manager) SaveProfile(profile *models.Profile) error {
	if profile == nil || profile.Username == "" {
		return fmt.Errorf("profile must have a username")
	}

	key := profileKey(profile.Platform, profile.Username)
	if err := m.writeRecord(key, profile); err != nil {
		return err
	}

	m.mu.Lock()
	m.saved[key] = true
	m.mu.Unlock()

	return nil
}

// writeRecord marshals v and writes it under key with a temp-file rename so
// a crash never leaves a partial record.
func (m *Manager) writeRecord(key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	filename := filepath.Join(m.outputDir, key+".json")
	tempFile := filename + ".tmp"

	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// LoadPost reads one stored post record back.
func (m *Manager) LoadPost(platform, id string) (*models.Post, error) {
	filename := filepath.Join(m.outputDir, postKey(platform, id)+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var post models.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &post, nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetSavedCount returns the number of stored records
func (m *Manager) GetSavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
