package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"smscraper/pkg/models"
)

func testPost(id string) *models.Post {
	return &models.Post{
		ID:        id,
		Platform:  "twitter",
		Author:    "someone",
		Content:   "hello",
		Likes:     3,
		ScrapedAt: time.Now().UTC(),
	}
}

func TestManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if manager.GetSavedCount() != 0 {
		t.Error("Expected initial record count to be 0")
	}
	if manager.IsSaved("twitter", "123") {
		t.Error("Expected IsSaved to return false for a new record")
	}

	saved, err := manager.SavePost(testPost("123"))
	if err != nil {
		t.Fatalf("Failed to save post: %v", err)
	}
	if !saved {
		t.Error("Expected first save to report saved=true")
	}

	expectedPath := filepath.Join(tempDir, "twitter_post_123.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Error("Expected record file to be created")
	}

	if !manager.IsSaved("twitter", "123") {
		t.Error("Expected IsSaved to return true after save")
	}

	// A second save of the same post is a no-op.
	saved, err = manager.SavePost(testPost("123"))
	if err != nil {
		t.Fatalf("Duplicate save failed: %v", err)
	}
	if saved {
		t.Error("Expected duplicate save to report saved=false")
	}
	if manager.GetSavedCount() != 1 {
		t.Errorf("Expected record count 1, got %d", manager.GetSavedCount())
	}

	// Records round-trip.
	loaded, err := manager.LoadPost("twitter", "123")
	if err != nil {
		t.Fatalf("Failed to load post: %v", err)
	}
	if loaded.Author != "someone" || loaded.Likes != 3 {
		t.Errorf("Loaded post does not match saved post: %+v", loaded)
	}
}

func TestManagerScansExistingRecords(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if _, err := manager.SavePost(testPost("1")); err != nil {
		t.Fatalf("Failed to save post: %v", err)
	}

	// A second manager over the same directory must see the record.
	manager2, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create second manager: %v", err)
	}
	if !manager2.IsSaved("twitter", "1") {
		t.Error("Expected existing record to be detected on scan")
	}
	if manager2.GetSavedCount() != 1 {
		t.Errorf("Expected record count 1 after scan, got %d", manager2.GetSavedCount())
	}
}

func TestSaveProfile(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(tempDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	profile := &models.Profile{
		Platform:       "instagram",
		Username:       "someone",
		FollowersCount: 42,
		ScrapedAt:      time.Now().UTC(),
	}
	if err := manager.SaveProfile(profile); err != nil {
		t.Fatalf("Failed to save profile: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "instagram_profile_someone.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Error("Expected profile file to be created")
	}

	// Profiles overwrite freely.
	profile.FollowersCount = 43
	if err := manager.SaveProfile(profile); err != nil {
		t.Fatalf("Failed to overwrite profile: %v", err)
	}
	if manager.GetSavedCount() != 1 {
		t.Errorf("Expected record count 1, got %d", manager.GetSavedCount())
	}
}

func TestSavePostRejectsEmptyID(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if _, err := manager.SavePost(&models.Post{Platform: "twitter"}); err == nil {
		t.Error("Expected an error for a post without an id")
	}
}
