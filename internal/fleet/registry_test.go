package fleet

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write registry file: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeRegistry(t, `
vessels:
  - deviceId: BB-0001
    name: Bantay Dagat 1
    municipality: Bolinao
  - deviceId: BB-0002
    name: Lost Tracker
    active: false
`)

	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("Failed to load registry: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 vessels, got %d", r.Len())
	}

	if !r.IsActive("BB-0001") {
		t.Error("Expected BB-0001 active (implicit)")
	}
	if r.IsActive("BB-0002") {
		t.Error("Expected BB-0002 deactivated")
	}
	if !r.IsActive("BB-UNREGISTERED") {
		t.Error("Expected unknown device to default to active")
	}

	d := r.Display("BB-0001")
	if d.Name != "Bantay Dagat 1" || d.Municipality != "Bolinao" {
		t.Errorf("Unexpected display metadata: %+v", d)
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected missing file to yield empty registry, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d entries", r.Len())
	}
	if !r.IsActive("anything") {
		t.Error("Expected empty registry to treat all devices as active")
	}
}

func TestLoadRegistryMalformed(t *testing.T) {
	path := writeRegistry(t, "vessels: [unclosed")
	if _, err := LoadRegistry(path); err == nil {
		t.Error("Expected error for malformed registry")
	}
}
