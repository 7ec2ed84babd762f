// Package fleet holds the device registry: which BirukBilug trackers belong
// to the fleet, their display metadata, and whether they are still active.
// Deactivated (lost/decommissioned) devices are hard-filtered out of
// reconciliation; this is the only way a vessel leaves the map.
package fleet

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vessel-monitor/backend/internal/models"
)

// Vessel is one registry entry.
type Vessel struct {
	DeviceID     string `yaml:"deviceId"`
	Name         string `yaml:"name"`
	Municipality string `yaml:"municipality"`
	// Active defaults to true when omitted; only an explicit false marks the
	// tracker as lost/deactivated.
	Active *bool `yaml:"active"`
}

type registryFile struct {
	Vessels []Vessel `yaml:"vessels"`
}

// Registry is the in-memory device registry. Devices absent from the file
// are treated as active unregistered trackers so a missing registry never
// blanks the map.
type Registry struct {
	mu      sync.RWMutex
	vessels map[string]Vessel
}

// NewRegistry returns an empty registry (everything active).
func NewRegistry() *Registry {
	return &Registry{vessels: make(map[string]Vessel)}
}

// LoadRegistry reads the YAML registry file. A missing file yields an empty
// registry; a malformed file is an error.
func LoadRegistry(path string) (*Registry, error) {
	r := NewRegistry()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	for _, v := range file.Vessels {
		if v.DeviceID == "" {
			continue
		}
		r.vessels[v.DeviceID] = v
	}
	return r, nil
}

// IsActive reports whether fixes for the device should be accepted.
func (r *Registry) IsActive(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[deviceID]
	if !ok {
		return true
	}
	return v.Active == nil || *v.Active
}

// Display returns marker label metadata for the device.
func (r *Registry) Display(deviceID string) models.DisplayDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[deviceID]
	if !ok {
		return models.DisplayDetails{}
	}
	return models.DisplayDetails{Name: v.Name, Municipality: v.Municipality}
}

// Len returns the number of registered vessels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vessels)
}
