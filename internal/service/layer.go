package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrLayerNotFound is returned for unknown layer ids.
var ErrLayerNotFound = errors.New("layer not found")

// LayerService manages the reference-layer catalog.
type LayerService struct {
	dataDir string
	bus     *EventBus
	layers  map[string]LayerConfig
	mu      sync.RWMutex
}

// NewLayerService creates a layer service. The catalog is read from
// <dataDir>/layers.json, or seeded with DefaultCatalog when the file is
// missing. Mutations are published on bus when it is not nil.
func NewLayerService(dataDir string, bus *EventBus) *LayerService {
	s := &LayerService{
		dataDir: dataDir,
		bus:     bus,
		layers:  make(map[string]LayerConfig),
	}
	if !s.loadFromDisk() {
		for _, l := range DefaultCatalog() {
			s.layers[l.ID] = l
		}
	}
	return s
}

// List returns all layer configurations.
func (s *LayerService) List() map[string]LayerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]LayerConfig, len(s.layers))
	for k, v := range s.layers {
		result[k] = v
	}
	return result
}

// Ordered returns the layers in catalog order. With enabledOnly, disabled
// layers are left out.
func (s *LayerService) Ordered(enabledOnly bool) []LayerConfig {
	s.mu.RLock()
	out := make([]LayerConfig, 0, len(s.layers))
	for _, l := range s.layers {
		if enabledOnly && !l.Enabled {
			continue
		}
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Registry returns the registry layer, if one is configured.
func (s *LayerService) Registry() (LayerConfig, bool) {
	for _, l := range s.Ordered(false) {
		if l.Registry {
			return l, true
		}
	}
	return LayerConfig{}, false
}

// SetRegistry marks id as the only registry layer. The change is kept in
// memory; the catalog file is left as is.
func (s *LayerService) SetRegistry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[id]; !exists {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	for k, l := range s.layers {
		l.Registry = k == id
		s.layers[k] = l
	}
	return nil
}

// Get returns a layer by ID.
func (s *LayerService) Get(id string) (LayerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[id]
	return layer, ok
}

// Create adds a new layer configuration.
func (s *LayerService) Create(layer LayerConfig) (LayerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if layer.ID == "" {
		layer.ID = generateID(layer.Name)
	}
	if layer.ID == "" {
		return LayerConfig{}, fmt.Errorf("layer id cannot be derived from name %q", layer.Name)
	}
	if _, exists := s.layers[layer.ID]; exists {
		return LayerConfig{}, fmt.Errorf("layer with ID %q already exists", layer.ID)
	}
	if layer.Order == 0 {
		layer.Order = len(s.layers)
	}

	s.layers[layer.ID] = layer
	if err := s.saveToDisk(); err != nil {
		return LayerConfig{}, err
	}
	s.publish("created", layer.ID)
	return layer, nil
}

// Update replaces a layer configuration by ID.
func (s *LayerService) Update(id string, layer LayerConfig) (LayerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[id]; !exists {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}

	layer.ID = id
	s.layers[id] = layer
	if err := s.saveToDisk(); err != nil {
		return LayerConfig{}, err
	}
	s.publish("updated", id)
	return layer, nil
}

// Delete removes a layer by ID.
func (s *LayerService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.layers[id]; !exists {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}

	delete(s.layers, id)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	s.publish("deleted", id)
	return nil
}

// Touch announces that the data behind a layer changed. An empty id
// announces a change of every layer.
func (s *LayerService) Touch(id string) {
	s.publish("reloaded", id)
}

func (s *LayerService) publish(action, id string) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceLayers, Action: action, ID: id})
	}
}

// configFile returns the path to the layers config file.
func (s *LayerService) configFile() string {
	return filepath.Join(s.dataDir, "layers.json")
}

// loadFromDisk reports whether a catalog file was read.
func (s *LayerService) loadFromDisk() bool {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return false
	}

	var layers map[string]LayerConfig
	if err := json.Unmarshal(data, &layers); err != nil {
		return false
	}
	for id, l := range layers {
		l.ID = id
		layers[id] = l
	}
	s.layers = layers
	return true
}

// saveToDisk persists layer configurations to disk.
func (s *LayerService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.layers, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
