package format

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PreservationTable maps phyto-ecological region names to the percentage
// of the overlap that must be preserved.
type PreservationTable map[string]float64

// DefaultPreservationTable holds the Legal Amazon legal-reserve shares by
// vegetation type.
func DefaultPreservationTable() PreservationTable {
	return PreservationTable{
		"Cerrado":                          35,
		"Savana":                           35,
		"Savana Estépica":                  35,
		"Savana Parque":                    35,
		"Savana Arborizada":                35,
		"Savana Florestada":                35,
		"Savana Gramíneo-Lenhosa":          20,
		"Campinarana":                      20,
		"Formações Pioneiras":              20,
		"Floresta Ombrófila Aberta":        80,
		"Floresta Ombrófila Densa":         80,
		"Floresta Estacional":              80,
		"Floresta Estacional Decidual":     80,
		"Floresta Estacional Semidecidual": 80,
		"Contato Savana/Floresta":          35,
		"Áreas de Tensão Ecológica":        35,
	}
}

// Percent returns the preservation percentage of name. Lookup is exact
// first, then trimmed and case-insensitive. Unknown regions yield 0.
func (t PreservationTable) Percent(name string) float64 {
	if p, ok := t[name]; ok {
		return p
	}
	key := strings.TrimSpace(name)
	for k, p := range t {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return p
		}
	}
	return 0
}

// PreservedArea returns areaHa × percentage(name) / 100.
func (t PreservationTable) PreservedArea(name string, areaHa float64) float64 {
	return areaHa * t.Percent(name) / 100
}

// LoadPreservationTable reads a YAML map of region name to percentage and
// lays it over the defaults.
func LoadPreservationTable(path string) (PreservationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preservation table: %w", err)
	}
	var file map[string]float64
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode preservation table: %w", err)
	}
	t := DefaultPreservationTable()
	for k, v := range file {
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("preservation table: %q: percentage %v out of range", k, v)
		}
		t[k] = v
	}
	return t, nil
}
