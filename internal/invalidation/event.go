// Package invalidation drops cached candidates and reports when a
// reference layer changes.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeblew999/plat-overlap/internal/layer"
)

// AllLayers as an event layer invalidates every layer.
const AllLayers = "*"

// Event is a layer-change message.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Layer   string    `json:"layer"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete", "reload":
	default:
		return fmt.Errorf("op must be insert|update|delete|reload")
	}
	l := strings.TrimSpace(e.Layer)
	if l == "" {
		return fmt.Errorf("layer is required")
	}
	if l != AllLayers {
		if err := layer.ValidateID(l); err != nil {
			return err
		}
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
