// Package source provides configuration source abstractions and implementations
package source

import (
	"ghostline-core/internal/config/schema"
)

// Source is a configuration layer
type Source interface {
	// Name returns the source name for logging and error messages
	Name() string

	// Priority orders sources; higher priority sources are applied later
	Priority() int

	// LoadInto overlays the values this source knows about onto cfg
	LoadInto(cfg *schema.Root) error
}

// Source priorities
const (
	PriorityDefaults = 1
	PriorityYAML     = 2
	PriorityDotEnv   = 3
	PriorityEnv      = 4
)

// ByPriority implements sort.Interface for []Source based on Priority
type ByPriority []Source

func (a ByPriority) Len() int           { return len(a) }
func (a ByPriority) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByPriority) Less(i, j int) bool { return a[i].Priority() < a[j].Priority() }
