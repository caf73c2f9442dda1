// Package repair holds the catalog of named repair actions and the
// static table mapping failed diagnostics to candidate repairs. Every
// action is idempotent: applying it when the underlying problem is
// already resolved is a no-op success.
package repair

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Action is one named repair routine
type Action struct {
	Name        string
	Category    string
	Description string
	Run         func(ctx context.Context) error
}

// Catalog is the registry of repair actions. Apply converts every
// failure mode (unknown name, error, panic) into a false return; a
// repair never surfaces as an exception to the orchestrator.
type Catalog struct {
	logger  *zap.Logger
	actions map[string]Action
	order   []string
	mu      sync.RWMutex
}

// NewCatalog creates an empty catalog
func NewCatalog(logger *zap.Logger) *Catalog {
	return &Catalog{
		logger:  logger,
		actions: make(map[string]Action),
	}
}

// Register adds or replaces an action
func (c *Catalog) Register(action Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actions[action.Name]; !exists {
		c.order = append(c.order, action.Name)
	}
	c.actions[action.Name] = action
}

// Get looks up an action by name
func (c *Catalog) Get(name string) (Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	action, ok := c.actions[name]
	return action, ok
}

// Names returns registered action names in registration order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Apply executes a named repair and reports success. Unknown names
// return false without error; action errors and panics are logged and
// returned as false.
func (c *Catalog) Apply(ctx context.Context, name string) bool {
	action, ok := c.Get(name)
	if !ok {
		c.logger.Warn("Unknown repair action", zap.String("name", name))
		return false
	}

	err := runGuarded(ctx, action)
	if err != nil {
		c.logger.Error("Repair action failed",
			zap.String("name", name),
			zap.String("category", action.Category),
			zap.Error(err),
		)
		return false
	}

	c.logger.Info("Repair action applied",
		zap.String("name", name),
		zap.String("category", action.Category),
	)
	return true
}

func runGuarded(ctx context.Context, action Action) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("repair panicked: %v", rec)
		}
	}()
	return action.Run(ctx)
}
