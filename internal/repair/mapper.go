package repair

import (
	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
)

// Mapper associates a failed diagnostic with an ordered list of repair
// candidates. First listed is attempted first; the orchestrator walks
// the whole list.
type Mapper struct {
	table map[string][]string
}

// NewMapper creates the static diagnostic-to-repair table
func NewMapper() *Mapper {
	return &Mapper{
		table: map[string][]string{
			diagnostics.CheckRendering:    {ActionRestartRenderer, ActionRefreshUI},
			diagnostics.CheckBackend:      {ActionReconnectBackend},
			diagnostics.CheckModelAlpha:   {ActionReloadModelAlpha, ActionReconnectBackend},
			diagnostics.CheckModelBeta:    {ActionReloadModelBeta, ActionReconnectBackend},
			diagnostics.CheckTransport:    {ActionReopenTransport, ActionReconnectBackend},
			diagnostics.CheckUI:           {ActionRefreshUI, ActionRestartRenderer},
			diagnostics.CheckMemoryState:  {ActionOptimizeMemory, ActionClearCache},
			diagnostics.CheckMemory:       {ActionOptimizeMemory, ActionClearCache},
			diagnostics.CheckNetwork:      {ActionResetNetwork},
			diagnostics.CheckDependencies: {ActionReinitDependencies},
			diagnostics.CheckCPU:          {ActionThrottleWorkload, ActionClearCache},
			diagnostics.CheckDisk:         {ActionCleanupStorage},
			diagnostics.CheckGoroutines:   {ActionOptimizeMemory},
		},
	}
}

// RepairsFor returns the ordered repair candidates for a diagnostic.
// Unknown diagnostics yield an empty list.
func (m *Mapper) RepairsFor(diagnostic string) []string {
	repairs, ok := m.table[diagnostic]
	if !ok {
		return nil
	}

	out := make([]string, len(repairs))
	copy(out, repairs)
	return out
}
