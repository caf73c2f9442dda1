package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/shizukutanaka/Kaifuku/internal/diagnostics"
)

func TestMapper_KnownDiagnostics(t *testing.T) {
	m := NewMapper()

	repairs := m.RepairsFor(diagnostics.CheckMemory)
	assert.Equal(t, []string{ActionOptimizeMemory, ActionClearCache}, repairs)

	// The tracked memory component maps to the same remediations as the
	// system RAM check.
	repairs = m.RepairsFor(diagnostics.CheckMemoryState)
	assert.Equal(t, []string{ActionOptimizeMemory, ActionClearCache}, repairs)

	repairs = m.RepairsFor(diagnostics.CheckTransport)
	assert.Equal(t, []string{ActionReopenTransport, ActionReconnectBackend}, repairs)
}

func TestMapper_UnknownDiagnosticYieldsEmpty(t *testing.T) {
	m := NewMapper()

	assert.Empty(t, m.RepairsFor("quantum_check"))
}

func TestMapper_ReturnsCopy(t *testing.T) {
	m := NewMapper()

	repairs := m.RepairsFor(diagnostics.CheckMemory)
	repairs[0] = "tampered"

	assert.Equal(t, ActionOptimizeMemory, m.RepairsFor(diagnostics.CheckMemory)[0])
}

func TestMapper_EveryMappedRepairExistsInDefaultCatalog(t *testing.T) {
	catalog := NewCatalog(zaptest.NewLogger(t))
	RegisterDefaults(catalog, Hooks{})

	known := make(map[string]bool)
	for _, name := range catalog.Names() {
		known[name] = true
	}

	m := NewMapper()
	for diagnostic := range m.table {
		for _, repairName := range m.RepairsFor(diagnostic) {
			assert.True(t, known[repairName],
				"diagnostic %s maps to unregistered repair %s", diagnostic, repairName)
		}
	}
}
