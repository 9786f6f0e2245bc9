package daemon

import (
	"testing"

	"go.uber.org/fx"
)

// The dependency graph must be complete: every provider's inputs are
// satisfied without running any constructor.
func TestModuleGraph(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{ProfileName: "test"})); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}
