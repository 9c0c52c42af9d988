package memory

import (
	"testing"

	"github.com/syntrixbase/inventory/internal/core/loadorder"
	"github.com/syntrixbase/inventory/internal/core/loadorder/loadordertest"
)

func TestStore(t *testing.T) {
	loadordertest.Run(t, func(t *testing.T) loadorder.Store { return New() })
}
