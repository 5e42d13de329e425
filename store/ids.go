package store

import (
	"strings"

	"github.com/google/uuid"
)

func shortRandom() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewExecutionID generates an execution id in EXE_{random} format.
func NewExecutionID() string {
	return "EXE_" + shortRandom()
}

// NewActionID generates an action id in ACT_{random} format.
func NewActionID() string {
	return "ACT_" + shortRandom()
}
