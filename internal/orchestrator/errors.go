package orchestrator

import (
	"fmt"
	"strings"
)

// DeadlockError means the run stopped with unresolved tasks and no way
// to make progress: either no ready task appeared for two consecutive
// passes, or the maximum-rounds safety limit was hit. Graph validation
// catches structural cycles before a run starts; this guard catches
// runtime stalls.
type DeadlockError struct {
	RunID      string
	Rounds     int
	Unresolved []string
	Reason     string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("run %s deadlocked after %d rounds (%s): unresolved tasks [%s]",
		e.RunID, e.Rounds, e.Reason, strings.Join(e.Unresolved, ", "))
}
