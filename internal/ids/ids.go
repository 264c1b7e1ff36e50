// Package ids generates and validates the identifier grammars of the workflow engine
// (spec §3 invariants, §6 "Workflow ID grammar").
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// workflowIDPattern matches "wf_" followed by exactly 8 lowercase hex digits.
var workflowIDPattern = regexp.MustCompile(`^wf_[0-9a-f]{8}$`)

// subAgentIDPattern matches "<task>.item<N>" composite sub-agent IDs.
var subAgentIDPattern = regexp.MustCompile(`^([^.]+)\.item(\d+)$`)

// NewWorkflowID generates a fresh root workflow ID: "wf_" + 8 lowercase hex digits.
func NewWorkflowID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader never fails in practice; a
		// correlation ID is still preferable to a panic if it ever does.
		return "wf_" + uuid.NewString()[:8]
	}
	return "wf_" + hex.EncodeToString(buf)
}

// ValidWorkflowID reports whether id matches the grammar of spec §6.
func ValidWorkflowID(id string) bool {
	return workflowIDPattern.MatchString(id)
}

// SubAgentID builds the composite ID "<task-id>.item<N>" for the N-th (0-based)
// item of a parallel_foreach task, per spec §3/§4.7.
func SubAgentID(taskID string, itemIndex int) string {
	return fmt.Sprintf("%s.item%d", taskID, itemIndex)
}

// ParseSubAgentID splits a composite sub-agent ID back into its task ID and
// item index. ok is false if id does not match the grammar.
func ParseSubAgentID(id string) (taskID string, itemIndex int, ok bool) {
	m := subAgentIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(m[2], "%d", &idx); err != nil {
		return "", 0, false
	}
	return m[1], idx, true
}

// PrefixStepID qualifies a sub-agent-local step ID with its sub-agent ID, producing
// the fully addressable "<task>.item<N>.<step-id>" grammar of spec §3.
func PrefixStepID(subAgentID, stepID string) string {
	return subAgentID + "." + stepID
}

// Correlation returns a process-internal, non-addressable ID for log correlation
// across a sub-agent fan-out. It is never surfaced to the client.
func Correlation() string {
	return uuid.NewString()
}
