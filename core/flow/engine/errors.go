package engine

import "fmt"

// UnknownNodeError reports a transition into a node id the graph does not
// contain. The session is left idle so the user can restart cleanly.
type UnknownNodeError struct {
	NodeID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown flow node %q", e.NodeID)
}

// Code satisfies the error-code convention used by the update router.
func (e *UnknownNodeError) Code() string { return "FLOW_UNKNOWN_NODE" }

// HopLimitError reports an auto-advance chain that exceeded the configured
// hop budget without pausing for input.
type HopLimitError struct {
	StartNode string
	Limit     int
}

func (e *HopLimitError) Error() string {
	return fmt.Sprintf("flow exceeded %d hops starting from %q", e.Limit, e.StartNode)
}

func (e *HopLimitError) Code() string { return "FLOW_HOP_LIMIT" }
