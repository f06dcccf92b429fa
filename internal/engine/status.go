package engine

import "strings"

// BlockStatus reports what happened during one ProcessBlock call as a
// set of flags. The audio context returns it without allocating; hosts
// count or log transitions from their own goroutines.
type BlockStatus uint32

const (
	// StatusRoutingApplied marks that a pending routing update was
	// consumed and installed as the new smoothing target.
	StatusRoutingApplied BlockStatus = 1 << iota
	// StatusRoutingRejected marks that a pending routing update failed
	// validation; the previous target was retained.
	StatusRoutingRejected
	// StatusBackendFailed marks that the compute backend failed and the
	// block's outputs were replaced with silence.
	StatusBackendFailed
	// StatusBlockOversize marks that the requested block length
	// exceeded the specification's maximum; the block was not processed
	// and the outputs were silenced.
	StatusBlockOversize
)

// Failed reports whether anything other than the requested mix reached
// the outputs.
func (s BlockStatus) Failed() bool {
	return s&(StatusRoutingRejected|StatusBackendFailed|StatusBlockOversize) != 0
}

func (s BlockStatus) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	if s&StatusRoutingApplied != 0 {
		parts = append(parts, "routing-applied")
	}
	if s&StatusRoutingRejected != 0 {
		parts = append(parts, "routing-rejected")
	}
	if s&StatusBackendFailed != 0 {
		parts = append(parts, "backend-failed")
	}
	if s&StatusBlockOversize != 0 {
		parts = append(parts, "block-oversize")
	}
	return strings.Join(parts, "|")
}
