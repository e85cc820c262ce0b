package cpm

import "github.com/joshharrison/schedloom/internal/graph"

// window is the start/finish pair a constraint is evaluated against.
type window struct {
	start, finish int
}

type constraintFunc func(ref window, lag int) int

// forwardConstraint gives the successor's earliest permissible start from
// one predecessor's early window.
var forwardConstraint = [...]constraintFunc{
	graph.FS: func(p window, lag int) int { return p.finish + lag },
	graph.SS: func(p window, lag int) int { return p.start + lag },
	graph.FF: func(p window, lag int) int { return p.finish + lag },
	graph.SF: func(p window, lag int) int { return p.start + lag },
}

// backwardConstraint gives the predecessor's latest permissible finish from
// one successor's late window.
var backwardConstraint = [...]constraintFunc{
	graph.FS: func(s window, lag int) int { return s.start - lag },
	graph.SS: func(s window, lag int) int { return s.start - lag },
	graph.FF: func(s window, lag int) int { return s.finish - lag },
	graph.SF: func(s window, lag int) int { return s.finish - lag },
}
