package dj

import (
	"context"
	"errors"

	"github.com/onnwee/dj-tender/commentary"
)

var (
	// ErrUpstreamEmpty means recommendation or resolution produced nothing; the session ends.
	ErrUpstreamEmpty = errors.New("no playable recommendations")
	// ErrPipeline is any commentary render failure; the cycle continues without commentary.
	ErrPipeline = commentary.ErrPipeline
	// ErrTransient covers recommender and queue failures.
	ErrTransient = errors.New("transient infrastructure failure")

	ErrNoSession      = errors.New("no dj session for this guild")
	ErrSessionExists  = errors.New("a dj session is already running")
	ErrNothingPlaying = errors.New("nothing is playing")
)

type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassUpstreamEmpty
	ClassPipeline
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUpstreamEmpty:
		return "upstream_empty"
	case ClassPipeline:
		return "pipeline"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ClassifyError maps an error onto the failure taxonomy used for handling and metrics.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrUpstreamEmpty):
		return ClassUpstreamEmpty
	case errors.Is(err, ErrPipeline):
		return ClassPipeline
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassUnknown
	}
}
