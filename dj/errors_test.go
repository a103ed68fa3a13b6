package dj

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/onnwee/dj-tender/commentary"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassUnknown},
		{errors.New("boom"), ClassUnknown},
		{fmt.Errorf("resolution: %w", ErrUpstreamEmpty), ClassUpstreamEmpty},
		{&commentary.PipelineError{Stage: commentary.StageTranscode, Err: errors.New("exit 1")}, ClassPipeline},
		{fmt.Errorf("%w: add tracks: gone", ErrTransient), ClassTransient},
		{fmt.Errorf("recommend: %w", context.DeadlineExceeded), ClassTransient},
		{fmt.Errorf("%w: recommend: %w", ErrTransient, errors.New("decode candidates: unexpected end of JSON input")), ClassTransient},
	}
	for _, c := range cases {
		if got := ClassifyError(c.err); got != c.want {
			t.Errorf("ClassifyError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestErrorClassString(t *testing.T) {
	for c, want := range map[ErrorClass]string{
		ClassUnknown:       "unknown",
		ClassUpstreamEmpty: "upstream_empty",
		ClassPipeline:      "pipeline",
		ClassTransient:     "transient",
	} {
		if c.String() != want {
			t.Errorf("%d.String() = %q, want %q", c, c.String(), want)
		}
	}
}
