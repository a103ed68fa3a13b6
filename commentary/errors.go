package commentary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPipeline matches every *PipelineError via errors.Is.
var ErrPipeline = errors.New("commentary pipeline failed")

type Stage string

const (
	StageSetup     Stage = "setup"
	StageSynth     Stage = "synth"
	StageTranscode Stage = "transcode"
	StageProbe     Stage = "probe"
)

// PipelineError folds both subprocesses' exit status and diagnostics into one error.
type PipelineError struct {
	Stage           Stage
	SynthErr        error
	TranscodeErr    error
	SynthStderr     string
	TranscodeStderr string
	// Err is set for failures outside the two subprocesses.
	Err error
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "commentary %s failed", e.Stage)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.SynthErr != nil {
		fmt.Fprintf(&b, "; synth: %v", e.SynthErr)
		if s := strings.TrimSpace(e.SynthStderr); s != "" {
			fmt.Fprintf(&b, " (%s)", s)
		}
	}
	if e.TranscodeErr != nil {
		fmt.Fprintf(&b, "; transcode: %v", e.TranscodeErr)
		if s := strings.TrimSpace(e.TranscodeStderr); s != "" {
			fmt.Fprintf(&b, " (%s)", s)
		}
	}
	return b.String()
}

func (e *PipelineError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Err, e.SynthErr, e.TranscodeErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *PipelineError) Is(target error) bool { return target == ErrPipeline }
