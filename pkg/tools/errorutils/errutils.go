package errorutils

import "fmt"

// Stage is the step of a model run a TrainingError happened in
type Stage string

const (
	StageOpen    Stage = "open"
	StageFit     Stage = "fit"
	StagePredict Stage = "predict"
	StageScore   Stage = "score"
	StageLog     Stage = "log"
)

// TrainingError is returned when a model entry fails, it aborts the rest of the training loop
type TrainingError struct {
	Model string
	Stage Stage
	Err   error
}

func NewTrainingError(model string, stage Stage, err error) *TrainingError {
	return &TrainingError{Model: model, Stage: stage, Err: err}
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("model %s failed at %s: %v", e.Model, e.Stage, e.Err)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// LaunchError describes an UI process which could not be started or exited abnormally
type LaunchError struct {
	TaskID  string
	Command string
	Err     error
}

func NewLaunchError(taskID, command string, err error) *LaunchError {
	return &LaunchError{TaskID: taskID, Command: command, Err: err}
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("ui task %s (%s): %v", e.TaskID, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
