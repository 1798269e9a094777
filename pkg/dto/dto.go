package dto

import "github.com/tass-io/trainer/pkg/launcher"

type UITasksResponse struct {
	Running int                 `json:"running"`
	Tasks   []launcher.TaskInfo `json:"tasks"`
}
