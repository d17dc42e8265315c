package dto

import "github.com/HRV220/plate-detect/models"

type TaskCreatedResponse struct {
	TaskID string `json:"task_id"`
}

type TaskStatusResponse struct {
	TaskID  string              `json:"task_id"`
	Status  string              `json:"status"`
	Results []models.FileResult `json:"results"`
	Error   string              `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
