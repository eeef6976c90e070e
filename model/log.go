package model

import "time"

type LogLevel string

const LOG_LEVEL_INFO LogLevel = "INFO"
const LOG_LEVEL_ERROR LogLevel = "ERROR"

type ExecutionLogEntry struct {
	ExecutionId string    `json:"executionId"`
	NodeId      string    `json:"nodeId"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}
