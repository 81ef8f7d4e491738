package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRecordingArchive = "recordings.archive"

const TaskLeadImport = "leads.import"

type RecordingArchivePayload struct {
	LeadID string `json:"leadId"`
	CallID string `json:"callId"`
	Phone  string `json:"phone"`
}

type LeadImportPayload struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func NewRecordingArchiveTask(payload RecordingArchivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecordingArchive, data), nil
}

func ParseRecordingArchivePayload(task *asynq.Task) (RecordingArchivePayload, error) {
	var payload RecordingArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RecordingArchivePayload{}, err
	}
	return payload, nil
}

func NewLeadImportTask(payload LeadImportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadImport, data), nil
}

func ParseLeadImportPayload(task *asynq.Task) (LeadImportPayload, error) {
	var payload LeadImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadImportPayload{}, err
	}
	return payload, nil
}
