// Package jobs runs ETL work as asynq tasks: fact loads, dimension loads and
// the periodic inbox scan that feeds them.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the only queue; the server drains it one task at a time
	// so two loads never touch the same table and period concurrently.
	QueueDefault = "etl"

	TaskLoadFacts = "etl:load_facts"
	TaskLoadDims  = "etl:load_dims"
	TaskScanInbox = "etl:scan_inbox"
)

// LoadFactsPayload describes one fact spreadsheet to ingest. Kind may be
// empty when the file name identifies it.
type LoadFactsPayload struct {
	File      string `json:"file"`
	Kind      string `json:"kind,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
	Recreate  bool   `json:"recreate,omitempty"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	// Archive moves the file out of the inbox once it is handled.
	Archive bool `json:"archive,omitempty"`
}

// LoadDimsPayload loads a single file, or every file of Dir.
type LoadDimsPayload struct {
	File    string `json:"file,omitempty"`
	Dir     string `json:"dir,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
	Archive bool   `json:"archive,omitempty"`
}

type ScanInboxPayload struct {
	Dir string `json:"dir"`
}

func NewLoadFactsTask(p LoadFactsPayload) (*asynq.Task, error) {
	if p.File == "" {
		return nil, fmt.Errorf("%s: file required", TaskLoadFacts)
	}
	return newTask(TaskLoadFacts, p)
}

func NewLoadDimsTask(p LoadDimsPayload) (*asynq.Task, error) {
	if p.File == "" && p.Dir == "" {
		return nil, fmt.Errorf("%s: file or dir required", TaskLoadDims)
	}
	return newTask(TaskLoadDims, p)
}

func NewScanInboxTask(dir string) (*asynq.Task, error) {
	return newTask(TaskScanInbox, ScanInboxPayload{Dir: dir})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, asynq.Queue(QueueDefault)), nil
}
