// Package testutil provides testing utilities and helpers for the optilab solve system.
package testutil

import (
	"encoding/json"

	"github.com/optilab/optilab-api/internal/domain/model"
)

// SolveRequestBuilder provides a fluent interface for building SolveRequest objects for testing.
type SolveRequestBuilder struct {
	req *model.SolveRequest
}

// NewSolveRequest creates a new SolveRequestBuilder with sensible defaults.
func NewSolveRequest(modelID int64) *SolveRequestBuilder {
	return &SolveRequestBuilder{
		req: &model.SolveRequest{
			ModelID: modelID,
			Solver:  model.DefaultSolver,
			Timeout: model.DefaultSolveTimeout,
		},
	}
}

// WithDataFileID sets the data file reference.
func (b *SolveRequestBuilder) WithDataFileID(id int64) *SolveRequestBuilder {
	b.req.DataFileID = &id
	return b
}

// WithSolver sets the solver name.
func (b *SolveRequestBuilder) WithSolver(solver string) *SolveRequestBuilder {
	b.req.Solver = solver
	return b
}

// WithOptions sets the solver options.
func (b *SolveRequestBuilder) WithOptions(options json.RawMessage) *SolveRequestBuilder {
	b.req.Options = options
	return b
}

// WithOptionsString sets the solver options from a string.
func (b *SolveRequestBuilder) WithOptionsString(options string) *SolveRequestBuilder {
	b.req.Options = json.RawMessage(options)
	return b
}

// WithTimeout sets the solve timeout in seconds.
func (b *SolveRequestBuilder) WithTimeout(seconds int) *SolveRequestBuilder {
	b.req.Timeout = seconds
	return b
}

// Build returns the constructed SolveRequest.
func (b *SolveRequestBuilder) Build() *model.SolveRequest {
	return b.req
}

// ModelRequestBuilder provides a fluent interface for building CreateModelRequest objects for testing.
type ModelRequestBuilder struct {
	req *model.CreateModelRequest
}

// NewModelRequest creates a new ModelRequestBuilder with a minimal valid model.
func NewModelRequest(name string) *ModelRequestBuilder {
	return &ModelRequestBuilder{
		req: &model.CreateModelRequest{
			Name:         name,
			ModelContent: "var x >= 0;\nmaximize obj: x;\nsubject to cap: x <= 10;\n",
			Tags:         []string{},
		},
	}
}

// WithDescription sets the model description.
func (b *ModelRequestBuilder) WithDescription(description string) *ModelRequestBuilder {
	b.req.Description = &description
	return b
}

// WithContent sets the model source.
func (b *ModelRequestBuilder) WithContent(content string) *ModelRequestBuilder {
	b.req.ModelContent = content
	return b
}

// WithProblemType sets the declared problem type.
func (b *ModelRequestBuilder) WithProblemType(problemType string) *ModelRequestBuilder {
	b.req.ProblemType = &problemType
	return b
}

// WithTags sets the model tags.
func (b *ModelRequestBuilder) WithTags(tags ...string) *ModelRequestBuilder {
	b.req.Tags = tags
	return b
}

// AsTemplate marks the model as a starter template.
func (b *ModelRequestBuilder) AsTemplate() *ModelRequestBuilder {
	b.req.IsTemplate = true
	return b
}

// Build returns the constructed CreateModelRequest.
func (b *ModelRequestBuilder) Build() *model.CreateModelRequest {
	return b.req
}

// DataFileRequestBuilder provides a fluent interface for building CreateDataFileRequest objects for testing.
type DataFileRequestBuilder struct {
	req *model.CreateDataFileRequest
}

// NewDataFileRequest creates a new DataFileRequestBuilder with a minimal valid data file.
func NewDataFileRequest(name string) *DataFileRequestBuilder {
	return &DataFileRequestBuilder{
		req: &model.CreateDataFileRequest{
			Name:        name,
			FileContent: "param demand := 10;\n",
			FileType:    model.DataFileTypeDat,
		},
	}
}

// WithContent sets the data file content.
func (b *DataFileRequestBuilder) WithContent(content string) *DataFileRequestBuilder {
	b.req.FileContent = content
	return b
}

// WithFileType sets the data file type.
func (b *DataFileRequestBuilder) WithFileType(fileType model.DataFileType) *DataFileRequestBuilder {
	b.req.FileType = fileType
	return b
}

// WithSourceExcelPath sets the originating spreadsheet path for imported files.
func (b *DataFileRequestBuilder) WithSourceExcelPath(path string) *DataFileRequestBuilder {
	b.req.SourceExcelPath = &path
	return b
}

// Build returns the constructed CreateDataFileRequest.
func (b *DataFileRequestBuilder) Build() *model.CreateDataFileRequest {
	return b.req
}

// TestScenarioBuilder provides a fluent interface for building test scenarios.
type TestScenarioBuilder struct {
	jobs []JobScenario
}

// JobScenario represents a solve job and the actions to perform on it.
type JobScenario struct {
	Request *model.SolveRequest
	Actions []JobAction
}

// JobAction represents an action to perform on a solve job.
type JobAction struct {
	Type   string // "reserve", "complete", "fail", "cancel", "heartbeat"
	Params map[string]interface{}
}

// NewTestScenario creates a new TestScenarioBuilder.
func NewTestScenario() *TestScenarioBuilder {
	return &TestScenarioBuilder{
		jobs: make([]JobScenario, 0),
	}
}

// AddJob adds a job scenario to the test.
func (b *TestScenarioBuilder) AddJob(request *model.SolveRequest, actions ...JobAction) *TestScenarioBuilder {
	b.jobs = append(b.jobs, JobScenario{
		Request: request,
		Actions: actions,
	})
	return b
}

// AddQueuedJob adds a job that stays queued.
func (b *TestScenarioBuilder) AddQueuedJob(modelID int64) *TestScenarioBuilder {
	return b.AddJob(NewSolveRequest(modelID).Build())
}

// AddRunningJob adds a job that gets reserved and stays running.
func (b *TestScenarioBuilder) AddRunningJob(modelID int64) *TestScenarioBuilder {
	return b.AddJob(NewSolveRequest(modelID).Build(), ReserveAction())
}

// AddFailedJob adds a job that gets reserved and failed.
func (b *TestScenarioBuilder) AddFailedJob(modelID int64, errorMsg string) *TestScenarioBuilder {
	return b.AddJob(NewSolveRequest(modelID).Build(), ReserveAction(), FailAction(errorMsg))
}

// Build returns the constructed job scenarios.
func (b *TestScenarioBuilder) Build() []JobScenario {
	return b.jobs
}

// Action builders for common job actions

// ReserveAction creates a reserve action.
func ReserveAction() JobAction {
	return JobAction{Type: "reserve"}
}

// CompleteAction creates a complete action referencing a persisted run.
func CompleteAction(resultID int64) JobAction {
	return JobAction{
		Type:   "complete",
		Params: map[string]interface{}{"resultID": resultID},
	}
}

// FailAction creates a fail action with an error message.
func FailAction(errorMsg string) JobAction {
	return JobAction{
		Type:   "fail",
		Params: map[string]interface{}{"error": errorMsg},
	}
}

// CancelAction creates a cancel action.
func CancelAction() JobAction {
	return JobAction{Type: "cancel"}
}

// HeartbeatAction creates a heartbeat action with lease seconds.
func HeartbeatAction(leaseSeconds int) JobAction {
	return JobAction{
		Type:   "heartbeat",
		Params: map[string]interface{}{"leaseSeconds": leaseSeconds},
	}
}
