// Package core provides the business logic and service layer for the optilab solve system.
package core

import (
	"github.com/optilab/optilab-api/internal/domain/model"
)

// JobStatus represents the lifecycle state of a solve job (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type JobStatus = model.JobStatus

// SolveRequest represents a request to enqueue a solve (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type SolveRequest = model.SolveRequest
