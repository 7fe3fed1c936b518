//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxModelNameLen = 255
)

// Problem types a model may declare.
var problemTypes = map[string]struct{}{
	"LP":    {},
	"MIP":   {},
	"NLP":   {},
	"QP":    {},
	"MINLP": {},
}

// ValidProblemType reports whether t names a supported problem class.
func ValidProblemType(t string) bool {
	_, ok := problemTypes[t]
	return ok
}

// AMPLModel represents a stored optimization model (.mod source).
type AMPLModel struct {
	ID           int64      `json:"id"                     db:"id"`
	Name         string     `json:"name"                   db:"name"`
	Description  *string    `json:"description,omitempty"  db:"description"`
	ModelContent string     `json:"model_content"          db:"model_content"`
	ProblemType  *string    `json:"problem_type,omitempty" db:"problem_type"`
	Tags         []string   `json:"tags"                   db:"tags"`
	IsTemplate   bool       `json:"is_template"            db:"is_template"`
	CreatedAt    time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"             db:"updated_at"`
}

// ModelsListOptions controls paging and filtering for listing models.
type ModelsListOptions struct {
	Limit       int
	Offset      int
	ProblemType *string // exact match
}

// CreateModelRequest represents parameters to create an AMPLModel.
type CreateModelRequest struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description,omitempty"`
	ModelContent string   `json:"model_content"`
	ProblemType  *string  `json:"problem_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	IsTemplate   bool     `json:"is_template,omitempty"`
}

// UpdateModelRequest represents parameters to update an AMPLModel.
type UpdateModelRequest struct {
	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	ModelContent *string   `json:"model_content,omitempty"`
	ProblemType  *string   `json:"problem_type,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
}

// Validate validates CreateModelRequest.
func (r *CreateModelRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name is required and cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxModelNameLen {
		return errors.New("name cannot exceed 255 characters")
	}
	if strings.TrimSpace(r.ModelContent) == "" {
		return errors.New("model_content is required")
	}
	if r.ProblemType != nil {
		pt := strings.ToUpper(strings.TrimSpace(*r.ProblemType))
		if !ValidProblemType(pt) {
			return fmt.Errorf("invalid problem_type: %q", *r.ProblemType)
		}
		*r.ProblemType = pt
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return nil
}

// HasUpdates reports whether any field is set in UpdateModelRequest.
func (r *UpdateModelRequest) HasUpdates() bool {
	return r.Name != nil || r.Description != nil || r.ModelContent != nil ||
		r.ProblemType != nil ||
		r.Tags != nil
}

// Validate validates UpdateModelRequest, ensuring at least one field is set and values are sane.
func (r *UpdateModelRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		if n == "" {
			return errors.New("name cannot be empty")
		}
		if utf8.RuneCountInString(n) > maxModelNameLen {
			return errors.New("name cannot exceed 255 characters")
		}
	}
	if r.ModelContent != nil && strings.TrimSpace(*r.ModelContent) == "" {
		return errors.New("model_content cannot be empty")
	}
	if r.ProblemType != nil {
		pt := strings.ToUpper(strings.TrimSpace(*r.ProblemType))
		if !ValidProblemType(pt) {
			return fmt.Errorf("invalid problem_type: %q", *r.ProblemType)
		}
		*r.ProblemType = pt
	}
	return nil
}

// ModelValidation is the outcome of checking a model's syntax without solving.
type ModelValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ModelComponent names one declared entity inside a model.
type ModelComponent struct {
	Name string `json:"name"`
	Size *int   `json:"size,omitempty"`
}

// ModelInfo describes the structure of a model: its sets, parameters,
// variables, objectives and constraints.
type ModelInfo struct {
	Sets        []ModelComponent `json:"sets"`
	Parameters  []ModelComponent `json:"parameters"`
	Variables   []ModelComponent `json:"variables"`
	Objectives  []ModelComponent `json:"objectives"`
	Constraints []ModelComponent `json:"constraints"`
}
