// Package mocks provides mock implementations for testing the solve platform.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the repository and engine interfaces in internal/core. Source mode keeps the
// generated methods in declaration order with the interface's parameter names.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mocks for every repository interface in internal/core/interfaces.go:
// MockJobRepository, MockJobCanceller, MockModelRepository,
// MockDataFileRepository, MockRunRepository, MockReaperRepository.
//go:generate go run go.uber.org/mock/mockgen -source=../core/interfaces.go -destination=repositories_mock.go -package=mocks

// Generate the solver engine mock from internal/core/engine.go:
// MockSolverEngine.
//go:generate go run go.uber.org/mock/mockgen -source=../core/engine.go -destination=engine_mock.go -package=mocks
