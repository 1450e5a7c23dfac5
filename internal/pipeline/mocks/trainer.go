package mocks

import (
	"errors"

	"github.com/staylens/staylens/internal/dataset"
	"github.com/staylens/staylens/internal/model"
)

// MockTrainer is a mock implementation of the pipeline.Trainer interface for
// testing orchestration without fitting real trees.
type MockTrainer struct {
	TrainFunc  func(ds *dataset.Dataset) (model.ImportanceVector, error)
	ConfigFunc func() model.Config
}

// Train implements the pipeline.Trainer interface.
func (m *MockTrainer) Train(ds *dataset.Dataset) (model.ImportanceVector, error) {
	if m.TrainFunc != nil {
		return m.TrainFunc(ds)
	}
	return nil, errors.New("TrainFunc not implemented")
}

// Config implements the pipeline.Trainer interface.
func (m *MockTrainer) Config() model.Config {
	if m.ConfigFunc != nil {
		return m.ConfigFunc()
	}
	return model.Config{}
}
