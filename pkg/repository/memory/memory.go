package memory

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/domain/interfaces"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = goerr.New("not found")

// Memory is an in-memory implementation of interfaces.Repository,
// used for development mode and tests.
type Memory struct {
	record *recordRepository
	turn   *turnRepository
	job    *jobRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		record: newRecordRepository(),
		turn:   newTurnRepository(),
		job:    newJobRepository(),
	}
}

func (m *Memory) Record() interfaces.RecordRepository {
	return m.record
}

func (m *Memory) Turn() interfaces.TurnRepository {
	return m.turn
}

func (m *Memory) Job() interfaces.JobRepository {
	return m.job
}

func (m *Memory) Close() error {
	return nil
}
