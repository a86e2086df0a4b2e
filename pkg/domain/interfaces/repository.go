package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Record() RecordRepository
	Turn() TurnRepository
	Job() JobRepository

	Close() error
}
