package testfixtures

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"github.com/example/schema-manager/internal/migration"
)

// ManagerFactory assists tests with constructing migration managers that use
// deterministic run IDs and clocks and capture their logs.
type ManagerFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logs        *LogBuffer
}

// ManagerFactoryOption configures a ManagerFactory instance.
type ManagerFactoryOption func(*ManagerFactory)

// NewManagerFactory constructs a ManagerFactory with defaults.
func NewManagerFactory(opts ...ManagerFactoryOption) *ManagerFactory {
	factory := &ManagerFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("run"),
		Logs:        &LogBuffer{},
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("run")
	}
	if factory.Logs == nil {
		factory.Logs = &LogBuffer{}
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ManagerFactoryOption {
	return func(factory *ManagerFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the run ID generator used by the factory.
func WithIDGenerator(gen *IDGenerator) ManagerFactoryOption {
	return func(factory *ManagerFactory) {
		factory.IDGenerator = gen
	}
}

// Logger returns a JSON logger writing into the factory's log buffer.
func (f *ManagerFactory) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(f.Logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Manager returns a manager with the given data sources.
func (f *ManagerFactory) Manager(sources ...migration.DataSource) *migration.Manager {
	return migration.NewManagerWithLogger(f.Logger()).
		WithClock(f.Clock.NowFunc()).
		WithIDGenerator(f.IDGenerator.NextFunc()).
		AddDataSource(sources...)
}

// LogBuffer is a goroutine-safe bytes.Buffer for captured log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
