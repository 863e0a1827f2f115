package migration_test

import (
	"context"

	"github.com/example/schema-manager/internal/logging"
	"github.com/example/schema-manager/internal/testfixtures"
)

func loggingContext(ctx context.Context, factory *testfixtures.ManagerFactory) context.Context {
	return logging.ContextWithLogger(ctx, factory.Logger())
}
