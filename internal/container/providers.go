package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/deed-approval/internal/application/dispatcher"
	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/application/workflow"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	infraLark "github.com/garyjia/deed-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/deed-approval/internal/infrastructure/report"
	"github.com/garyjia/deed-approval/internal/infrastructure/storage"
	"github.com/garyjia/deed-approval/migrations"
	"github.com/garyjia/deed-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds report storage and rendering.
type StorageBundle struct {
	FileStorage port.FileStorage
	Renderer    port.ReportRenderer
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	legacy, err := repository.NewLegacyRepositories(db.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create legacy repositories: %w", err)
	}

	accounts := repository.NewAccountRepository(db.DB, logger)
	return &RepositoryBundle{
		Forms:        repository.NewFormRepository(db.DB, logger),
		Legacy:       legacy,
		Audit:        repository.NewAuditRepository(db.DB, logger),
		StaffReports: repository.NewStaffReportRepository(db.DB, logger),
		FinalReports: repository.NewFinalReportRepository(db.DB, logger),
		Accounts:     accounts,
		Directory:    accounts,
	}, nil
}

// SeedAccounts upserts the configured accounts.
func SeedAccounts(ctx context.Context, repo port.AccountRepository, accounts []entity.Account, logger *zap.Logger) error {
	for i := range accounts {
		acc := accounts[i]
		if err := repo.Upsert(ctx, &acc); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", acc.ID, err)
		}
	}
	if len(accounts) > 0 {
		logger.Info("Accounts seeded", zap.Int("count", len(accounts)))
	}
	return nil
}

// ProvideNotifier returns a Lark messenger when Lark is enabled, otherwise a log-only notifier.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark notifications disabled, notifications are logged only")
		return infraLark.NewLogNotifier(logger), nil
	}

	sdkClient := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)
	return infraLark.NewMessenger(sdkClient, logger), nil
}

// ProvideStorage creates report file storage and the xlsx renderer.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.ReportDir, logger),
		Renderer:    report.NewXLSXRenderer(logger),
	}, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos    *RepositoryBundle
	Notifier port.Notifier
	Workflow *WorkflowConfig
	Logger   *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := kvLogger{z: deps.Logger}

	return &ServiceBundle{
		Reconciler: service.NewLegacyFormReconciler(
			deps.Repos.Forms,
			deps.Repos.Legacy,
			serviceLogger,
			service.WithLegacyFanout(deps.Workflow.LegacyFanout),
			service.WithLegacyListCap(deps.Workflow.LegacyListCap),
			service.WithListDefaultLimit(deps.Workflow.ListDefaultLimit),
		),
		Audit: service.NewAuditTrail(
			deps.Repos.Audit,
			serviceLogger,
			service.WithAuditPageSize(deps.Workflow.AuditPageSize),
		),
		Assembler:    service.NewFinalReportAssembler(nil),
		Notification: service.NewNotificationService(deps.Repos.Directory, deps.Notifier, serviceLogger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *WorkflowConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(kvLogger{z: logger})}
	if cfg != nil && cfg.NotifyTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.NotifyTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Services   *ServiceBundle
	Storage    *StorageBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine and subscribes the notification handlers.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(kvLogger{z: deps.Logger}),
	}
	if deps.Storage != nil {
		opts = append(opts, workflow.WithReportRenderer(deps.Storage.Renderer, deps.Storage.FileStorage))
	}
	if deps.Config != nil && deps.Config.StorageTimeout > 0 {
		opts = append(opts, workflow.WithStorageTimeout(deps.Config.StorageTimeout))
	}

	engine := workflow.NewEngine(workflow.Dependencies{
		Forms:        deps.Repos.Forms,
		Reconciler:   deps.Services.Reconciler,
		StaffReports: deps.Repos.StaffReports,
		FinalReports: deps.Repos.FinalReports,
		Accounts:     deps.Repos.Directory,
		Audit:        deps.Services.Audit,
		Assembler:    deps.Services.Assembler,
		TxManager:    deps.TxManager,
	}, opts...)

	deps.Services.Notification.Register(deps.Dispatcher)

	return engine, nil
}
