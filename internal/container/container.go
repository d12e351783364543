package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/deed-approval/internal/application/dispatcher"
	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/application/workflow"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/deed-approval/pkg/database"
)

// Container owns the process-wide components of the approval service
type Container struct {
	config *Config
	logger *zap.Logger

	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle
	notifier     port.Notifier
	storage      *StorageBundle
	dispatcher   dispatcher.Dispatcher
	workflow     workflow.WorkflowEngine
	services     *ServiceBundle

	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Forms        port.FormRepository
	Legacy       map[entity.ServiceType]port.LegacyStore
	Audit        port.AuditRepository
	StaffReports port.StaffReportRepository
	FinalReports port.FinalReportRepository
	Accounts     port.AccountRepository
	Directory    port.AccountDirectory
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reconciler   service.LegacyFormReconciler
	Audit        service.AuditTrail
	Assembler    service.FinalReportAssembler
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg and returns an unstarted container
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

type startStep struct {
	name string
	run  func(ctx context.Context) error
}

// Start builds the components. Each step depends only on the ones before it.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	steps := []startStep{
		{"database", c.initDatabase},
		{"notifier", c.initNotifier},
		{"report storage", c.initStorage},
		{"services", c.initServices},
		{"workflow engine", c.initWorkflow},
	}
	for _, step := range steps {
		started := time.Now()
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component ready",
			zap.String("component", step.name),
			zap.Duration("took", time.Since(started)),
		)
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("legacy_stores", len(c.repositories.Legacy)))
	return nil
}

// Close drains queued notifications, then closes the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	var errList []error
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close database: %w", err))
		}
	}

	if err := errors.Join(errList...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health probes the database and reports which components are wired
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth, 3)}
	set := func(name string, err error) {
		if err != nil {
			status.Overall = false
			status.Components[name] = ComponentHealth{Message: err.Error()}
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	set("database", c.pingDatabase())
	set("dispatcher", wired(c.dispatcher != nil))
	set("workflow", wired(c.workflow != nil))
	return status
}

// HealthError returns the first unhealthy component in name order
func (c *Container) HealthError() error {
	status := c.Health()
	if status.Overall {
		return nil
	}
	for _, name := range []string{"database", "dispatcher", "workflow"} {
		if comp := status.Components[name]; !comp.Healthy {
			return fmt.Errorf("%s unhealthy: %s", name, comp.Message)
		}
	}
	return fmt.Errorf("unhealthy")
}

func (c *Container) pingDatabase() error {
	if c.db == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

var errNotInitialized = errors.New("not initialized")

func wired(ok bool) error {
	if ok {
		return nil
	}
	return errNotInitialized
}

func (c *Container) initDatabase(ctx context.Context) (err error) {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db, c.txManager = bundle.DB, bundle.TransactionMgr

	defer func() {
		if err != nil {
			_ = c.db.Close()
			c.db = nil
		}
	}()

	if c.repositories, err = ProvideRepositories(c.db, c.logger); err != nil {
		return err
	}
	return SeedAccounts(ctx, c.repositories.Accounts, c.config.Accounts, c.logger)
}

func (c *Container) initNotifier(context.Context) (err error) {
	c.notifier, err = ProvideNotifier(&c.config.Lark, c.logger)
	return err
}

func (c *Container) initStorage(context.Context) (err error) {
	c.storage, err = ProvideStorage(&c.config.Storage, c.logger)
	return err
}

func (c *Container) initServices(context.Context) (err error) {
	c.services, err = ProvideServices(&ServiceDeps{
		Repos:    c.repositories,
		Notifier: c.notifier,
		Workflow: &c.config.Workflow,
		Logger:   c.logger,
	})
	return err
}

func (c *Container) initWorkflow(context.Context) (err error) {
	if c.dispatcher, err = ProvideDispatcher(&c.config.Workflow, c.logger); err != nil {
		return err
	}
	c.workflow, err = ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		Services:   c.services,
		Storage:    c.storage,
		TxManager:  c.txManager,
		Dispatcher: c.dispatcher,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	return err
}

// Repositories returns the sqlite-backed stores
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the notification event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the approval workflow engine
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}
