package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"flowgate/internal/engine"
	"flowgate/internal/repository"
	"flowgate/pkg/models"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Warn(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockStore satisfies repository.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}

func (m *MockStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return m.Called(ctx, org).Error(0)
}

func (m *MockStore) GetWorkflow(ctx context.Context, orgID, workflowID string) (*models.Workflow, error) {
	args := m.Called(ctx, orgID, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockStore) GetWorkflowByRemoteID(ctx context.Context, remoteWorkflowID string) (*models.Workflow, error) {
	args := m.Called(ctx, remoteWorkflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return m.Called(ctx, workflow).Error(0)
}

func (m *MockStore) SetWorkflowActivation(ctx context.Context, orgID, workflowID string, status models.WorkflowStatus, remoteWorkflowID *string) error {
	return m.Called(ctx, orgID, workflowID, status, remoteWorkflowID).Error(0)
}

func (m *MockStore) GetExecution(ctx context.Context, orgID, executionID string) (*models.Execution, error) {
	args := m.Called(ctx, orgID, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockStore) GetExecutionByRemoteID(ctx context.Context, remoteExecutionID string) (*models.Execution, error) {
	args := m.Called(ctx, remoteExecutionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockStore) CreateExecution(ctx context.Context, execution *models.Execution) error {
	return m.Called(ctx, execution).Error(0)
}

func (m *MockStore) MarkExecutionWaiting(ctx context.Context, executionID string) (bool, error) {
	args := m.Called(ctx, executionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ResumeExecution(ctx context.Context, executionID string) (bool, error) {
	args := m.Called(ctx, executionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errText *string) (bool, error) {
	args := m.Called(ctx, executionID, status, errText)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateReview(ctx context.Context, review *models.ReviewRequest) error {
	return m.Called(ctx, review).Error(0)
}

func (m *MockStore) GetReview(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
	args := m.Called(ctx, orgID, reviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReviewRequest), args.Error(1)
}

func (m *MockStore) ListPendingReviews(ctx context.Context, orgID string) ([]*models.ReviewRequest, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ReviewRequest), args.Error(1)
}

func (m *MockStore) DecideReview(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error) {
	args := m.Called(ctx, orgID, reviewID, status, reviewedBy, feedback)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) AppendChat(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error) {
	args := m.Called(ctx, orgID, reviewID, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ExpireStaleReviews(ctx context.Context, now time.Time, note string) (int64, error) {
	args := m.Called(ctx, now, note)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) FailExecutionsWithExpiredReviews(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) ReapStuckExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CountPending(ctx context.Context, soon time.Time) (*repository.PendingCounts, error) {
	args := m.Called(ctx, soon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PendingCounts), args.Error(1)
}

func (m *MockStore) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockStore) QueryAudit(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error) {
	args := m.Called(ctx, orgID, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditPage), args.Error(1)
}

func (m *MockStore) SummarizeAudit(ctx context.Context, orgID string, filter models.AuditFilter) ([]*models.AuditDaySummary, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditDaySummary), args.Error(1)
}

func (m *MockStore) PurgeExpiredAudit(ctx context.Context, orgID string, now time.Time) (int64, error) {
	args := m.Called(ctx, orgID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error { return nil }

// MockEngineClient satisfies engine.Client
type MockEngineClient struct {
	mock.Mock
}

func (m *MockEngineClient) CreateWorkflow(ctx context.Context, doc *engine.RemoteWorkflow) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

func (m *MockEngineClient) UpdateWorkflow(ctx context.Context, remoteWorkflowID string, doc *engine.RemoteWorkflow) error {
	return m.Called(ctx, remoteWorkflowID, doc).Error(0)
}

func (m *MockEngineClient) Activate(ctx context.Context, remoteWorkflowID string) error {
	return m.Called(ctx, remoteWorkflowID).Error(0)
}

func (m *MockEngineClient) Deactivate(ctx context.Context, remoteWorkflowID string) error {
	return m.Called(ctx, remoteWorkflowID).Error(0)
}

func (m *MockEngineClient) Resume(ctx context.Context, remoteExecutionID string, decision engine.Decision, feedback string) error {
	return m.Called(ctx, remoteExecutionID, decision, feedback).Error(0)
}

// MockDispatcher counts decision deliveries.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, execution *models.Execution, decision engine.Decision, feedback string) {
	m.Called(ctx, execution, decision, feedback)
}

// newTestAudit builds an AuditService over a store that accepts any insert.
func newTestAudit(store *MockStore) *AuditService {
	store.On("InsertAudit", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewAuditService(store, &NoOpLogger{}, 0)
}
