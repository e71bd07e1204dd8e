package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"flowgate/internal/auth"
	"flowgate/internal/engine"
	"flowgate/internal/repository"
	"flowgate/internal/services"
	"flowgate/pkg/models"
)

const (
	testOrg       = "org-1"
	testReviewer  = "alice@example.com"
	webhookSecret = "wh-secret"
	cleanupSecret = "cl-secret"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, execution *models.Execution, decision engine.Decision, feedback string) {
}

// stubStore overrides just the Store methods a test exercises; calling an
// unconfigured method panics, which is exactly what we want in a test.
type stubStore struct {
	repository.Store

	getReview    func(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error)
	decideReview func(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error)
	appendChat   func(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error)
	listPending  func(ctx context.Context, orgID string) ([]*models.ReviewRequest, error)
	insertAudit  func(ctx context.Context, entry *models.AuditLogEntry) error
	queryAudit   func(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error)
	purgeAudit   func(ctx context.Context, orgID string, now time.Time) (int64, error)
	expireStale  func(ctx context.Context, now time.Time, note string) (int64, error)
	failExpired  func(ctx context.Context) (int64, error)
	reapStuck    func(ctx context.Context, olderThan time.Time) (int64, error)
	countPending func(ctx context.Context, soon time.Time) (*repository.PendingCounts, error)
}

func (s *stubStore) GetReview(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
	return s.getReview(ctx, orgID, reviewID)
}

func (s *stubStore) DecideReview(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error) {
	return s.decideReview(ctx, orgID, reviewID, status, reviewedBy, feedback)
}

func (s *stubStore) AppendChat(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error) {
	return s.appendChat(ctx, orgID, reviewID, msg)
}

func (s *stubStore) ListPendingReviews(ctx context.Context, orgID string) ([]*models.ReviewRequest, error) {
	return s.listPending(ctx, orgID)
}

func (s *stubStore) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if s.insertAudit == nil {
		return nil
	}
	return s.insertAudit(ctx, entry)
}

func (s *stubStore) QueryAudit(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error) {
	return s.queryAudit(ctx, orgID, filter, page, pageSize)
}

func (s *stubStore) PurgeExpiredAudit(ctx context.Context, orgID string, now time.Time) (int64, error) {
	return s.purgeAudit(ctx, orgID, now)
}

func (s *stubStore) ExpireStaleReviews(ctx context.Context, now time.Time, note string) (int64, error) {
	return s.expireStale(ctx, now, note)
}

func (s *stubStore) FailExecutionsWithExpiredReviews(ctx context.Context) (int64, error) {
	return s.failExpired(ctx)
}

func (s *stubStore) ReapStuckExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.reapStuck(ctx, olderThan)
}

func (s *stubStore) CountPending(ctx context.Context, soon time.Time) (*repository.PendingCounts, error) {
	return s.countPending(ctx, soon)
}

type testIdentity struct {
	orgID string
	email string
	admin bool
}

// newTestServer wires a Server over the stub store with an auth middleware
// that injects a fixed caller identity, the way RequireAuth would.
func newTestServer(store repository.Store, identity *testIdentity) (*echo.Echo, *Server) {
	logger := noopLogger{}
	audit := services.NewAuditService(store, logger, 0)
	srv := &Server{
		Reviews:       services.NewReviewService(store, stubDispatcher{}, audit, logger),
		Sweeper:       services.NewSweeper(store, audit, logger, 0),
		Audit:         audit,
		Logger:        logger,
		WebhookSecret: webhookSecret,
		CleanupSecret: cleanupSecret,
	}

	authed := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if identity == nil {
				return problem(c, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			}
			ctx := auth.WithIdentity(c.Request().Context(), identity.orgID, identity.email, identity.admin)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}

	e := echo.New()
	srv.RegisterRoutes(e, authed)
	return e, srv
}

func doJSON(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
}

func TestAPIRequiresAuth(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/reviews", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReviewDecision_Approve(t *testing.T) {
	review := &models.ReviewRequest{
		ID: "rev-1", OrganizationID: testOrg, ExecutionID: "exec-1",
		Status: models.ReviewStatusApproved,
	}
	execution := &models.Execution{ID: "exec-1", OrganizationID: testOrg, Status: models.ExecutionStatusWaitingReview}

	store := &stubStore{
		decideReview: func(ctx context.Context, orgID, reviewID string, status models.ReviewStatus, reviewedBy string, feedback *string) (bool, error) {
			assert.Equal(t, testOrg, orgID)
			assert.Equal(t, models.ReviewStatusApproved, status)
			assert.Equal(t, testReviewer, reviewedBy)
			return true, nil
		},
		getReview: func(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
			return review, nil
		},
	}
	store.Store = execStub{execution: execution}

	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodPost, "/api/v1/reviews/rev-1/decision",
		`{"decision":"approve"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result services.DecisionResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Applied)
	assert.Equal(t, models.ReviewStatusApproved, result.Review.Status)
}

// execStub backs the post-decision execution settlement.
type execStub struct {
	repository.Store
	execution *models.Execution
}

func (s execStub) GetExecution(ctx context.Context, orgID, executionID string) (*models.Execution, error) {
	return s.execution, nil
}

func (s execStub) ResumeExecution(ctx context.Context, executionID string) (bool, error) {
	return true, nil
}

func (s execStub) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errText *string) (bool, error) {
	return true, nil
}

func (s execStub) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return nil
}

func TestReviewDecision_RejectWithoutFeedbackIs400(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodPost, "/api/v1/reviews/rev-1/decision",
		`{"decision":"reject"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
}

func TestReviewDecision_UnknownDecisionIs400(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodPost, "/api/v1/reviews/rev-1/decision",
		`{"decision":"postpone"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReview_MissingIs404(t *testing.T) {
	store := &stubStore{
		getReview: func(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
			return nil, models.ErrNotFound
		},
	}
	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodGet, "/api/v1/reviews/missing", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var p ProblemDetails
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusNotFound, p.Status)
	assert.Equal(t, "about:blank", p.Type)
}

func TestReviewChat_ClosedGateIs400(t *testing.T) {
	store := &stubStore{
		appendChat: func(ctx context.Context, orgID, reviewID string, msg models.ChatMessage) (bool, error) {
			return false, nil
		},
		getReview: func(ctx context.Context, orgID, reviewID string) (*models.ReviewRequest, error) {
			return &models.ReviewRequest{ID: reviewID, Status: models.ReviewStatusApproved}, nil
		},
	}
	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodPost, "/api/v1/reviews/rev-1/chat",
		`{"sender":"alice@example.com","text":"hold on"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditPurge_NonAdminIs403(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, &testIdentity{orgID: testOrg, email: testReviewer, admin: false})

	rec := doJSON(e, http.MethodPost, "/api/v1/audit/purge", "", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditPurge_AdminSucceeds(t *testing.T) {
	store := &stubStore{
		purgeAudit: func(ctx context.Context, orgID string, now time.Time) (int64, error) {
			return 7, nil
		},
	}
	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer, admin: true})

	rec := doJSON(e, http.MethodPost, "/api/v1/audit/purge", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int64
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body["purged"])
}

func TestAuditQuery_PassesFilterAndPaging(t *testing.T) {
	var gotFilter models.AuditFilter
	var gotPage, gotPageSize int
	store := &stubStore{
		queryAudit: func(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error) {
			gotFilter, gotPage, gotPageSize = filter, page, pageSize
			return &models.AuditPage{Entries: []*models.AuditLogEntry{}, Page: page, PageSize: pageSize}, nil
		},
	}
	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodGet,
		"/api/v1/audit?actor=human&eventType=review_response&page=2&pageSize=25", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActorHuman, gotFilter.Actor)
	assert.Equal(t, models.AuditEventReviewResponse, gotFilter.EventType)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 25, gotPageSize)
}

func TestAuditQuery_BadDateIs400(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodGet, "/api/v1/audit?startDate=yesterday", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineWebhook_BadSecretIs401(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodPost, "/webhooks/engine",
		`{"type":"review_request","payload":{}}`,
		map[string]string{secretHeader: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEngineWebhook_MalformedPayloadIs400(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodPost, "/webhooks/engine",
		`{"type":"review_request","payload":{"workflow_id":""}}`,
		map[string]string{secretHeader: webhookSecret})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineWebhook_UnknownTypeIs400(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodPost, "/webhooks/engine",
		`{"type":"pinged","payload":{}}`,
		map[string]string{secretHeader: webhookSecret})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanup_BadSecretIs401(t *testing.T) {
	e, _ := newTestServer(&stubStore{}, nil)

	rec := doJSON(e, http.MethodPost, "/cleanup", "", map[string]string{secretHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/cleanup", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCleanup_RunReportsCounts(t *testing.T) {
	store := &stubStore{
		expireStale: func(ctx context.Context, now time.Time, note string) (int64, error) { return 2, nil },
		failExpired: func(ctx context.Context) (int64, error) { return 1, nil },
		reapStuck:   func(ctx context.Context, olderThan time.Time) (int64, error) { return 0, nil },
	}
	e, _ := newTestServer(store, nil)

	rec := doJSON(e, http.MethodPost, "/cleanup", "", map[string]string{secretHeader: cleanupSecret})

	assert.Equal(t, http.StatusOK, rec.Code)
	var result repository.SweepResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(2), result.ExpiredReviews)
	assert.Equal(t, int64(1), result.FailedExecutions)
	assert.Zero(t, result.ReapedExecutions)
}

func TestCleanupStatus(t *testing.T) {
	store := &stubStore{
		countPending: func(ctx context.Context, soon time.Time) (*repository.PendingCounts, error) {
			return &repository.PendingCounts{PendingReviews: 5, ExpiringSoon: 2, WaitingExecutions: 4}, nil
		},
	}
	e, _ := newTestServer(store, nil)

	rec := doJSON(e, http.MethodGet, "/cleanup", "", map[string]string{secretHeader: cleanupSecret})

	assert.Equal(t, http.StatusOK, rec.Code)
	var counts repository.PendingCounts
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 5, counts.PendingReviews)
	assert.Equal(t, 2, counts.ExpiringSoon)
}

func TestListPendingReviews(t *testing.T) {
	store := &stubStore{
		listPending: func(ctx context.Context, orgID string) ([]*models.ReviewRequest, error) {
			assert.Equal(t, testOrg, orgID)
			return []*models.ReviewRequest{{ID: "rev-1", Status: models.ReviewStatusPending}}, nil
		},
	}
	e, _ := newTestServer(store, &testIdentity{orgID: testOrg, email: testReviewer})

	rec := doJSON(e, http.MethodGet, "/api/v1/reviews", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var reviews []*models.ReviewRequest
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	assert.Len(t, reviews, 1)
	assert.Equal(t, "rev-1", reviews[0].ID)
}
