package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/middleware"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

const testPrincipal = "claims-service"

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	return l
}

// newTestRouter creates a gin engine with an authenticated principal.
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, testPrincipal)
		c.Next()
	})

	return r
}

// doRequest performs an HTTP request against the test router and returns the recorder.
func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// mockLedger implements api.LedgerService for testing.
type mockLedger struct {
	appendFn     func(ctx context.Context, req models.AppendEventRequest) (*models.AuditEvent, error)
	listFn       func(ctx context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error)
	proofFn      func(ctx context.Context, eventID string) (*models.MerkleProof, error)
	listBlocksFn func(ctx context.Context, limit, offset int) ([]models.BlockHeader, bool, error)
	blockFn      func(ctx context.Context, n uint64) (*models.Block, error)
	sealFn       func(ctx context.Context) (*models.Block, error)
	verifyFn     func(ctx context.Context) models.VerificationReport
	lastFn       func(ctx context.Context) *models.VerificationReport
	statusFn     func() service.ChainStatus
}

func (m *mockLedger) AppendEvent(ctx context.Context, req models.AppendEventRequest) (*models.AuditEvent, error) {
	return m.appendFn(ctx, req)
}

func (m *mockLedger) ListEvents(ctx context.Context, opts models.QueryOpts) ([]models.AuditEvent, bool, error) {
	return m.listFn(ctx, opts)
}

func (m *mockLedger) Proof(ctx context.Context, eventID string) (*models.MerkleProof, error) {
	return m.proofFn(ctx, eventID)
}

func (m *mockLedger) ListBlocks(ctx context.Context, limit, offset int) ([]models.BlockHeader, bool, error) {
	return m.listBlocksFn(ctx, limit, offset)
}

func (m *mockLedger) Block(ctx context.Context, n uint64) (*models.Block, error) {
	return m.blockFn(ctx, n)
}

func (m *mockLedger) Seal(ctx context.Context) (*models.Block, error) {
	return m.sealFn(ctx)
}

func (m *mockLedger) Verify(ctx context.Context) models.VerificationReport {
	return m.verifyFn(ctx)
}

func (m *mockLedger) LastVerification(ctx context.Context) *models.VerificationReport {
	if m.lastFn == nil {
		return nil
	}
	return m.lastFn(ctx)
}

func (m *mockLedger) Status() service.ChainStatus {
	return m.statusFn()
}

// mockReports implements api.ReportGenerator for testing.
type mockReports struct {
	generateFn func(ctx context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error)
}

func (m *mockReports) Generate(ctx context.Context, standard string, start, end time.Time) (*models.ComplianceReport, error) {
	return m.generateFn(ctx, standard, start, end)
}

// checkFunc adapts a function to api.HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testEvent(id string) *models.AuditEvent {
	return &models.AuditEvent{
		EventID:        id,
		EventType:      models.EventClaimPaid,
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EntityID:       "CLM-1",
		Details:        map[string]any{},
		Severity:       models.SeverityHigh,
		ComplianceTags: []string{"SOX"},
	}
}
