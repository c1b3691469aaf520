package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: ReasonDeadlineExceeded},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: ReasonNotFound},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: ReasonSerializationFailure},
		{name: "sqlite_locked", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: ReasonDatabaseLocked},
		{name: "sqlite_unique", err: errors.New("UNIQUE constraint failed: users.username"), want: ReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRecurringBatchCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegisterer(registry, Config{ServiceName: "fintrack", Environment: "test"})

	m.ObserveRecurringBatch(RecurringBatchCommitted, 3, 1, 10*time.Millisecond)
	m.ObserveRecurringBatch(RecurringBatchRolledBack, 0, 0, time.Millisecond)

	if got := testutil.ToFloat64(m.recurringCreated); got != 3 {
		t.Fatalf("expected 3 materialized, got %v", got)
	}
	if got := testutil.ToFloat64(m.recurringRetired); got != 1 {
		t.Fatalf("expected 1 deactivated, got %v", got)
	}
	if got := testutil.ToFloat64(m.recurringBatches.WithLabelValues(RecurringBatchRolledBack)); got != 1 {
		t.Fatalf("expected 1 rolled back batch, got %v", got)
	}
}

func TestLicenseValidationCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegisterer(registry, Config{})

	m.IncLicenseValidation(LicenseOutcomeCached)
	m.IncLicenseValidation(LicenseOutcomeCached)
	m.IncLicenseValidation(LicenseOutcomeOffline)

	if got := testutil.ToFloat64(m.licenseValidations.WithLabelValues(LicenseOutcomeCached)); got != 2 {
		t.Fatalf("expected 2 cached validations, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncLicenseValidation(LicenseOutcomeOnline)
	m.ObserveRecurringBatch(RecurringBatchCommitted, 1, 0, time.Second)
	m.IncError("license", errors.New("boom"))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	hm := NewHTTPMetrics(registry)

	r := gin.New()
	r.Use(hm.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(hm.requests.WithLabelValues("/health", http.MethodGet, "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
