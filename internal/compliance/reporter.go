package compliance

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/tracing"
)

// Recommendation thresholds.
const (
	highSeverityThreshold = 10
	fraudThreshold        = 5
)

// EventSource yields audit events matching a filter.
type EventSource interface {
	Query(opts models.QueryOpts) iter.Seq[models.AuditEvent]
}

// ChainVerifier reports on the integrity of the chain.
type ChainVerifier interface {
	Verify(ctx context.Context) models.VerificationReport
}

// Reporter builds compliance reports.
type Reporter struct {
	events   EventSource
	verifier ChainVerifier
	log      *logrus.Logger
	now      func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(events EventSource, verifier ChainVerifier, log *logrus.Logger) *Reporter {
	return &Reporter{events: events, verifier: verifier, log: log, now: time.Now}
}

// Generate builds the report for one standard over the inclusive window [start, end].
func (r *Reporter) Generate(
	ctx context.Context, standard string, start, end time.Time,
) (_ *models.ComplianceReport, err error) {
	if standard == "" {
		return nil, fmt.Errorf("%w: compliance standard is required", models.ErrInvalidQuery)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("%w: report end is before start", models.ErrInvalidQuery)
	}

	ctx, finish := tracing.StartSpan(ctx, "compliance.generate", attribute.String("standard", standard))
	defer func() { finish(err) }()

	report := &models.ComplianceReport{
		ComplianceStandard: standard,
		ReportPeriod:       models.ReportPeriod{Start: start.UTC(), End: end.UTC()},
		EventSummary:       map[models.EventType]int{},
		SeverityBreakdown:  map[models.Severity]int{},
		Recommendations:    []string{},
	}

	for _, sev := range models.Severities {
		report.SeverityBreakdown[sev] = 0
	}

	for ev := range r.events.Query(models.QueryOpts{ComplianceTag: standard, Start: &start, End: &end}) {
		report.TotalEvents++
		report.EventSummary[ev.EventType]++
		report.SeverityBreakdown[ev.Severity]++
	}

	report.ComplianceMetrics = standardMetrics(standard, report)
	report.BlockchainIntegrity = r.verifier.Verify(ctx)
	report.Recommendations = recommendations(standard, report)
	report.GeneratedAt = r.now().UTC()

	r.log.WithFields(logrus.Fields{
		"standard": standard,
		"events":   report.TotalEvents,
		"valid":    report.BlockchainIntegrity.IsValid,
	}).Info("compliance.report_generated")

	return report, nil
}

// standardMetrics applies the metric formulas of a standard to the counted events.
func standardMetrics(standard string, r *models.ComplianceReport) map[string]any {
	count := func(types ...models.EventType) int {
		n := 0
		for _, t := range types {
			n += r.EventSummary[t]
		}
		return n
	}

	switch standard {
	case "GDPR":
		return map[string]any{
			"data_access_requests": count(models.EventUserAccess),
			"data_modifications":   count(models.EventDataModified),
			"consent_tracking":     "Implemented",
			"right_to_erasure":     "Supported",
			"data_portability":     "Available",
		}
	case "HIPAA":
		return map[string]any{
			"protected_health_info_access": count(models.EventUserAccess),
			"unauthorized_access_attempts": 0,
			"data_breach_incidents":        0,
			"audit_log_completeness":       "100%",
		}
	case "SOX":
		return map[string]any{
			"financial_transactions": count(models.EventPaymentProcessed, models.EventClaimPaid, models.EventPolicyCreated),
			"internal_controls":      "Implemented",
			"audit_trail_integrity":  "Verified",
			"segregation_of_duties":  "Enforced",
		}
	default:
		return map[string]any{"total_events": r.TotalEvents}
	}
}

func recommendations(standard string, r *models.ComplianceReport) []string {
	out := []string{}

	if r.SeverityBreakdown[models.SeverityHigh] > highSeverityThreshold {
		out = append(out, "Consider implementing additional security controls due to high number of high-severity events")
	}

	if r.EventSummary[models.EventFraudDetected] > fraudThreshold {
		out = append(out, "Review fraud detection algorithms and thresholds")
	}

	if standard == "GDPR" {
		out = append(out,
			"Ensure regular GDPR compliance training for staff",
			"Implement automated data retention policies",
			"Regular privacy impact assessments",
		)
	}

	return out
}
