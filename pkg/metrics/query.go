package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// DailySummary aggregates the last 24 hours of recruiter activity.
type DailySummary struct {
	ClassifierRequests int64 `json:"classifier_requests"`
	DegradedTurns      int64 `json:"degraded_turns"`
	Clarifications     int64 `json:"clarifications"`
	Escalations        int64 `json:"escalations"`
	VouchesAccepted    int64 `json:"vouches_accepted"`
	VouchesDeclined    int64 `json:"vouches_declined"`
	VouchesTimedOut    int64 `json:"vouches_timed_out"`
}

// QueryService reads aggregated recruiter metrics back from Prometheus for
// the staff digest.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetDailySummary aggregates the last 24 hours of activity.
func (q *QueryService) GetDailySummary(ctx context.Context) (*DailySummary, error) {
	s := &DailySummary{}
	var err error

	if s.ClassifierRequests, err = q.scalar(ctx, `sum(increase(recruiter_classifier_requests_total[24h]))`); err != nil {
		return nil, err
	}
	if s.DegradedTurns, err = q.scalar(ctx, `increase(recruiter_degraded_turns_total[24h])`); err != nil {
		return nil, err
	}
	if s.Clarifications, err = q.scalar(ctx, `increase(recruiter_clarifications_total[24h])`); err != nil {
		return nil, err
	}
	if s.Escalations, err = q.scalar(ctx, `sum(increase(recruiter_escalations_total[24h]))`); err != nil {
		return nil, err
	}
	if s.VouchesAccepted, err = q.scalar(ctx, `increase(recruiter_vouch_outcomes_total{outcome="ACCEPTED"}[24h])`); err != nil {
		return nil, err
	}
	if s.VouchesDeclined, err = q.scalar(ctx, `increase(recruiter_vouch_outcomes_total{outcome="DECLINED"}[24h])`); err != nil {
		return nil, err
	}
	if s.VouchesTimedOut, err = q.scalar(ctx, `increase(recruiter_vouch_outcomes_total{outcome="TIMED_OUT"}[24h])`); err != nil {
		return nil, err
	}
	return s, nil
}

// Digest renders the daily summary as staff-readable text.
func (q *QueryService) Digest(ctx context.Context) (string, error) {
	s, err := q.GetDailySummary(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last 24h: %d classifier request(s), %d degraded turn(s), %d clarification(s), %d escalation(s).",
		s.ClassifierRequests, s.DegradedTurns, s.Clarifications, s.Escalations)
	total := s.VouchesAccepted + s.VouchesDeclined + s.VouchesTimedOut
	if total > 0 {
		fmt.Fprintf(&b, "\nVouches: %d accepted, %d declined, %d timed out.",
			s.VouchesAccepted, s.VouchesDeclined, s.VouchesTimedOut)
	}
	return b.String(), nil
}

// scalar runs a query expected to return a single sample and rounds it.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %q: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value + 0.5), nil
	}
	return 0, nil
}
