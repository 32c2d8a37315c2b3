package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/seahkrah/SmartAttend-sub012/internal/config"
)

// Incident payload posted to the security webhook. Integrity and
// immutability findings are security incidents, not ordinary errors.
type Incident struct {
	Type               string    `json:"type"` // integrity_mismatch / immutability_violation
	RecordID           string    `json:"record_id,omitempty"`
	TenantID           string    `json:"tenant_id,omitempty"`
	StoredChecksum     string    `json:"stored_checksum,omitempty"`
	CalculatedChecksum string    `json:"calculated_checksum,omitempty"`
	Detail             string    `json:"detail,omitempty"`
	DetectedAt         time.Time `json:"detected_at"`
}

// IncidentClient posts incidents to the configured security webhook.
// With no webhook configured, incidents are still logged at error level;
// escalation is best-effort and never blocks the detection path.
type IncidentClient struct {
	httpClient *resty.Client
	webhookURL string
	logger     *zap.Logger
}

func NewIncidentClient(cfg config.IncidentConfig, logger *zap.Logger) *IncidentClient {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &IncidentClient{
		httpClient: client,
		webhookURL: cfg.WebhookURL,
		logger:     logger,
	}
}

// Report escalates one incident. Always logs; posts when a webhook is
// configured.
func (c *IncidentClient) Report(ctx context.Context, inc Incident) {
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now().UTC()
	}

	c.logger.Error("SECURITY INCIDENT",
		zap.String("incident_type", inc.Type),
		zap.String("record_id", inc.RecordID),
		zap.String("tenant_id", inc.TenantID),
		zap.String("stored_checksum", inc.StoredChecksum),
		zap.String("calculated_checksum", inc.CalculatedChecksum),
		zap.String("detail", inc.Detail),
	)

	if c.webhookURL == "" {
		return
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(inc).
		Post(c.webhookURL)
	if err != nil {
		c.logger.Error("failed to deliver incident to webhook", zap.Error(err))
		return
	}
	if resp.IsError() {
		c.logger.Error("incident webhook returned error",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))
	}
}
