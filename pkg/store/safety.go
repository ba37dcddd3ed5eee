package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/trace"
)

// SafetyReport bundles a pipeline run's frozen report trace with its
// per-monitor results for archival.
type SafetyReport struct {
	BaseRunID  string
	Report     *trace.Run
	Results    []*safety.MonitorResult
	ConfigHash string
}

// SaveSafetyReport persists a completed pipeline run, keyed by the report
// trace's own run id.
func (c *Client) SaveSafetyReport(ctx context.Context, r *SafetyReport) error {
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal safety report: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO safety_reports (report_run_id, base_run_id, monitor_config_hash, report)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (report_run_id) DO UPDATE SET
			base_run_id = EXCLUDED.base_run_id,
			monitor_config_hash = EXCLUDED.monitor_config_hash,
			report = EXCLUDED.report`,
		r.Report.ID, r.BaseRunID, r.ConfigHash, encoded,
	)
	if err != nil {
		return fmt.Errorf("store: save safety report: %w", err)
	}
	return nil
}

// LoadSafetyReportsForRun retrieves every safety report ever archived
// against a given base run id, most recent last.
func (c *Client) LoadSafetyReportsForRun(ctx context.Context, baseRunID string) ([]*SafetyReport, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT report FROM safety_reports WHERE base_run_id = $1 ORDER BY created_at ASC`, baseRunID)
	if err != nil {
		return nil, fmt.Errorf("store: load safety reports: %w", err)
	}
	defer rows.Close()

	var reports []*SafetyReport
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("store: scan safety report: %w", err)
		}
		var r SafetyReport
		if err := json.Unmarshal(encoded, &r); err != nil {
			return nil, fmt.Errorf("store: decode safety report: %w", err)
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}
