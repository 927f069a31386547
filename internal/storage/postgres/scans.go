package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// ScanStore persists ScanRecords to the scans table. All methods take a
// context and are safe for concurrent use — they borrow connections
// from the shared pool per call.
type ScanStore struct {
	client *Client
}

// NewScanStore returns a ScanStore backed by client.
func NewScanStore(client *Client) *ScanStore {
	return &ScanStore{client: client}
}

// Insert writes a new scan row. scan_id must not already exist.
func (s *ScanStore) Insert(ctx context.Context, rec scanmodel.ScanRecord) error {
	probeStatsJSON, err := json.Marshal(rec.ProbeStats)
	if err != nil {
		return err
	}
	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}

	_, err = s.client.Pool.Exec(ctx, `
		INSERT INTO scans (
			id, target_type, target_name, status, created_at, started_at, completed_at,
			total_probes, completed_probes, passed, failed, pass_rate, error_message,
			report_path, html_report_path, report_key, html_report_key, hitlog_key,
			probe_stats_json, config_json
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		rec.ScanID, rec.Config.TargetType, rec.Config.TargetName, string(rec.Status),
		unixToTime(rec.CreatedAtUnix), unixPtrToTime(rec.StartedAtUnix), unixPtrToTime(rec.CompletedAtUnix),
		rec.TotalProbes, rec.CompletedProbes, rec.Passed, rec.Failed, passRatePtr(rec), rec.ErrorMessage,
		rec.JSONLPath, rec.HTMLPath, rec.JSONLKey, rec.HTMLKey, rec.HitlogKey,
		probeStatsJSON, configJSON,
	)
	return err
}

// UpdateStatus updates the mutable fields of a scan row in place. It is
// called after every terminal transition, on `report` events, and when
// a record's JSONL key or probe stats are written back.
func (s *ScanStore) UpdateStatus(ctx context.Context, rec scanmodel.ScanRecord) error {
	probeStatsJSON, err := json.Marshal(rec.ProbeStats)
	if err != nil {
		return err
	}

	tag, err := s.client.Pool.Exec(ctx, `
		UPDATE scans SET
			status = $2, started_at = $3, completed_at = $4,
			total_probes = $5, completed_probes = $6, passed = $7, failed = $8,
			pass_rate = $9, error_message = $10,
			report_path = $11, html_report_path = $12,
			report_key = $13, html_report_key = $14, hitlog_key = $15,
			probe_stats_json = $16
		WHERE id = $1
	`,
		rec.ScanID, string(rec.Status), unixPtrToTime(rec.StartedAtUnix), unixPtrToTime(rec.CompletedAtUnix),
		rec.TotalProbes, rec.CompletedProbes, rec.Passed, rec.Failed, passRatePtr(rec), rec.ErrorMessage,
		rec.JSONLPath, rec.HTMLPath, rec.JSONLKey, rec.HTMLKey, rec.HitlogKey,
		probeStatsJSON,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Get fetches a single scan by id.
func (s *ScanStore) Get(ctx context.Context, scanID string) (scanmodel.ScanRecord, error) {
	row := s.client.Pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, scanID)
	rec, err := scanFromRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scanmodel.ScanRecord{}, apperr.ErrNotFound
	}
	return rec, err
}

// Delete removes a scan row. Deleting a missing row is not an error —
// callers sweep blob artifacts independently.
func (s *ScanStore) Delete(ctx context.Context, scanID string) error {
	_, err := s.client.Pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, scanID)
	return err
}

// ListOpts filters and paginates the scan history listing.
type ListOpts struct {
	Status     string
	TargetType string
	Limit      int
	Offset     int
}

// List returns scans newest-first, optionally filtered by status and
// target type.
func (s *ScanStore) List(ctx context.Context, opts ListOpts) ([]scanmodel.ScanRecord, error) {
	query := selectColumns + ` WHERE ($1 = '' OR status = $1) AND ($2 = '' OR target_type = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.Pool.Query(ctx, query, opts.Status, opts.TargetType, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scanmodel.ScanRecord
	for rows.Next() {
		rec, err := scanFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSince returns every scan created at or after cutoff, for
// statistics(days) aggregation (spec.md §4.6).
func (s *ScanStore) ListSince(ctx context.Context, cutoff time.Time) ([]scanmodel.ScanRecord, error) {
	rows, err := s.client.Pool.Query(ctx, selectColumns+` WHERE created_at >= $1 ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scanmodel.ScanRecord
	for rows.Next() {
		rec, err := scanFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const selectColumns = `SELECT
	id, target_type, target_name, status, created_at, started_at, completed_at,
	total_probes, completed_probes, passed, failed, pass_rate, error_message,
	report_path, html_report_path, report_key, html_report_key, hitlog_key,
	probe_stats_json, config_json
	FROM scans`

func scanFromRow(row rowScanner) (scanmodel.ScanRecord, error) {
	var (
		rec                                               scanmodel.ScanRecord
		status                                             string
		createdAt                                          time.Time
		startedAt, completedAt                             *time.Time
		passRate                                           *float64
		reportPath, htmlReportPath, reportKey, htmlReportKey, hitlogKey *string
		probeStatsJSON, configJSON                         []byte
	)

	err := row.Scan(
		&rec.ScanID, &rec.Config.TargetType, &rec.Config.TargetName, &status, &createdAt, &startedAt, &completedAt,
		&rec.TotalProbes, &rec.CompletedProbes, &rec.Passed, &rec.Failed, &passRate, &rec.ErrorMessage,
		&reportPath, &htmlReportPath, &reportKey, &htmlReportKey, &hitlogKey,
		&probeStatsJSON, &configJSON,
	)
	if err != nil {
		return scanmodel.ScanRecord{}, err
	}

	rec.Status = scanmodel.Status(status)
	rec.CreatedAtUnix = createdAt.Unix()
	rec.StartedAtUnix = timeToUnixPtr(startedAt)
	rec.CompletedAtUnix = timeToUnixPtr(completedAt)
	rec.JSONLPath = derefStr(reportPath)
	rec.HTMLPath = derefStr(htmlReportPath)
	rec.JSONLKey = derefStr(reportKey)
	rec.HTMLKey = derefStr(htmlReportKey)
	rec.HitlogKey = derefStr(hitlogKey)

	if len(probeStatsJSON) > 0 {
		if err := json.Unmarshal(probeStatsJSON, &rec.ProbeStats); err != nil {
			return scanmodel.ScanRecord{}, err
		}
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
			return scanmodel.ScanRecord{}, err
		}
	}
	return rec, nil
}

func unixToTime(u int64) time.Time {
	return time.Unix(u, 0).UTC()
}

func unixPtrToTime(u *int64) *time.Time {
	if u == nil {
		return nil
	}
	t := time.Unix(*u, 0).UTC()
	return &t
}

func timeToUnixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func passRatePtr(rec scanmodel.ScanRecord) *float64 {
	if rec.Passed+rec.Failed == 0 {
		return nil
	}
	v := rec.PassRate()
	return &v
}
