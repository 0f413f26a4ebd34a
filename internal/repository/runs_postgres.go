package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

type PostgresRunsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRunsRepository(ctx context.Context, databaseURL string) (*PostgresRunsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresRunsRepository{pool: pool}, nil
}

func (r *PostgresRunsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRunsRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	idea, err := json.Marshal(run.Idea)
	if err != nil {
		return fmt.Errorf("encode idea: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO runs (
			id,
			tenant_id,
			idea,
			phase,
			progress,
			result,
			meets_threshold,
			error_message,
			attempts,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		run.ID,
		run.TenantID,
		idea,
		string(run.Phase),
		run.Progress,
		run.Result,
		run.MeetsThreshold,
		run.ErrorMessage,
		run.Attempts,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PostgresRunsRepository) UpdateRun(ctx context.Context, run *domain.Run) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET phase = $2,
			progress = $3,
			result = $4,
			meets_threshold = $5,
			error_message = $6,
			attempts = $7,
			updated_at = $8
		WHERE id = $1
	`,
		run.ID,
		string(run.Phase),
		run.Progress,
		run.Result,
		run.MeetsThreshold,
		run.ErrorMessage,
		run.Attempts,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRunsRepository) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var (
		run       domain.Run
		idea      []byte
		phase     string
		result    []byte
		createdAt time.Time
		updatedAt time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, idea, phase, progress, result, meets_threshold, error_message, attempts, created_at, updated_at
		FROM runs
		WHERE id = $1
	`, runID).Scan(
		&run.ID,
		&run.TenantID,
		&idea,
		&phase,
		&run.Progress,
		&result,
		&run.MeetsThreshold,
		&run.ErrorMessage,
		&run.Attempts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	if len(idea) > 0 {
		if err := json.Unmarshal(idea, &run.Idea); err != nil {
			return nil, fmt.Errorf("decode idea: %w", err)
		}
	}
	run.Phase = domain.RunPhase(phase)
	run.Result = json.RawMessage(result)
	run.CreatedAt = createdAt
	run.UpdatedAt = updatedAt
	return &run, nil
}

func (r *PostgresRunsRepository) ListReports(
	ctx context.Context,
	filter domain.ReportListFilter,
) ([]domain.ReportListItem, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	baseQuery, args := buildReportFilters(filter)

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT id, tenant_id, phase, idea->>'title', created_at
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ReportListItem, 0)
	for rows.Next() {
		var (
			item      domain.ReportListItem
			phase     string
			createdAt time.Time
		)
		if err := rows.Scan(&item.RunID, &item.TenantID, &phase, &item.Title, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan report item: %w", err)
		}
		item.Phase = domain.RunPhase(phase)
		item.CreatedAt = createdAt
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate report items: %w", rows.Err())
	}

	return items, total, nil
}

func buildReportFilters(filter domain.ReportListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM runs WHERE 1=1")

	args := make([]any, 0, 4)
	argIndex := 1

	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		query.WriteString(fmt.Sprintf(" AND tenant_id = $%d", argIndex))
		args = append(args, tenantID)
		argIndex++
	}

	if filter.From != nil {
		query.WriteString(fmt.Sprintf(" AND created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		query.WriteString(fmt.Sprintf(" AND created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		query.WriteString(fmt.Sprintf(" AND idea::text ILIKE '%%' || $%d || '%%'", argIndex))
		args = append(args, topic)
		argIndex++
	}

	return query.String(), args
}
