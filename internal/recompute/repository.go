package recompute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-statements/internal/platform/db"
	"github.com/odyssey-erp/odyssey-statements/internal/statements"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/formula"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository is the Postgres backed Store.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
	inTx bool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// withSnapshot runs fn against a copy of the repository bound to a read-only
// repeatable read transaction, so every query sees the same ledger state.
func (r *Repository) withSnapshot(ctx context.Context, fn func(*Repository) error) error {
	if r.inTx || r.pool == nil {
		return fn(r)
	}
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx, pool: r.pool, inTx: true})
	})
}

const reportColumns = `id, business_id, template_id, name, kind, accounting_class_check_disabled,
	gross_columns_enabled, use_draft_budgets, items, columns`

// LoadReport fetches a report with its item tree and columns.
func (r *Repository) LoadReport(ctx context.Context, reportID int64) (*statements.Report, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM statement_reports WHERE id = $1`, reportID)
	return scanReport(row)
}

func (r *Repository) reportByTemplate(ctx context.Context, businessID, templateID int64) (*statements.Report, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM statement_reports
		WHERE business_id = $1 AND template_id = $2 ORDER BY id LIMIT 1`, businessID, templateID)
	return scanReport(row)
}

func scanReport(row pgx.Row) (*statements.Report, error) {
	var (
		rep         statements.Report
		kind        string
		items, cols []byte
	)
	err := row.Scan(&rep.ID, &rep.BusinessID, &rep.TemplateID, &rep.Name, &kind,
		&rep.AccountingClassCheckDisabled, &rep.GrossColumnsEnabled, &rep.UseDraftBudgets, &items, &cols)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rep.Kind = statements.ReportKind(kind)
	if err := json.Unmarshal(items, &rep.Items); err != nil {
		return nil, fmt.Errorf("recompute: decode items of report %d: %w", rep.ID, err)
	}
	if err := json.Unmarshal(cols, &rep.Columns); err != nil {
		return nil, fmt.Errorf("recompute: decode columns of report %d: %w", rep.ID, err)
	}
	return &rep, nil
}

const periodColumns = `id, report_id, business_id, period_type, start_date, end_date, item_values,
	budget_ids, update_state, error_msg, updated_at`

// FindPeriod fetches the period with the exact bounds.
func (r *Repository) FindPeriod(ctx context.Context, reportID int64, periodType statements.PeriodType, start, end time.Time) (*statements.ReportData, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM statement_report_data
		WHERE report_id = $1 AND period_type = $2 AND start_date = $3 AND end_date = $4`,
		reportID, string(periodType), start, end)
	return scanPeriod(row)
}

// ListMonths returns the monthly periods inside [start, end] ordered by date.
func (r *Repository) ListMonths(ctx context.Context, reportID int64, start, end time.Time) ([]*statements.ReportData, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM statement_report_data
		WHERE report_id = $1 AND period_type = 'monthly' AND start_date >= $2 AND end_date <= $3
		ORDER BY start_date`, reportID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*statements.ReportData
	for rows.Next() {
		d, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanPeriod(row pgx.Row) (*statements.ReportData, error) {
	var (
		d          statements.ReportData
		periodType string
		state      string
		errMsg     *string
		values     []byte
	)
	err := row.Scan(&d.ID, &d.ReportID, &d.BusinessID, &periodType, &d.StartDate, &d.EndDate,
		&values, &d.BudgetIDs, &state, &errMsg, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.PeriodType = statements.PeriodType(periodType)
	d.UpdateState = statements.UpdateState(state)
	if errMsg != nil {
		d.ErrorMsg = *errMsg
	}
	if len(values) > 0 {
		if err := json.Unmarshal(values, &d.ItemValues); err != nil {
			return nil, fmt.Errorf("recompute: decode item values of period %d: %w", d.ID, err)
		}
	}
	return &d, nil
}

// SavePeriod inserts or replaces the period grid. New periods get their id
// assigned.
func (r *Repository) SavePeriod(ctx context.Context, data *statements.ReportData) error {
	values, err := json.Marshal(data.ItemValues)
	if err != nil {
		return err
	}
	budgetIDs := data.BudgetIDs
	if budgetIDs == nil {
		budgetIDs = []int64{}
	}
	return r.db.QueryRow(ctx, `INSERT INTO statement_report_data
		(report_id, business_id, period_type, start_date, end_date, item_values, budget_ids, update_state, error_msg, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT (report_id, period_type, start_date, end_date) DO UPDATE SET
			item_values = EXCLUDED.item_values,
			budget_ids = EXCLUDED.budget_ids,
			update_state = EXCLUDED.update_state,
			error_msg = EXCLUDED.error_msg,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		data.ReportID, data.BusinessID, string(data.PeriodType), data.StartDate, data.EndDate,
		values, budgetIDs, string(data.UpdateState), data.ErrorMsg, data.UpdatedAt,
	).Scan(&data.ID)
}

// UpdateState records a lifecycle change.
func (r *Repository) UpdateState(ctx context.Context, dataID int64, state statements.UpdateState, errorMsg string) error {
	tag, err := r.db.Exec(ctx, `UPDATE statement_report_data
		SET update_state = $2, error_msg = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`, dataID, string(state), errorMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadInputs reads every input snapshot of the report's business for the
// window: ledgers of the period, month and year to date, balance ledgers
// closing on the window edges, the year's budgets and referenced reports.
func (r *Repository) LoadInputs(ctx context.Context, report *statements.Report, periodType statements.PeriodType, start, end time.Time) (*statements.Snapshot, error) {
	var snap *statements.Snapshot
	err := r.withSnapshot(ctx, func(tx *Repository) error {
		var err error
		snap, err = tx.loadInputs(ctx, report, periodType, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Repository) loadInputs(ctx context.Context, report *statements.Report, periodType statements.PeriodType, start, end time.Time) (*statements.Snapshot, error) {
	snap := &statements.Snapshot{Report: report}
	var err error
	if snap.ChartOfAccounts, err = r.chartOfAccounts(ctx, report.BusinessID); err != nil {
		return nil, err
	}
	if snap.Classes, err = r.classes(ctx, report.BusinessID); err != nil {
		return nil, err
	}
	if snap.Ledgers, err = r.ledgers(ctx, report.BusinessID, statements.YearStart(end).AddDate(0, 0, -1), end); err != nil {
		return nil, err
	}
	if snap.Budgets, err = r.budgets(ctx, report.BusinessID, end.Year()); err != nil {
		return nil, err
	}
	if snap.Metrics, err = r.metrics(ctx, report.BusinessID, statements.YearStart(end), end); err != nil {
		return nil, err
	}
	if snap.Dependencies, err = r.dependencies(ctx, report, periodType, start, end); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Repository) chartOfAccounts(ctx context.Context, businessID int64) ([]statements.ChartOfAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT id, chart_of_account_id, display_name, qbo_id, parent_id, acc_type
		FROM chart_of_accounts WHERE business_id = $1 ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []statements.ChartOfAccount
	for rows.Next() {
		var coa statements.ChartOfAccount
		if err := rows.Scan(&coa.ID, &coa.ChartOfAccountID, &coa.DisplayName, &coa.QBOID, &coa.ParentID, &coa.AccType); err != nil {
			return nil, err
		}
		out = append(out, coa)
	}
	return out, rows.Err()
}

func (r *Repository) classes(ctx context.Context, businessID int64) ([]statements.AccountingClass, error) {
	rows, err := r.db.Query(ctx, `SELECT id, external_id, name, COALESCE(parent_external_id, '')
		FROM accounting_classes WHERE business_id = $1 ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []statements.AccountingClass
	for rows.Next() {
		var cls statements.AccountingClass
		if err := rows.Scan(&cls.ID, &cls.ExternalID, &cls.Name, &cls.ParentExternalID); err != nil {
			return nil, err
		}
		out = append(out, cls)
	}
	return out, rows.Err()
}

// ledgers loads every ledger snapshot ending inside (from, to].
func (r *Repository) ledgers(ctx context.Context, businessID int64, from, to time.Time) ([]statements.GeneralLedger, error) {
	rows, err := r.db.Query(ctx, `SELECT report_service, start_date, end_date, updated_at, lines
		FROM general_ledgers WHERE business_id = $1 AND end_date >= $2 AND end_date <= $3
		ORDER BY report_service, start_date, end_date`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []statements.GeneralLedger
	for rows.Next() {
		var (
			gl    statements.GeneralLedger
			kind  string
			lines []byte
		)
		if err := rows.Scan(&kind, &gl.StartDate, &gl.EndDate, &gl.UpdatedAt, &lines); err != nil {
			return nil, err
		}
		gl.Kind = statements.LedgerKind(kind)
		if err := json.Unmarshal(lines, &gl.Lines); err != nil {
			return nil, fmt.Errorf("recompute: decode %s ledger lines: %w", kind, err)
		}
		out = append(out, gl)
	}
	return out, rows.Err()
}

func (r *Repository) budgets(ctx context.Context, businessID int64, year int) ([]statements.Budget, error) {
	rows, err := r.db.Query(ctx, `SELECT id, business_id, year, name, updated_at, actual_items, draft_items
		FROM budgets WHERE business_id = $1 AND year = $2 ORDER BY id`, businessID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []statements.Budget
	for rows.Next() {
		var (
			b             statements.Budget
			actual, draft []byte
		)
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.Year, &b.Name, &b.UpdatedAt, &actual, &draft); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actual, &b.ActualItems); err != nil {
			return nil, fmt.Errorf("recompute: decode budget %d: %w", b.ID, err)
		}
		if len(draft) > 0 {
			if err := json.Unmarshal(draft, &b.DraftItems); err != nil {
				return nil, fmt.Errorf("recompute: decode budget %d draft: %w", b.ID, err)
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) metrics(ctx context.Context, businessID int64, from, to time.Time) (statements.MetricSeries, error) {
	rows, err := r.db.Query(ctx, `SELECT code, date, value FROM metric_points
		WHERE business_id = $1 AND date >= $2 AND date <= $3 ORDER BY code, date`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(statements.MetricSeries)
	for rows.Next() {
		var (
			code string
			p    statements.MetricPoint
		)
		if err := rows.Scan(&code, &p.Date, &p.Value); err != nil {
			return nil, err
		}
		out[code] = append(out[code], p)
	}
	return out, rows.Err()
}

// dependencies resolves every template referenced by the report's formulas
// and reference items to the business's computed period of the same bounds.
func (r *Repository) dependencies(ctx context.Context, report *statements.Report, periodType statements.PeriodType, start, end time.Time) (map[int64]statements.Dependency, error) {
	out := make(map[int64]statements.Dependency)
	for _, templateID := range referencedTemplates(report) {
		dep, err := r.reportByTemplate(ctx, report.BusinessID, templateID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		data, err := r.FindPeriod(ctx, dep.ID, periodType, start, end)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[templateID] = statements.Dependency{Report: dep, Data: data}
	}
	return out, nil
}

// referencedTemplates lists the template ids of cross-report references.
func referencedTemplates(report *statements.Report) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	add := func(ref string) {
		tpl, _, ok := formula.SplitCrossReport(ref)
		if !ok {
			return
		}
		id, err := strconv.ParseInt(tpl, 10, 64)
		if err != nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	report.Walk(func(item, _ *statements.Item) {
		if item.TypeConfig.Name == statements.ItemTypeReference {
			add(item.TypeConfig.Target)
		}
		for _, expr := range item.ValuesConfig {
			for _, ref := range expr.References() {
				add(ref)
			}
		}
	})
	return out
}

// ListReportIDs returns every report id in ascending order.
func (r *Repository) ListReportIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM statement_reports ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
