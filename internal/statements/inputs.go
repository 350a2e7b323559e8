package statements

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerKind names the general ledger report a snapshot was taken from.
type LedgerKind string

const (
	LedgerCommon          LedgerKind = "common"
	LedgerBalanceSheet    LedgerKind = "balance_sheet"
	LedgerRevenue         LedgerKind = "revenue"
	LedgerExpenses        LedgerKind = "expenses"
	LedgerVendor          LedgerKind = "vendor"
	LedgerBank            LedgerKind = "bank"
	LedgerAccountsPayable LedgerKind = "accounts_payable"
)

// ChartOfAccount is a business account mapped onto the standard chart.
type ChartOfAccount struct {
	ID               int64   `json:"id"`
	ChartOfAccountID int64   `json:"chart_of_account_id"`
	DisplayName      string  `json:"display_name"`
	QBOID            string  `json:"qbo_id"`
	ParentID         *int64  `json:"parent_id,omitempty"`
	AccType          string  `json:"acc_type"`
	MappedClassIDs   []int64 `json:"mapped_class_ids,omitempty"`
}

// AccountingClass is a business class (department, location).
type AccountingClass struct {
	ID               int64  `json:"id"`
	ExternalID       string `json:"external_id"`
	Name             string `json:"name"`
	ParentExternalID string `json:"parent_external_id,omitempty"`
}

// LedgerLine is one transaction line of a general ledger snapshot.
type LedgerLine struct {
	TransactionID        string          `json:"transaction_id"`
	ChartOfAccountQBOID  string          `json:"chart_of_account_qbo_id"`
	AccountingClassQBOID string          `json:"accounting_class_qbo_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	TransactionType      string          `json:"transaction_type"`
}

// GeneralLedger is the snapshot of one ledger kind over a date range.
type GeneralLedger struct {
	Kind      LedgerKind   `json:"report_service"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	UpdatedAt time.Time    `json:"updated_at"`
	Lines     []LedgerLine `json:"line_item_details"`
}

// BudgetItem holds twelve monthly targets for an account or metric.
type BudgetItem struct {
	ChartOfAccountID  *int64      `json:"chart_of_account_id,omitempty"`
	AccountingClassID *int64      `json:"accounting_class_id,omitempty"`
	StandardMetricID  *int64      `json:"standard_metric_id,omitempty"`
	Months            [12]float64 `json:"months"`
}

// Budget is one yearly budget of a business.
type Budget struct {
	ID          int64        `json:"id"`
	BusinessID  int64        `json:"business_id"`
	Year        int          `json:"year"`
	Name        string       `json:"name"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ActualItems []BudgetItem `json:"actual_items"`
	DraftItems  []BudgetItem `json:"draft_items"`
}

// Items returns the draft or the approved rows.
func (b Budget) Items(draft bool) []BudgetItem {
	if draft {
		return b.DraftItems
	}
	return b.ActualItems
}

// MetricSource answers external metric lookups from a pre-fetched snapshot.
type MetricSource interface {
	Metric(code string, start, end time.Time) (float64, bool)
}

// MetricPoint is one dated metric observation.
type MetricPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MetricSeries is an in-memory MetricSource keyed by metric code.
type MetricSeries map[string][]MetricPoint

// Metric sums the observations of code dated within [start, end].
func (m MetricSeries) Metric(code string, start, end time.Time) (float64, bool) {
	points, ok := m[code]
	if !ok {
		return 0, false
	}
	found := false
	total := 0.0
	for _, p := range points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		found = true
		total += p.Value
	}
	return total, found
}

// Dependency is another report's computed period that items may reference.
type Dependency struct {
	Report *Report
	Data   *ReportData
}

// Snapshot is the complete read-only input of one batch.
type Snapshot struct {
	Report          *Report
	ChartOfAccounts []ChartOfAccount
	Classes         []AccountingClass
	Ledgers         []GeneralLedger
	Budgets         []Budget
	Metrics         MetricSource
	// Dependencies is keyed by template id.
	Dependencies   map[int64]Dependency
	PreviousPeriod *ReportData
	PriorYear      *ReportData
	JanuaryOfYear  *ReportData
	Today          time.Time
}

// Ledger returns the ledger of kind covering exactly [start, end].
func (s *Snapshot) Ledger(kind LedgerKind, start, end time.Time) (*GeneralLedger, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Ledgers {
		l := &s.Ledgers[i]
		if l.Kind == kind && sameDay(l.StartDate, start) && sameDay(l.EndDate, end) {
			return l, true
		}
	}
	return nil, false
}

// LedgerEndingAt returns the ledger of kind whose range ends on the date. Used
// for balance reads where only the closing date matters.
func (s *Snapshot) LedgerEndingAt(kind LedgerKind, end time.Time) (*GeneralLedger, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Ledgers {
		l := &s.Ledgers[i]
		if l.Kind == kind && sameDay(l.EndDate, end) {
			return l, true
		}
	}
	return nil, false
}

// BudgetsForYear returns the budgets of the year ordered by id.
func (s *Snapshot) BudgetsForYear(year int) []Budget {
	if s == nil {
		return nil
	}
	var out []Budget
	for _, b := range s.Budgets {
		if b.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dependency resolves the computed period of another template.
func (s *Snapshot) Dependency(templateID int64) (Dependency, bool) {
	if s == nil || s.Dependencies == nil {
		return Dependency{}, false
	}
	dep, ok := s.Dependencies[templateID]
	if !ok || dep.Report == nil || dep.Data == nil {
		return Dependency{}, false
	}
	return dep, true
}

// InputsUpdatedAt lists the modification times of every input, used by
// ShouldRecompute.
func (s *Snapshot) InputsUpdatedAt() []time.Time {
	if s == nil {
		return nil
	}
	var out []time.Time
	for _, l := range s.Ledgers {
		out = append(out, l.UpdatedAt)
	}
	for _, b := range s.Budgets {
		out = append(out, b.UpdatedAt)
	}
	for _, dep := range s.Dependencies {
		if dep.Data != nil {
			out = append(out, dep.Data.UpdatedAt)
		}
	}
	for _, d := range []*ReportData{s.PreviousPeriod, s.PriorYear, s.JanuaryOfYear} {
		if d != nil {
			out = append(out, d.UpdatedAt)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// YearStart returns January 1st of t's year.
func YearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// DaysInMonth returns the number of days of t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
