package values

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

// BankTransactionTypes are the transaction types a bank_general_ledger item
// reads.
var BankTransactionTypes = map[string]struct{}{
	"Deposit":                    {},
	"Transfer":                   {},
	"Check":                      {},
	"Expense":                    {},
	"Cash Expense":               {},
	"Bill Payment (Check)":       {},
	"Bill Payment (Credit Card)": {},
	"Payment":                    {},
	"Sales Receipt":              {},
	"Refund":                     {},
	"Credit Card Credit":         {},
}

// SalesTransactionTypes are the transaction types a tax_collected_value item
// reads.
var SalesTransactionTypes = map[string]struct{}{
	"Invoice":       {},
	"Sales Receipt": {},
	"Credit Memo":   {},
	"Refund":        {},
}

// LedgerVariant computes a ledger cell for one calculation type.
type LedgerVariant func(c *Cell) (*statements.ItemValue, error)

// Ledger aggregates general ledger lines mapped onto the item's accounts.
type Ledger struct {
	variants map[statements.CalculationType]LedgerVariant
}

// NewLedger returns a ledger strategy with every built-in variant.
func NewLedger() *Ledger {
	l := &Ledger{variants: make(map[statements.CalculationType]LedgerVariant)}
	l.RegisterVariant(statements.CalcDefault, flowVariant(ledgerRead{}))
	l.RegisterVariant(statements.CalcDebitsOnly, flowVariant(ledgerRead{filter: func(line statements.LedgerLine) bool {
		return line.Amount.IsPositive()
	}}))
	l.RegisterVariant(statements.CalcCreditsOnly, flowVariant(ledgerRead{filter: func(line statements.LedgerLine) bool {
		return line.Amount.IsNegative()
	}}))
	l.RegisterVariant(statements.CalcBankGeneralLedger, flowVariant(ledgerRead{
		kinds:  []statements.LedgerKind{statements.LedgerBank, statements.LedgerAccountsPayable},
		filter: transactionTypeIn(BankTransactionTypes),
		dedupe: true,
	}))
	l.RegisterVariant(statements.CalcTaxCollected, flowVariant(ledgerRead{
		kinds:  []statements.LedgerKind{statements.LedgerCommon, statements.LedgerRevenue},
		filter: transactionTypeIn(SalesTransactionTypes),
		dedupe: true,
	}))
	l.RegisterVariant(statements.CalcBSBalance, bsBalance)
	l.RegisterVariant(statements.CalcBSPriorDay, bsPriorDay)
	l.RegisterVariant(statements.CalcBSNetChange, bsNetChange)
	return l
}

// RegisterVariant adds or replaces the variant for a calculation type.
func (l *Ledger) RegisterVariant(calc statements.CalculationType, v LedgerVariant) {
	l.variants[calc] = v
}

// Compute implements Strategy.
func (l *Ledger) Compute(c *Cell) (*statements.ItemValue, error) {
	variant, ok := l.variants[c.Item.TypeConfig.CalculationType]
	if !ok {
		return nil, fmt.Errorf("%w: calculation type %q", ErrInvalidConfig, c.Item.TypeConfig.CalculationType)
	}
	return variant(c)
}

type accountKey struct {
	coa      int64
	class    int64
	hasClass bool
}

// ledgerSum accumulates matched amounts per item account.
type ledgerSum struct {
	total    decimal.Decimal
	accounts map[accountKey]decimal.Decimal
}

func newLedgerSum() *ledgerSum {
	return &ledgerSum{accounts: make(map[accountKey]decimal.Decimal)}
}

func (s *ledgerSum) add(key accountKey, amount decimal.Decimal) {
	s.total = s.total.Add(amount)
	s.accounts[key] = s.accounts[key].Add(amount)
}

func (s *ledgerSum) sub(other *ledgerSum) *ledgerSum {
	out := newLedgerSum()
	for k, v := range s.accounts {
		out.add(k, v)
	}
	for k, v := range other.accounts {
		out.add(k, v.Neg())
	}
	return out
}

func (s *ledgerSum) value(sign float64) float64 {
	return s.total.InexactFloat64() * sign
}

// accountValues returns the drill-down breakdown sorted by account then class.
func (s *ledgerSum) accountValues(sign float64) []statements.ItemAccountValue {
	out := make([]statements.ItemAccountValue, 0, len(s.accounts))
	for _, k := range sortedAccountKeys(s.accounts) {
		out = append(out, statements.ItemAccountValue{
			ChartOfAccountID:  k.coa,
			AccountingClassID: k.classID(),
			Value:             s.accounts[k].InexactFloat64() * sign,
		})
	}
	return out
}

func keyOf(av statements.ItemAccountValue) accountKey {
	key := accountKey{coa: av.ChartOfAccountID}
	if av.AccountingClassID != nil {
		key.class, key.hasClass = *av.AccountingClassID, true
	}
	return key
}

func (k accountKey) classID() *int64 {
	if !k.hasClass {
		return nil
	}
	class := k.class
	return &class
}

func sortedAccountKeys[V any](m map[accountKey]V) []accountKey {
	keys := make([]accountKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].coa != keys[j].coa {
			return keys[i].coa < keys[j].coa
		}
		if keys[i].hasClass != keys[j].hasClass {
			return !keys[i].hasClass
		}
		return keys[i].class < keys[j].class
	})
	return keys
}

// matchLine maps a ledger line onto one of the item's accounts.
func (c *Cell) matchLine(line statements.LedgerLine) (accountKey, bool) {
	coa, ok := c.coaByQBO[line.ChartOfAccountQBOID]
	if !ok {
		return accountKey{}, false
	}
	var lineClass *int64
	if line.AccountingClassQBOID != "" {
		if cls, ok := c.classByExternal[line.AccountingClassQBOID]; ok {
			id := cls.ID
			lineClass = &id
		}
	}
	for _, acc := range c.Item.Accounts {
		if acc.ChartOfAccountID != coa.ChartOfAccountID {
			continue
		}
		key := accountKey{coa: acc.ChartOfAccountID}
		if acc.AccountingClassID != nil {
			key.class, key.hasClass = *acc.AccountingClassID, true
		}
		if c.Report.AccountingClassCheckDisabled {
			return key, true
		}
		if acc.AccountingClassID == nil {
			if lineClass == nil {
				return key, true
			}
			continue
		}
		if lineClass != nil && *lineClass == *acc.AccountingClassID {
			return key, true
		}
	}
	return accountKey{}, false
}

// defaultLedgerKind picks the ledger an item reads when it names none.
func (c *Cell) defaultLedgerKind() statements.LedgerKind {
	if c.Item.TypeConfig.Ledger != "" {
		return c.Item.TypeConfig.Ledger
	}
	switch c.Report.Kind {
	case statements.KindVendor:
		return statements.LedgerVendor
	case statements.KindBalanceSheet:
		return statements.LedgerBalanceSheet
	default:
		return statements.LedgerCommon
	}
}

// ledgerRead describes which lines of which ledgers a flow variant sums.
type ledgerRead struct {
	kinds  []statements.LedgerKind
	filter func(statements.LedgerLine) bool
	// dedupe drops lines of later ledgers whose transaction was already read
	// from an earlier one.
	dedupe bool
}

func transactionTypeIn(types map[string]struct{}) func(statements.LedgerLine) bool {
	return func(line statements.LedgerLine) bool {
		_, ok := types[line.TransactionType]
		return ok
	}
}

// readFlow sums the matched lines of the ledgers covering [start, end]. found is
// false when none of the ledgers exist.
func (c *Cell) readFlow(read ledgerRead, start, end time.Time) (*ledgerSum, bool) {
	kinds := read.kinds
	if len(kinds) == 0 {
		kinds = []statements.LedgerKind{c.defaultLedgerKind()}
	}
	sum := newLedgerSum()
	found := false
	seen := make(map[string]struct{})
	for _, kind := range kinds {
		if c.Item.TypeConfig.Excludes(kind) {
			continue
		}
		ledger, ok := c.Snapshot.Ledger(kind, start, end)
		if !ok {
			continue
		}
		found = true
		current := make(map[string]struct{})
		for _, line := range ledger.Lines {
			if read.dedupe && line.TransactionID != "" {
				if _, dup := seen[line.TransactionID]; dup {
					continue
				}
				current[line.TransactionID] = struct{}{}
			}
			if read.filter != nil && !read.filter(line) {
				continue
			}
			if key, ok := c.matchLine(line); ok {
				sum.add(key, line.Amount)
			}
		}
		for id := range current {
			seen[id] = struct{}{}
		}
	}
	return sum, found
}

// readBalance sums the matched lines of the balance ledger closing on date.
func (c *Cell) readBalance(date time.Time) (*ledgerSum, bool) {
	kind := c.Item.TypeConfig.Ledger
	if kind == "" {
		kind = statements.LedgerBalanceSheet
	}
	ledger, ok := c.Snapshot.LedgerEndingAt(kind, date)
	if !ok {
		return nil, false
	}
	sum := newLedgerSum()
	for _, line := range ledger.Lines {
		if key, ok := c.matchLine(line); ok {
			sum.add(key, line.Amount)
		}
	}
	return sum, true
}

func flowVariant(read ledgerRead) LedgerVariant {
	return func(c *Cell) (*statements.ItemValue, error) {
		start, end := c.window(c.Column.Range)
		sum, found := c.readFlow(read, start, end)
		if !found {
			if out, ok := c.fallbackToCurrent(statements.ColumnActual); ok {
				return out, nil
			}
			return nil, fmt.Errorf("%w: no ledger for %s..%s", ErrUpstreamUnavailable, start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		sign := c.signFactor()
		out := c.newValue(sum.value(sign), statements.ColumnActual)
		out.AccumulatedValue = c.accumulated(out.Value)
		out.ItemAccountValues = sum.accountValues(sign)
		return out, nil
	}
}

// openingDate is the day before the column's window starts.
func (c *Cell) openingDate() time.Time {
	start, _ := c.window(c.Column.Range)
	return start.AddDate(0, 0, -1)
}

func bsBalance(c *Cell) (*statements.ItemValue, error) {
	sum, ok := c.readBalance(c.Data.EndDate)
	if !ok {
		return nil, fmt.Errorf("%w: no balance ledger closing %s", ErrUpstreamUnavailable, c.Data.EndDate.Format(time.DateOnly))
	}
	sign := c.signFactor()
	out := c.newValue(sum.value(sign), statements.ColumnActual)
	out.AccumulatedValue = out.Value
	out.ItemAccountValues = sum.accountValues(sign)
	return out, nil
}

func bsPriorDay(c *Cell) (*statements.ItemValue, error) {
	date := c.openingDate()
	sum, ok := c.readBalance(date)
	if !ok {
		if c.Column.Range == statements.RangeYTD {
			if out, ok := c.januaryOpening(); ok {
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: no balance ledger closing %s", ErrUpstreamUnavailable, date.Format(time.DateOnly))
	}
	sign := c.signFactor()
	out := c.newValue(sum.value(sign), statements.ColumnActual)
	out.AccumulatedValue = out.Value
	out.ItemAccountValues = sum.accountValues(sign)
	return out, nil
}

// januaryOpening reads the opening balance of the year from the January
// period's current_period cell.
func (c *Cell) januaryOpening() (*statements.ItemValue, bool) {
	jan := c.Snapshot.JanuaryOfYear
	if jan == nil || jan.Year() != c.Data.Year() {
		return nil, false
	}
	col, ok := c.Report.Column(c.shape(c.Column.Type, statements.RangeCurrentPeriod, c.Column.Year))
	if !ok {
		return nil, false
	}
	src, ok := jan.Cell(c.Item.ID, col.ID)
	if !ok {
		return nil, false
	}
	out := src.Clone()
	out.ColumnID = c.Column.ID
	out.AccumulatedValue = out.Value
	return &out, true
}

func bsNetChange(c *Cell) (*statements.ItemValue, error) {
	closing, ok := c.readBalance(c.Data.EndDate)
	if !ok {
		return nil, fmt.Errorf("%w: no balance ledger closing %s", ErrUpstreamUnavailable, c.Data.EndDate.Format(time.DateOnly))
	}
	date := c.openingDate()
	opening, ok := c.readBalance(date)
	if !ok {
		return nil, fmt.Errorf("%w: no balance ledger closing %s", ErrUpstreamUnavailable, date.Format(time.DateOnly))
	}
	change := closing.sub(opening)
	sign := c.signFactor()
	out := c.newValue(change.value(sign), statements.ColumnActual)
	out.AccumulatedValue = c.accumulated(out.Value)
	out.ItemAccountValues = change.accountValues(sign)
	return out, nil
}
