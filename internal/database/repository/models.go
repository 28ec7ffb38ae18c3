package repository

import "time"

// Account represents an account row.
type Account struct {
	ID                 string
	Name               string
	Institution        string
	AccountType        string
	Currency           string
	Color              string
	Balance            int64
	InitialBalance     *int64
	InitialBalanceDate *time.Time
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transaction represents a transaction row. Amounts are minor units of the account currency.
type Transaction struct {
	ID           string
	AccountID    string
	Seq          int64
	Date         time.Time
	ValueDate    *time.Time
	Amount       int64
	Direction    Direction
	Merchant     string
	Description  string
	Category     Category
	Subcategory  string
	Tags         []string
	BalanceAfter *int64
	BankBalance  *int64
	IsRecurring  bool
	RecurringID  *string
	Fingerprint  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BalanceCheckpoint is a user-asserted balance at the start of a day.
type BalanceCheckpoint struct {
	ID        string
	AccountID string
	Date      time.Time
	Balance   int64
	Note      string
	CreatedAt time.Time
}

// Occurrence links a recurring series to one transaction.
type Occurrence struct {
	TransactionID string
	Date          time.Time
}

// RecurringTransaction represents a recurring series row with its occurrences.
type RecurringTransaction struct {
	ID           string
	AccountID    string
	Name         string
	Category     Category
	Amount       int64
	Frequency    Frequency
	Type         RecurringType
	Status       RecurringStatus
	Occurrences  []Occurrence
	LastDetected *time.Time
	NextExpected *time.Time
	StartDate    time.Time
	EndDate      *time.Time
	CancelledAt  *time.Time
	IsExcluded   bool
	IsManual     bool
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ShownActive reports whether the series counts as active for summaries and listings.
func (r RecurringTransaction) ShownActive() bool {
	return r.Status == StatusActive && !r.IsExcluded
}

// Budget represents a spending limit for a category.
type Budget struct {
	ID        string
	Category  Category
	Amount    int64
	Period    string
	AccountID *string
	CreatedAt time.Time
}

// Goal represents a savings goal.
type Goal struct {
	ID         string
	Name       string
	Target     int64
	Saved      int64
	TargetDate *time.Time
	AccountID  *string
	CreatedAt  time.Time
}

// Setting is a key/value preference.
type Setting struct {
	Key   string
	Value string
}
