package repository

import (
	"fmt"
	"strings"
)

// Direction is the side of a transaction. It always follows the amount sign.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// DirectionOf derives the direction from a signed amount. Zero counts as a credit.
func DirectionOf(amount int64) Direction {
	if amount < 0 {
		return Debit
	}
	return Credit
}

// Frequency is the cadence of a recurring series.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// Frequencies lists every frequency from shortest to longest interval.
var Frequencies = []Frequency{Weekly, Biweekly, Monthly, Quarterly, Yearly}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Frequencies {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// RecurringType classifies what a recurring series pays for.
type RecurringType string

const (
	Subscription RecurringType = "subscription"
	Bill         RecurringType = "bill"
	Loan         RecurringType = "loan"
	Income       RecurringType = "income"
)

// RecurringTypes lists every recurring type.
var RecurringTypes = []RecurringType{Subscription, Bill, Loan, Income}

// ParseRecurringType falls back to Subscription for an empty value.
func ParseRecurringType(s string) (RecurringType, error) {
	t := RecurringType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return Subscription, nil
	}
	for _, known := range RecurringTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown recurring type %q", s)
}

// RecurringStatus is the lifecycle state of a recurring series.
type RecurringStatus string

const (
	StatusActive    RecurringStatus = "active"
	StatusPaused    RecurringStatus = "paused"
	StatusCancelled RecurringStatus = "cancelled"
	StatusCompleted RecurringStatus = "completed"
)

func ParseRecurringStatus(s string) (RecurringStatus, error) {
	switch st := RecurringStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusPaused, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown recurring status %q", s)
}

// Ended reports whether the status is terminal.
func (s RecurringStatus) Ended() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Category is the closed classification table. Unknown labels map to CategoryOther.
type Category string

const (
	CategoryGroceries     Category = "Groceries"
	CategoryDining        Category = "Dining"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills & Utilities"
	CategorySubscriptions Category = "Subscriptions"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryHousing       Category = "Housing"
	CategoryIncome        Category = "Income"
	CategoryLoans         Category = "Loans"
	CategoryTransfers     Category = "Transfers"
	CategorySavings       Category = "Savings"
	CategoryFees          Category = "Fees"
	CategoryOther         Category = "Other"
)

// Categories is the full table in display order.
var Categories = []Category{
	CategoryGroceries, CategoryDining, CategoryTransport, CategoryShopping, CategoryBills,
	CategorySubscriptions, CategoryEntertainment, CategoryHealth, CategoryHousing,
	CategoryIncome, CategoryLoans, CategoryTransfers, CategorySavings, CategoryFees,
	CategoryOther,
}

// categoryAliases maps lower-cased bank labels onto the closed table.
var categoryAliases = map[string]Category{
	"groceries":          CategoryGroceries,
	"grocery":            CategoryGroceries,
	"supermarket":        CategoryGroceries,
	"supermarkets":       CategoryGroceries,
	"food":               CategoryGroceries,
	"spesa":              CategoryGroceries,
	"dining":             CategoryDining,
	"restaurants":        CategoryDining,
	"restaurant":         CategoryDining,
	"eating out":         CategoryDining,
	"bars & restaurants": CategoryDining,
	"ristoranti":         CategoryDining,
	"transport":          CategoryTransport,
	"transportation":     CategoryTransport,
	"travel":             CategoryTransport,
	"fuel":               CategoryTransport,
	"trasporti":          CategoryTransport,
	"shopping":           CategoryShopping,
	"bills":              CategoryBills,
	"utilities":          CategoryBills,
	"bills & utilities":  CategoryBills,
	"bollette":           CategoryBills,
	"subscriptions":      CategorySubscriptions,
	"subscription":       CategorySubscriptions,
	"abbonamenti":        CategorySubscriptions,
	"entertainment":      CategoryEntertainment,
	"leisure":            CategoryEntertainment,
	"health":             CategoryHealth,
	"healthcare":         CategoryHealth,
	"pharmacy":           CategoryHealth,
	"salute":             CategoryHealth,
	"housing":            CategoryHousing,
	"rent":               CategoryHousing,
	"mortgage":           CategoryHousing,
	"casa":               CategoryHousing,
	"income":             CategoryIncome,
	"salary":             CategoryIncome,
	"stipendio":          CategoryIncome,
	"loans":              CategoryLoans,
	"loan":               CategoryLoans,
	"finanziamenti":      CategoryLoans,
	"transfers":          CategoryTransfers,
	"transfer":           CategoryTransfers,
	"bonifici":           CategoryTransfers,
	"savings":            CategorySavings,
	"investments":        CategorySavings,
	"fees":               CategoryFees,
	"bank fees":          CategoryFees,
	"commissioni":        CategoryFees,
	"other":              CategoryOther,
}

// ParseCategory maps a free-text label onto the closed table. The second return is false when
// the label was not recognised and the CategoryOther fallback was used.
func ParseCategory(label string) (Category, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if key == "" {
		return CategoryOther, false
	}
	for _, c := range Categories {
		if strings.ToLower(string(c)) == key {
			return c, true
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c, true
	}
	return CategoryOther, false
}

// DefaultCategory is the category a series gets when its type is set or changed.
func DefaultCategory(t RecurringType) Category {
	switch t {
	case Bill:
		return CategoryBills
	case Loan:
		return CategoryLoans
	case Income:
		return CategoryIncome
	default:
		return CategorySubscriptions
	}
}
