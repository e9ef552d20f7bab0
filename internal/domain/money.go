package domain

import "fmt"

// Cents represents monetary values in cents (1/100 of a dollar).
// Using cents avoids floating-point precision issues while providing
// type safety for monetary operations throughout the system.
type Cents int64

// MilliCents represents monetary values in thousandths of a cent.
// Per-call model costs are usually fractions of a cent, so usage accounting
// accumulates in milli-cents and converts to Cents only for display.
type MilliCents int64

const (
	// CentsPerDollar represents the number of cents in a dollar.
	CentsPerDollar = 100

	// MilliCentsPerCent represents the number of milli-cents in a cent.
	MilliCentsPerCent = 1000
)

// String formats cents as a dollar amount (e.g., 150 → "$1.50").
func (c Cents) String() string { return fmt.Sprintf("$%.2f", float64(c)/CentsPerDollar) }

// IsZero returns true if the amount is zero.
func (c Cents) IsZero() bool { return c == 0 }

// Add returns the sum of two cent amounts.
func (c Cents) Add(x Cents) Cents { return c + x }

// Add returns the sum of two milli-cent amounts.
func (m MilliCents) Add(x MilliCents) MilliCents { return m + x }

// Cents truncates the amount to whole cents.
func (m MilliCents) Cents() Cents { return Cents(m / MilliCentsPerCent) }

// USD returns the amount in dollars for reporting.
func (m MilliCents) USD() float64 {
	return float64(m) / (MilliCentsPerCent * CentsPerDollar)
}

// String formats milli-cents as a dollar amount with sub-cent precision
// (e.g., 1234 → "$0.01234").
func (m MilliCents) String() string { return fmt.Sprintf("$%.5f", m.USD()) }
