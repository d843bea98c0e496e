package enums

// LedgerEntryType classifies an earnings event in a seller's ledger.
type LedgerEntryType string

const (
	LedgerEntryTypeSale LedgerEntryType = "sale"
)

func (t LedgerEntryType) IsValid() bool {
	return t == LedgerEntryTypeSale
}

// LedgerEntryStatus tracks whether an earnings entry has been paid out.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPending LedgerEntryStatus = "pending"
	LedgerEntryStatusPaid    LedgerEntryStatus = "paid"
)

func (s LedgerEntryStatus) IsValid() bool {
	switch s {
	case LedgerEntryStatusPending, LedgerEntryStatusPaid:
		return true
	default:
		return false
	}
}
