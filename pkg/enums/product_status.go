package enums

// ProductStatus is the inventory state of a listing. Transitions happen only
// through the inventory service's conditional updates.
type ProductStatus string

const (
	ProductStatusAvailable ProductStatus = "available"
	ProductStatusReserved  ProductStatus = "reserved"
	ProductStatusSold      ProductStatus = "sold"
)

func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusAvailable, ProductStatusReserved, ProductStatusSold:
		return true
	default:
		return false
	}
}

func (s ProductStatus) String() string { return string(s) }
