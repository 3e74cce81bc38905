package models

import "github.com/google/uuid"

type MethodKind string

const (
	MethodHosted MethodKind = "hosted"
	MethodManual MethodKind = "manual"
)

// PaymentMethod is a seller-configured payment destination. Hosted methods
// delegate to the external gateway; manual methods name a mobile-money
// destination the buyer pays out-of-band before submitting a proof code.
// Read-only to the checkout flow.
type PaymentMethod struct {
	ID      uuid.UUID  `json:"id"`
	StoreID uuid.UUID  `json:"store_id"`
	Kind    MethodKind `json:"kind"`

	// Provider is the display name, e.g. "M-PESA Paybill".
	Provider string `json:"provider"`

	// WalletFamily selects the proof-code rules for manual methods.
	WalletFamily string `json:"wallet_family"`

	// Destination is the paybill, till or phone number the buyer pays to.
	Destination  string `json:"destination"`
	AccountLabel string `json:"account_label"`
}
