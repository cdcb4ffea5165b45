// Package recon computes the expected financial fields of an order from its
// raw entity graph.
//
// This is the reference reconciliation algorithm: the canonical example of
// what a verification script is expected to compute. Reconcile is a pure
// function - no I/O, fully deterministic - so a script's math can be checked
// against it exactly. LoadInputs (loader.go) assembles the entity graph from
// the remote platform.
package recon

import "github.com/openstage/verity/internal/entity"

// Add-on type discriminators as stored on the platform.
const (
	AddOnTypeTicket   = "Ticket"
	AddOnTypeDonation = "Donation"
)

// Promotion type discriminators as stored on the platform.
const (
	PromotionTypeFixed      = "Discount Amount"
	PromotionTypePercentage = "Discount Percentage"
)

// DefaultServiceFee is the per-ticket service fee applied when the ticket
// type does not specify one. Free tickets (price 0) always carry a zero fee.
const DefaultServiceFee = 2.0

// ProcessorConfig holds the external payment processor's deduction constants:
// deduction = amount*Rate + FlatFee.
type ProcessorConfig struct {
	Rate    float64
	FlatFee float64
}

// DefaultProcessor is the production processor schedule (2.9% + $0.30).
var DefaultProcessor = ProcessorConfig{Rate: 0.029, FlatFee: 0.30}

// Order is the record under reconciliation. Only identity matters to the
// math; reported fields stay on Fields for callers that compare against them.
type Order struct {
	ID     string
	Fields entity.Fields
}

// AddOn is one line item of an order.
type AddOn struct {
	ID           string
	Type         string // AddOnTypeTicket, AddOnTypeDonation, or other (ignored)
	Quantity     float64
	GrossPrice   float64 // Donation amount lives here (or in FinalPrice)
	FinalPrice   float64
	TicketTypeID string // Set for ticket add-ons
}

// TicketType describes pricing for a class of tickets.
type TicketType struct {
	ID           string
	Price        float64
	ServiceFee   *float64 // nil means DefaultServiceFee
	PromotionIDs []string // Promotions this ticket type accepts
}

// Promotion is an optional order-level discount.
type Promotion struct {
	ID             string
	Type           string // PromotionTypeFixed or PromotionTypePercentage
	DiscountAmount float64
	DiscountPct    float64
}

// EventDetail carries the event's processing-fee configuration.
type EventDetail struct {
	NoProcessingFee    bool
	ProcessingFeeFixed float64
	ProcessingFeePct   float64
}

// Inputs is the assembled entity graph for one reconciliation.
//
// AddOns must be in the order's original add-on list order: the
// once-per-order fixed discount is consumed by the first eligible add-on in
// this slice, and that iteration order is part of the contract.
type Inputs struct {
	Order       Order
	AddOns      []AddOn
	Promotion   *Promotion // nil means no discount at all
	TicketTypes map[string]TicketType
	Event       EventDetail
	Processor   ProcessorConfig // zero value means DefaultProcessor
}

// Outputs are the independently derived financial fields.
type Outputs struct {
	TicketCount          int
	GrossAmount          float64 // Pre-discount: sum of price*qty + service fees
	TotalServiceFee      float64
	DonationTotal        float64
	DiscountTotal        float64
	ProcessingFeeRevenue float64
	ProcessorDeduction   float64
	TotalOrderValue      float64
}

// Platform field names read by the loader. Kept in one place so scripts,
// loader, and tests agree on spelling.
const (
	FieldAddOnType     = "AddOn Type"
	FieldQuantity      = "Quantity"
	FieldTicketType    = "Ticket Type"
	FieldGrossPrice    = "Gross Price"
	FieldFinalPrice    = "Final Price"
	FieldPrice         = "Price"
	FieldServiceFee    = "Service Fee"
	FieldPromotions    = "Promotions"
	FieldPromotionType = "Promotion Type"
	FieldDiscountAmt   = "Discount Amt"
	FieldDiscountPct   = "Discount Pct"
	FieldNoProcessing  = "No Processing Fee"
	FieldProcessingFix = "Processing Fee $"
	FieldProcessingPct = "Processing Fee %"
	FieldAddOns        = "Add Ons"
	FieldPromotion     = "Promotion"
	FieldEvent         = "Event"
	FieldEventDetail   = "Event Detail"
)

// AddOnFromFields builds an AddOn from a raw entity field map.
func AddOnFromFields(f entity.Fields) AddOn {
	return AddOn{
		ID:           f.ID(),
		Type:         f.String(FieldAddOnType),
		Quantity:     f.Number(FieldQuantity),
		GrossPrice:   f.Number(FieldGrossPrice),
		FinalPrice:   f.Number(FieldFinalPrice),
		TicketTypeID: f.String(FieldTicketType),
	}
}

// TicketTypeFromFields builds a TicketType from a raw entity field map.
// An absent "Service Fee" field is distinct from an explicit zero: absent
// means DefaultServiceFee applies.
func TicketTypeFromFields(f entity.Fields) TicketType {
	tt := TicketType{
		ID:           f.ID(),
		Price:        f.Number(FieldPrice),
		PromotionIDs: f.StringList(FieldPromotions),
	}
	if f.Has(FieldServiceFee) {
		fee := f.Number(FieldServiceFee)
		tt.ServiceFee = &fee
	}
	return tt
}

// PromotionFromFields builds a Promotion from a raw entity field map.
func PromotionFromFields(f entity.Fields) Promotion {
	return Promotion{
		ID:             f.ID(),
		Type:           f.String(FieldPromotionType),
		DiscountAmount: f.Number(FieldDiscountAmt),
		DiscountPct:    f.Number(FieldDiscountPct),
	}
}

// EventDetailFromFields builds an EventDetail from a raw entity field map.
func EventDetailFromFields(f entity.Fields) EventDetail {
	return EventDetail{
		NoProcessingFee:    f.Bool(FieldNoProcessing),
		ProcessingFeeFixed: f.Number(FieldProcessingFix),
		ProcessingFeePct:   f.Number(FieldProcessingPct),
	}
}
