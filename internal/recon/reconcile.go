package recon

import "math"

// zeroTolerance is the threshold under which a base amount counts as a zero
// order: no fee math applies at all.
const zeroTolerance = 0.01

// Reconcile computes the expected financial fields for one order.
//
// Pure and deterministic: same Inputs, same Outputs, no I/O.
//
// The calculation:
//
//  1. Donation add-ons contribute their amount to DonationTotal and are
//     excluded from all ticket math. Add-ons that are neither tickets nor
//     donations are skipped entirely.
//  2. Each ticket add-on accumulates quantity, price*qty, and a per-ticket
//     service fee (zero for free tickets, DefaultServiceFee unless the
//     ticket type overrides it).
//  3. Discounts depend on the promotion type. A fixed-amount promotion is
//     consumed once per order by the first eligible add-on in slice order;
//     later eligible add-ons add nothing. A percentage promotion applies to
//     every eligible add-on independently. Eligibility means the add-on's
//     ticket type lists the promotion id.
//  4. Processing fees are resolved on finalAmount + donations. A zero base
//     suppresses all fee figures. With fees disabled, the customer pays the
//     final amount as-is and only the processor deduction is computed. With
//     fees enabled, the fee is itself a function of the grossed-up total, a
//     circular dependency solved in closed form:
//
//     TOV = (FA + fixed + TOV*pct + procFlat) / (1 - procRate)
//     =>  ticketsBase = (FA + fixed + procFlat) / (1 - procRate - pct)
//
//     Donations are grossed up separately (donation / (1 - procRate)) and
//     added on top; the processor deduction is then taken on the full total.
//
// Returns MissingTicketTypeError if a ticket add-on references an unloaded
// ticket type, and InvalidFeeConfigError if the gross-up denominator is not
// positive. Both are fatal; no partial result is produced.
func Reconcile(in Inputs) (Outputs, error) {
	proc := in.Processor
	if proc == (ProcessorConfig{}) {
		proc = DefaultProcessor
	}

	var out Outputs
	var finalAmount float64
	fixedDiscountConsumed := false

	for _, addOn := range in.AddOns {
		if addOn.Type == AddOnTypeDonation {
			amount := addOn.GrossPrice
			if amount == 0 {
				amount = addOn.FinalPrice
			}
			out.DonationTotal += amount
			continue
		}
		if addOn.Type != AddOnTypeTicket {
			continue
		}

		tt, ok := in.TicketTypes[addOn.TicketTypeID]
		if !ok {
			return Outputs{}, &MissingTicketTypeError{
				AddOnID:      addOn.ID,
				TicketTypeID: addOn.TicketTypeID,
			}
		}

		qty := addOn.Quantity
		price := tt.Price

		feePerTicket := DefaultServiceFee
		if tt.ServiceFee != nil {
			feePerTicket = *tt.ServiceFee
		}
		if price == 0 {
			feePerTicket = 0
		}

		out.TicketCount += int(qty)
		serviceFee := feePerTicket * qty
		out.TotalServiceFee += serviceFee

		var discount float64
		if in.Promotion != nil && eligible(tt, in.Promotion.ID) {
			switch in.Promotion.Type {
			case PromotionTypeFixed:
				// Consumed once per order by the first eligible add-on,
				// in slice order.
				if !fixedDiscountConsumed {
					discount = in.Promotion.DiscountAmount
					fixedDiscountConsumed = true
				}
			case PromotionTypePercentage:
				discount = price * qty * in.Promotion.DiscountPct
			}
		}
		out.DiscountTotal += discount

		addOnGross := price*qty + serviceFee
		out.GrossAmount += addOnGross
		finalAmount += addOnGross - discount
	}

	baseAmount := finalAmount + out.DonationTotal

	switch {
	case math.Abs(baseAmount) < zeroTolerance:
		// Zero order: no processing figures at all.
		out.TotalOrderValue = 0
		out.ProcessingFeeRevenue = 0
		out.ProcessorDeduction = 0

	case in.Event.NoProcessingFee:
		// Fees disabled: the charged total is the final amount plus
		// donations, with no gross-up. The processor still takes its cut.
		out.TotalOrderValue = finalAmount + out.DonationTotal
		out.ProcessingFeeRevenue = 0
		out.ProcessorDeduction = out.TotalOrderValue*proc.Rate + proc.FlatFee

	default:
		denominator := 1 - proc.Rate - in.Event.ProcessingFeePct
		if denominator <= 0 {
			return Outputs{}, &InvalidFeeConfigError{
				ProcessingFeePct: in.Event.ProcessingFeePct,
				Denominator:      denominator,
			}
		}

		// Closed-form solution for the tickets portion; the fee percentage
		// applies to tickets only, never to donations.
		ticketsBase := (finalAmount + in.Event.ProcessingFeeFixed + proc.FlatFee) / denominator
		out.ProcessingFeeRevenue = in.Event.ProcessingFeeFixed + ticketsBase*in.Event.ProcessingFeePct

		donationGrossedUp := out.DonationTotal / (1 - proc.Rate)
		out.TotalOrderValue = ticketsBase + donationGrossedUp
		out.ProcessorDeduction = out.TotalOrderValue*proc.Rate + proc.FlatFee
	}

	return out, nil
}

// eligible reports whether the ticket type accepts the promotion.
func eligible(tt TicketType, promotionID string) bool {
	for _, id := range tt.PromotionIDs {
		if id == promotionID {
			return true
		}
	}
	return false
}
