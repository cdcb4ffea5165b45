package recon

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fee(v float64) *float64 { return &v }

// twoTicketOrder is the worked example used throughout: one ticket add-on,
// price 50, qty 2, default service fee -> gross 104, no promotion.
func twoTicketOrder() Inputs {
	return Inputs{
		Order: Order{ID: "order-1"},
		AddOns: []AddOn{
			{ID: "a1", Type: AddOnTypeTicket, Quantity: 2, TicketTypeID: "tt1"},
		},
		TicketTypes: map[string]TicketType{
			"tt1": {ID: "tt1", Price: 50},
		},
		Event: EventDetail{ProcessingFeePct: 0.03},
	}
}

func TestReconcile_FeesEnabled_ClosedForm(t *testing.T) {
	out, err := Reconcile(twoTicketOrder())
	require.NoError(t, err)

	assert.Equal(t, 2, out.TicketCount)
	assert.InDelta(t, 104.0, out.GrossAmount, 1e-9)
	assert.InDelta(t, 4.0, out.TotalServiceFee, 1e-9)
	assert.Zero(t, out.DiscountTotal)
	assert.Zero(t, out.DonationTotal)

	// ticketsBase = (104 + 0 + 0.30) / (1 - 0.029 - 0.03) = 104.30 / 0.941
	wantTOV := 104.30 / 0.941
	assert.InDelta(t, wantTOV, out.TotalOrderValue, 1e-9)
	assert.InDelta(t, wantTOV*0.03, out.ProcessingFeeRevenue, 1e-9)
	assert.InDelta(t, wantTOV*0.029+0.30, out.ProcessorDeduction, 1e-9)
}

func TestReconcile_NoProcessingFee(t *testing.T) {
	in := twoTicketOrder()
	in.Event = EventDetail{NoProcessingFee: true, ProcessingFeePct: 0.03}

	out, err := Reconcile(in)
	require.NoError(t, err)

	// No gross-up at all: customer pays the final amount, processor still
	// takes 2.9% + 0.30 of the charged total.
	assert.InDelta(t, 104.0, out.TotalOrderValue, 1e-9)
	assert.Zero(t, out.ProcessingFeeRevenue)
	assert.InDelta(t, 104.0*0.029+0.30, out.ProcessorDeduction, 1e-9) // 3.316
}

func TestReconcile_ZeroOrder_SuppressesAllFees(t *testing.T) {
	for name, event := range map[string]EventDetail{
		"fees enabled":  {ProcessingFeeFixed: 1.5, ProcessingFeePct: 0.05},
		"fees disabled": {NoProcessingFee: true},
	} {
		t.Run(name, func(t *testing.T) {
			in := Inputs{
				Order: Order{ID: "order-z"},
				AddOns: []AddOn{
					{ID: "a1", Type: AddOnTypeTicket, Quantity: 3, TicketTypeID: "free"},
				},
				TicketTypes: map[string]TicketType{
					// Free tickets carry no service fee either.
					"free": {ID: "free", Price: 0, ServiceFee: fee(2)},
				},
				Event: event,
			}

			out, err := Reconcile(in)
			require.NoError(t, err)

			assert.Equal(t, 3, out.TicketCount)
			assert.Zero(t, out.TotalServiceFee)
			assert.Zero(t, out.ProcessingFeeRevenue)
			assert.Zero(t, out.ProcessorDeduction)
			assert.Zero(t, out.TotalOrderValue)
		})
	}
}

func TestReconcile_DonationOnlyOrder(t *testing.T) {
	in := Inputs{
		Order: Order{ID: "order-d"},
		AddOns: []AddOn{
			{ID: "d1", Type: AddOnTypeDonation, GrossPrice: 25},
		},
		TicketTypes: map[string]TicketType{},
		Event:       EventDetail{},
	}

	out, err := Reconcile(in)
	require.NoError(t, err)

	assert.Zero(t, out.TicketCount)
	assert.InDelta(t, 25.0, out.DonationTotal, 1e-9)
	assert.Zero(t, out.GrossAmount)

	// Tickets base still carries the processor flat fee, donations are
	// grossed up independently.
	ticketsBase := 0.30 / 0.971
	wantTOV := ticketsBase + 25.0/0.971
	assert.InDelta(t, wantTOV, out.TotalOrderValue, 1e-9)
	assert.Zero(t, out.ProcessingFeeRevenue)
	assert.InDelta(t, wantTOV*0.029+0.30, out.ProcessorDeduction, 1e-9)
}

func TestReconcile_DonationAmountFallsBackToFinalPrice(t *testing.T) {
	in := Inputs{
		AddOns: []AddOn{
			{ID: "d1", Type: AddOnTypeDonation, GrossPrice: 0, FinalPrice: 10},
		},
		Event: EventDetail{NoProcessingFee: true},
	}

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, out.DonationTotal, 1e-9)
}

func TestReconcile_UnknownAddOnTypesAreSkipped(t *testing.T) {
	in := twoTicketOrder()
	in.AddOns = append(in.AddOns, AddOn{ID: "m1", Type: "Merchandise", Quantity: 5})

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, 2, out.TicketCount, "merchandise must not count as tickets")
	assert.InDelta(t, 104.0, out.GrossAmount, 1e-9)
}

func TestReconcile_NoPromotion_ZeroDiscount(t *testing.T) {
	in := twoTicketOrder()
	in.AddOns = append(in.AddOns, AddOn{ID: "a2", Type: AddOnTypeTicket, Quantity: 1, TicketTypeID: "tt1"})

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.Zero(t, out.DiscountTotal)
}

func TestReconcile_PromotionNotListedByTicketType(t *testing.T) {
	in := twoTicketOrder()
	in.Promotion = &Promotion{ID: "promo-x", Type: PromotionTypeFixed, DiscountAmount: 10}

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.Zero(t, out.DiscountTotal, "ticket type does not accept the promotion")
}

// eligibleTriple builds an order with three eligible ticket add-ons for
// discount-semantics tests.
func eligibleTriple(promo *Promotion) Inputs {
	return Inputs{
		Order: Order{ID: "order-3"},
		AddOns: []AddOn{
			{ID: "a1", Type: AddOnTypeTicket, Quantity: 1, TicketTypeID: "tt1"},
			{ID: "a2", Type: AddOnTypeTicket, Quantity: 2, TicketTypeID: "tt1"},
			{ID: "a3", Type: AddOnTypeTicket, Quantity: 3, TicketTypeID: "tt2"},
		},
		TicketTypes: map[string]TicketType{
			"tt1": {ID: "tt1", Price: 40, PromotionIDs: []string{"promo-1"}},
			"tt2": {ID: "tt2", Price: 25, ServiceFee: fee(1.5), PromotionIDs: []string{"promo-1"}},
		},
		Promotion: promo,
		Event:     EventDetail{NoProcessingFee: true},
	}
}

func TestReconcile_FixedDiscount_OncePerOrder(t *testing.T) {
	in := eligibleTriple(&Promotion{ID: "promo-1", Type: PromotionTypeFixed, DiscountAmount: 15})

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, out.DiscountTotal, 1e-9, "fixed discount applies exactly once")
}

func TestReconcile_FixedDiscount_PermutationInvariantTotal(t *testing.T) {
	base := eligibleTriple(&Promotion{ID: "promo-1", Type: PromotionTypeFixed, DiscountAmount: 15})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		in := base
		in.AddOns = make([]AddOn, len(base.AddOns))
		copy(in.AddOns, base.AddOns)
		rng.Shuffle(len(in.AddOns), func(a, b int) {
			in.AddOns[a], in.AddOns[b] = in.AddOns[b], in.AddOns[a]
		})

		out, err := Reconcile(in)
		require.NoError(t, err)
		assert.InDelta(t, 15.0, out.DiscountTotal, 1e-9,
			"total discount is independent of add-on ordering")
		// Prices 40+80+75 plus service fees 2+4+4.5.
		assert.InDelta(t, 205.5, out.GrossAmount, 1e-9)
	}
}

func TestReconcile_PercentageDiscount_PerAddOnLinearity(t *testing.T) {
	in := eligibleTriple(&Promotion{ID: "promo-1", Type: PromotionTypePercentage, DiscountPct: 0.10})

	out, err := Reconcile(in)
	require.NoError(t, err)

	// 40*1*0.10 + 40*2*0.10 + 25*3*0.10 — no once-per-order suppression.
	want := 4.0 + 8.0 + 7.5
	assert.InDelta(t, want, out.DiscountTotal, 1e-9)
}

func TestReconcile_MissingTicketType(t *testing.T) {
	in := twoTicketOrder()
	in.AddOns[0].TicketTypeID = "gone"

	_, err := Reconcile(in)
	require.Error(t, err)
	assert.True(t, IsMissingTicketType(err))
	assert.Contains(t, err.Error(), "gone")
}

func TestReconcile_InvalidFeeConfiguration(t *testing.T) {
	in := twoTicketOrder()
	in.Event.ProcessingFeePct = 0.98 // 1 - 0.029 - 0.98 < 0

	_, err := Reconcile(in)
	require.Error(t, err)
	assert.True(t, IsInvalidFeeConfig(err))
}

func TestReconcile_ClosedFormRoundTrip(t *testing.T) {
	// Recomputing fee revenue and processor deduction from the returned
	// total must reproduce the outputs: the closed form actually solves the
	// circular definition.
	in := Inputs{
		Order: Order{ID: "order-rt"},
		AddOns: []AddOn{
			{ID: "a1", Type: AddOnTypeTicket, Quantity: 2, TicketTypeID: "tt1"},
			{ID: "d1", Type: AddOnTypeDonation, GrossPrice: 12.5},
		},
		TicketTypes: map[string]TicketType{
			"tt1": {ID: "tt1", Price: 80, ServiceFee: fee(3)},
		},
		Event: EventDetail{ProcessingFeeFixed: 1.25, ProcessingFeePct: 0.04},
	}

	out, err := Reconcile(in)
	require.NoError(t, err)

	proc := DefaultProcessor
	donationGrossedUp := out.DonationTotal / (1 - proc.Rate)
	ticketsBase := out.TotalOrderValue - donationGrossedUp

	// TOV satisfies TOV = (FA + fee + procFlat) / (1 - procRate) on the
	// tickets portion: reverse the gross-up and recover the final amount.
	finalAmount := ticketsBase*(1-proc.Rate) - out.ProcessingFeeRevenue - proc.FlatFee
	assert.InDelta(t, 80*2+3*2, finalAmount, 1e-9)

	assert.InDelta(t, in.Event.ProcessingFeeFixed+ticketsBase*in.Event.ProcessingFeePct,
		out.ProcessingFeeRevenue, 1e-9)
	assert.InDelta(t, out.TotalOrderValue*proc.Rate+proc.FlatFee,
		out.ProcessorDeduction, 1e-9)
}

func TestReconcile_CustomProcessorSchedule(t *testing.T) {
	in := twoTicketOrder()
	in.Event = EventDetail{NoProcessingFee: true}
	in.Processor = ProcessorConfig{Rate: 0.05, FlatFee: 1}

	out, err := Reconcile(in)
	require.NoError(t, err)
	assert.InDelta(t, 104.0*0.05+1, out.ProcessorDeduction, 1e-9)
}
