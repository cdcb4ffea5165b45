package recon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openstage/verity/internal/entity"
)

// Entity type names on the remote platform.
const (
	EntityOrder       = "order"
	EntityAddOn       = "addon"
	EntityPromotion   = "promotion"
	EntityTicketType  = "ticket_type"
	EntityEvent       = "event"
	EntityEventDetail = "event_detail"
)

// Fetcher is the slice of the remote client the loader needs.
// Satisfied by *remote.Client.
type Fetcher interface {
	Get(ctx context.Context, entityType, id string) (entity.Fields, error)
}

// LoadInputs assembles the reconciliation entity graph for one order:
// the order itself, its add-ons (in the order's list order), its promotion
// if any, each ticket type referenced by a ticket add-on (fetched once), and
// the event's fee configuration.
//
// Every referenced entity must resolve; a dangling reference surfaces as the
// client's NotFoundError. Entities are fetched fresh - never cached across
// calls - because the platform's data may change between runs.
func LoadInputs(ctx context.Context, f Fetcher, orderID string) (Inputs, error) {
	order, err := f.Get(ctx, EntityOrder, orderID)
	if err != nil {
		return Inputs{}, fmt.Errorf("load order: %w", err)
	}

	in := Inputs{
		Order:       Order{ID: order.ID(), Fields: order},
		TicketTypes: make(map[string]TicketType),
	}

	for _, id := range order.StringList(FieldAddOns) {
		addOnFields, err := f.Get(ctx, EntityAddOn, id)
		if err != nil {
			return Inputs{}, fmt.Errorf("load add-on %s: %w", id, err)
		}
		in.AddOns = append(in.AddOns, AddOnFromFields(addOnFields))
	}

	if promoID := order.String(FieldPromotion); promoID != "" {
		promoFields, err := f.Get(ctx, EntityPromotion, promoID)
		if err != nil {
			return Inputs{}, fmt.Errorf("load promotion %s: %w", promoID, err)
		}
		promo := PromotionFromFields(promoFields)
		in.Promotion = &promo
	}

	for _, addOn := range in.AddOns {
		if addOn.Type != AddOnTypeTicket || addOn.TicketTypeID == "" {
			continue
		}
		if _, seen := in.TicketTypes[addOn.TicketTypeID]; seen {
			continue
		}
		ttFields, err := f.Get(ctx, EntityTicketType, addOn.TicketTypeID)
		if err != nil {
			return Inputs{}, fmt.Errorf("load ticket type %s: %w", addOn.TicketTypeID, err)
		}
		in.TicketTypes[addOn.TicketTypeID] = TicketTypeFromFields(ttFields)
	}

	if eventID := order.String(FieldEvent); eventID != "" {
		eventFields, err := f.Get(ctx, EntityEvent, eventID)
		if err != nil {
			return Inputs{}, fmt.Errorf("load event %s: %w", eventID, err)
		}

		if detailID := eventFields.String(FieldEventDetail); detailID != "" {
			detailFields, err := f.Get(ctx, EntityEventDetail, detailID)
			if err != nil {
				return Inputs{}, fmt.Errorf("load event detail %s: %w", detailID, err)
			}
			in.Event = EventDetailFromFields(detailFields)
		}
	}

	slog.Debug("reconciliation graph loaded",
		"order", orderID,
		"add_ons", len(in.AddOns),
		"ticket_types", len(in.TicketTypes),
		"has_promotion", in.Promotion != nil,
	)

	return in, nil
}
