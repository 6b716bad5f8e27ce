package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType tags the closed set of provider events the engine understands.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionCreated EventType = "customer.subscription.created"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventInvoicePaid         EventType = "invoice.payment_succeeded"
	EventInvoiceFailed       EventType = "invoice.payment_failed"

	// EventIgnored absorbs every event type the engine does not handle.
	EventIgnored EventType = "ignored"
)

// Event is the normalized, narrowed form of an inbound provider event.
// Fields not carried by a given event type are left zero.
type Event struct {
	Type EventType
	ID   string

	Email             string
	CustomerID        string
	SubscriptionID    string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
}

// entityRef accepts provider fields that arrive either as a bare id string
// or as an expanded object carrying an "id" key.
type entityRef string

func (r *entityRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = entityRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = entityRef(obj.ID)
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// decodeEvent narrows a raw provider payload into one of the Event variants.
// Unrecognized event types become the ignored variant, not an error.
func decodeEvent(eventID, eventType string, raw []byte) (Event, error) {
	switch EventType(strings.TrimSpace(eventType)) {
	case EventCheckoutCompleted:
		return decodeCheckoutSession(eventID, raw)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return decodeSubscription(eventID, EventType(eventType), raw)
	case EventInvoicePaid, EventInvoiceFailed:
		return decodeInvoice(eventID, EventType(eventType), raw)
	default:
		return Event{Type: EventIgnored, ID: eventID}, nil
	}
}

func decodeCheckoutSession(eventID string, raw []byte) (Event, error) {
	var payload struct {
		Customer        entityRef `json:"customer"`
		CustomerEmail   string    `json:"customer_email"`
		CustomerDetails struct {
			Email string `json:"email"`
		} `json:"customer_details"`
		Subscription entityRef `json:"subscription"`
		Metadata     struct {
			PriceID string `json:"price_id"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, fmt.Errorf("decode checkout session: %w", err)
	}

	email := strings.TrimSpace(payload.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(payload.CustomerDetails.Email)
	}

	return Event{
		Type:           EventCheckoutCompleted,
		ID:             eventID,
		Email:          email,
		CustomerID:     string(payload.Customer),
		SubscriptionID: string(payload.Subscription),
		PriceID:        strings.TrimSpace(payload.Metadata.PriceID),
	}, nil
}

func decodeSubscription(eventID string, typ EventType, raw []byte) (Event, error) {
	var payload struct {
		ID                 string    `json:"id"`
		Customer           entityRef `json:"customer"`
		Status             string    `json:"status"`
		CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
		CurrentPeriodStart int64     `json:"current_period_start"`
		CurrentPeriodEnd   int64     `json:"current_period_end"`
		Items              struct {
			Data []struct {
				CurrentPeriodStart int64 `json:"current_period_start"`
				CurrentPeriodEnd   int64 `json:"current_period_end"`
				Price              struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, fmt.Errorf("decode subscription: %w", err)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return Event{}, errors.New("subscription payload missing id")
	}

	ev := Event{
		Type:              typ,
		ID:                eventID,
		CustomerID:        string(payload.Customer),
		SubscriptionID:    payload.ID,
		Status:            strings.TrimSpace(payload.Status),
		CancelAtPeriodEnd: payload.CancelAtPeriodEnd,
		PeriodStart:       unixTime(payload.CurrentPeriodStart),
		PeriodEnd:         unixTime(payload.CurrentPeriodEnd),
	}

	// Newer API versions carry the price and period bounds on the first item.
	if len(payload.Items.Data) > 0 {
		item := payload.Items.Data[0]
		ev.PriceID = item.Price.ID
		if ev.PeriodStart == nil {
			ev.PeriodStart = unixTime(item.CurrentPeriodStart)
		}
		if ev.PeriodEnd == nil {
			ev.PeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}

	return ev, nil
}

func decodeInvoice(eventID string, typ EventType, raw []byte) (Event, error) {
	var payload struct {
		Customer     entityRef `json:"customer"`
		Subscription entityRef `json:"subscription"`
		Parent       struct {
			SubscriptionDetails struct {
				Subscription entityRef `json:"subscription"`
			} `json:"subscription_details"`
		} `json:"parent"`
		Lines struct {
			Data []struct {
				Subscription entityRef `json:"subscription"`
				Price        struct {
					ID string `json:"id"`
				} `json:"price"`
				Pricing struct {
					PriceDetails struct {
						Price string `json:"price"`
					} `json:"price_details"`
				} `json:"pricing"`
			} `json:"data"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, fmt.Errorf("decode invoice: %w", err)
	}

	ev := Event{
		Type:           typ,
		ID:             eventID,
		CustomerID:     string(payload.Customer),
		SubscriptionID: string(payload.Subscription),
	}
	if ev.SubscriptionID == "" {
		ev.SubscriptionID = string(payload.Parent.SubscriptionDetails.Subscription)
	}
	if len(payload.Lines.Data) > 0 {
		line := payload.Lines.Data[0]
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = string(line.Subscription)
		}
		ev.PriceID = line.Price.ID
		if ev.PriceID == "" {
			ev.PriceID = line.Pricing.PriceDetails.Price
		}
	}

	return ev, nil
}
