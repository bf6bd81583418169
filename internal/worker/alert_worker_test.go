package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"syndic/internal/amqp"
	"syndic/internal/core"
	"syndic/internal/storage/memory"
)

func TestHandleAlertMarksSent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	org := core.Organization{Name: "Les Pins", Slug: "les-pins", Email: "board@example.org", Active: true}
	if err := store.CreateOrganization(ctx, &org); err != nil {
		t.Fatalf("create organization: %v", err)
	}
	alert := core.UnpaidAlert{
		OrganizationID: org.ID,
		ApartmentID:    42,
		MonthsUnpaid:   4,
		AlertDate:      time.Now(),
	}
	if err := store.CreateAlert(ctx, &alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	w := NewAlertWorker(store)
	err := w.HandleAlert(ctx, &amqp.AlertRaisedMessage{
		AlertID:        alert.ID,
		OrganizationID: org.ID,
		ApartmentID:    42,
		MonthsUnpaid:   4,
	})
	if err != nil {
		t.Fatalf("handle alert: %v", err)
	}

	alerts, err := store.ListAlerts(ctx, org.ID)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].EmailSent {
		t.Fatalf("alert not marked sent: %+v", alerts)
	}
}

func TestHandleAlertUnknownOrganization(t *testing.T) {
	w := NewAlertWorker(memory.New())
	err := w.HandleAlert(context.Background(), &amqp.AlertRaisedMessage{
		AlertID:        1,
		OrganizationID: 99,
		ApartmentID:    1,
		MonthsUnpaid:   3,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestHandlePayment(t *testing.T) {
	w := NewAlertWorker(memory.New())
	err := w.HandlePayment(context.Background(), &amqp.PaymentAllocatedMessage{
		OrganizationID:     1,
		ApartmentID:        1,
		MonthsCovered:      []string{"2024-01", "2024-02"},
		TotalRecordedCents: 20000,
	})
	if err != nil {
		t.Fatalf("handle payment: %v", err)
	}
}
