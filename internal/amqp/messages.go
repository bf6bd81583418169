package amqp

import (
	"encoding/json"
	"time"
)

// AlertRaisedMessage announces that an apartment crossed the unpaid-month
// threshold. Carries only identifiers; the worker fetches the full alert
// from the database.
type AlertRaisedMessage struct {
	AlertID        int64     `json:"alert_id"`
	OrganizationID int64     `json:"organization_id"`
	ApartmentID    int64     `json:"apartment_id"`
	MonthsUnpaid   int       `json:"months_unpaid"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewAlertRaisedMessage(alertID, orgID, apartmentID int64, monthsUnpaid int) *AlertRaisedMessage {
	return &AlertRaisedMessage{
		AlertID:        alertID,
		OrganizationID: orgID,
		ApartmentID:    apartmentID,
		MonthsUnpaid:   monthsUnpaid,
		Timestamp:      time.Now(),
	}
}

func (m *AlertRaisedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertRaisedMessageFromJSON(data []byte) (*AlertRaisedMessage, error) {
	var msg AlertRaisedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PaymentAllocatedMessage records the outcome of one payment allocation,
// published for downstream audit consumers.
type PaymentAllocatedMessage struct {
	OrganizationID     int64     `json:"organization_id"`
	ApartmentID        int64     `json:"apartment_id"`
	MonthsCovered      []string  `json:"months_covered"`
	TotalRecordedCents int64     `json:"total_recorded_cents"`
	CreditBalanceCents int64     `json:"credit_balance_cents"`
	Timestamp          time.Time `json:"timestamp"`
}

func (m *PaymentAllocatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentAllocatedMessageFromJSON(data []byte) (*PaymentAllocatedMessage, error) {
	var msg PaymentAllocatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
