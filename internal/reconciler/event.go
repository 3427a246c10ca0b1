package reconciler

import "time"

// Billing gateway event types. Unknown types are logged and ignored so new
// gateway events never break the webhook path.
const (
	EventSubscriptionCreated     = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated     = "SUBSCRIPTION_UPDATED"
	EventSubscriptionInactivated = "SUBSCRIPTION_INACTIVATED"
	EventPaymentCreated          = "PAYMENT_CREATED"
	EventPaymentReceived         = "PAYMENT_RECEIVED"
	EventPaymentOverdue          = "PAYMENT_OVERDUE"
	EventPaymentDeleted          = "PAYMENT_DELETED"
)

// Event is the billing gateway webhook body
type Event struct {
	Event        string               `json:"event"`
	Payment      *PaymentPayload      `json:"payment,omitempty"`
	Subscription *SubscriptionPayload `json:"subscription,omitempty"`
}

// PaymentPayload is the payment object the gateway attaches to payment events
type PaymentPayload struct {
	ID                string  `json:"id"`
	Subscription      string  `json:"subscription"`
	Value             float64 `json:"value"`
	NetValue          float64 `json:"netValue"`
	Status            string  `json:"status"`
	DueDate           string  `json:"dueDate"`
	PaymentDate       string  `json:"paymentDate"`
	BillingType       string  `json:"billingType"`
	InvoiceURL        string  `json:"invoiceUrl"`
	InstallmentNumber int     `json:"installmentNumber"`
}

// SubscriptionPayload is the subscription object the gateway attaches to
// subscription events
type SubscriptionPayload struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Value       float64 `json:"value"`
	Cycle       string  `json:"cycle"`
	Status      string  `json:"status"`
	NextDueDate string  `json:"nextDueDate"`
}

// parseGatewayDate parses the gateway's date-only format
func parseGatewayDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
