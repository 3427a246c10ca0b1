package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client is an HTTP client for the billing gateway. The gateway owns the
// customer/subscription/payment object model; this client only moves its
// response shapes in and out.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a new billing gateway client instance
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.L()
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

// GatewayError represents a non-success response from the billing gateway
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("billing gateway error (%d): %s", e.StatusCode, e.Message)
}

// gatewayErrorBody is the gateway's error envelope
type gatewayErrorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// Customer represents a gateway customer record
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	CpfCnpj string `json:"cpfCnpj,omitempty"`
}

// CreateCustomerRequest is the payload for customer creation
type CreateCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	CpfCnpj string `json:"cpfCnpj,omitempty"`
}

// Subscription represents a gateway subscription record
type Subscription struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Value       float64 `json:"value"`
	NextDueDate string  `json:"nextDueDate"`
	Cycle       string  `json:"cycle"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
}

// CreateSubscriptionRequest is the payload for subscription creation
type CreateSubscriptionRequest struct {
	Customer    string  `json:"customer"`
	BillingType string  `json:"billingType"`
	Value       float64 `json:"value"`
	NextDueDate string  `json:"nextDueDate"`
	Cycle       string  `json:"cycle"`
	Description string  `json:"description,omitempty"`
}

// UpdateSubscriptionRequest is the payload for subscription updates; nil
// fields are left untouched by the gateway
type UpdateSubscriptionRequest struct {
	Value       *float64 `json:"value,omitempty"`
	Cycle       *string  `json:"cycle,omitempty"`
	NextDueDate *string  `json:"nextDueDate,omitempty"`
	Status      *string  `json:"status,omitempty"`
}

// Payment represents a gateway-reported charge
type Payment struct {
	ID                string  `json:"id"`
	Subscription      string  `json:"subscription"`
	Value             float64 `json:"value"`
	NetValue          float64 `json:"netValue"`
	Status            string  `json:"status"`
	DueDate           string  `json:"dueDate"`
	PaymentDate       string  `json:"paymentDate,omitempty"`
	BillingType       string  `json:"billingType"`
	InvoiceURL        string  `json:"invoiceUrl"`
	InstallmentNumber int     `json:"installmentNumber,omitempty"`
}

// paymentList is the gateway's list envelope
type paymentList struct {
	Data       []Payment `json:"data"`
	TotalCount int       `json:"totalCount"`
}

// CreateCustomer creates a customer record on the gateway
func (c *Client) CreateCustomer(req *CreateCustomerRequest) (*Customer, error) {
	c.Logger.Info("Creating billing customer", zap.String("name", req.Name))

	var customer Customer
	if err := c.do(http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateSubscription creates a subscription on the gateway
func (c *Client) CreateSubscription(req *CreateSubscriptionRequest) (*Subscription, error) {
	c.Logger.Info("Creating billing subscription",
		zap.String("customer", req.Customer),
		zap.Float64("value", req.Value),
		zap.String("cycle", req.Cycle))

	var sub Subscription
	if err := c.do(http.MethodPost, "/subscriptions", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription updates a subscription on the gateway
func (c *Client) UpdateSubscription(id string, req *UpdateSubscriptionRequest) (*Subscription, error) {
	c.Logger.Info("Updating billing subscription", zap.String("subscription_id", id))

	var sub Subscription
	if err := c.do(http.MethodPut, "/subscriptions/"+url.PathEscape(id), req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CancelSubscription removes a subscription on the gateway
func (c *Client) CancelSubscription(id string) error {
	c.Logger.Info("Cancelling billing subscription", zap.String("subscription_id", id))

	return c.do(http.MethodDelete, "/subscriptions/"+url.PathEscape(id), nil, nil)
}

// ReactivateSubscription reopens a cancelled subscription on the gateway
func (c *Client) ReactivateSubscription(id string) (*Subscription, error) {
	c.Logger.Info("Reactivating billing subscription", zap.String("subscription_id", id))

	status := "ACTIVE"
	var sub Subscription
	err := c.do(http.MethodPut, "/subscriptions/"+url.PathEscape(id), &UpdateSubscriptionRequest{Status: &status}, &sub)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptionPayments lists the charges the gateway has issued for a subscription
func (c *Client) ListSubscriptionPayments(subscriptionID string) ([]Payment, error) {
	c.Logger.Info("Listing billing subscription payments", zap.String("subscription_id", subscriptionID))

	var list paymentList
	if err := c.do(http.MethodGet, "/payments?subscription="+url.QueryEscape(subscriptionID), nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// do performs a gateway request and decodes the response into out when non-nil
func (c *Client) do(method, path string, payload interface{}, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		c.Logger.Error("Failed to create gateway request", zap.Error(err))
		return err
	}

	req.Header.Set("access_token", c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("billing gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Logger.Error("Failed to read gateway response", zap.Error(err))
		return err
	}

	if resp.StatusCode >= 400 {
		message := string(body)
		var errBody gatewayErrorBody
		if err := json.Unmarshal(body, &errBody); err == nil && len(errBody.Errors) > 0 {
			message = errBody.Errors[0].Description
		}
		c.Logger.Error("Gateway returned error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message))
		return &GatewayError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			c.Logger.Error("Failed to parse gateway response", zap.Error(err))
			return fmt.Errorf("failed to parse gateway response: %w", err)
		}
	}

	return nil
}
