package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Trial operation counter
	TrialOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_trial_operations_total",
			Help: "Total number of trial operations",
		},
		[]string{"operation"}, // operation can be "create", "status", "expire", etc.
	)

	// Webhook event counter
	WebhookEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_billing_webhook_events_total",
			Help: "Total number of billing webhook events by outcome",
		},
		[]string{"event", "result"}, // result can be "processed", "failed", "rejected"
	)

	// Plan limit check counter
	LimitCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_plan_limit_checks_total",
			Help: "Total number of plan limit checks by outcome",
		},
		[]string{"resource", "outcome"}, // outcome is "allowed" or "denied"
	)

	// Access check counter
	AccessCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_access_checks_total",
			Help: "Total number of feature access checks by result",
		},
		[]string{"result"}, // result is "granted" or "denied"
	)

	// Billing gateway request counter
	GatewayRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_billing_gateway_requests_total",
			Help: "Total number of billing gateway requests by outcome",
		},
		[]string{"operation", "outcome"}, // outcome is "success" or "error"
	)

	// Subscription operation counter
	SubscriptionOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_subscription_operations_total",
			Help: "Total number of subscription operations",
		},
		[]string{"operation"}, // operation can be "checkout", "cancel", "reactivate", etc.
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saas_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saas_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saas_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(TrialOperationCounter)
	prometheus.MustRegister(WebhookEventCounter)
	prometheus.MustRegister(LimitCheckCounter)
	prometheus.MustRegister(AccessCheckCounter)
	prometheus.MustRegister(GatewayRequestCounter)
	prometheus.MustRegister(SubscriptionOperationCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)
}

// RecordTrialOperation increments the trial operation counter
func RecordTrialOperation(operation string) {
	TrialOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordWebhookEvent increments the webhook event counter
func RecordWebhookEvent(event, result string) {
	WebhookEventCounter.With(prometheus.Labels{"event": event, "result": result}).Inc()
}

// RecordLimitCheck increments the plan limit check counter
func RecordLimitCheck(resource, outcome string) {
	LimitCheckCounter.With(prometheus.Labels{"resource": resource, "outcome": outcome}).Inc()
}

// RecordAccessCheck increments the access check counter
func RecordAccessCheck(result string) {
	AccessCheckCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordGatewayRequest increments the billing gateway request counter
func RecordGatewayRequest(operation, outcome string) {
	GatewayRequestCounter.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
}

// RecordSubscriptionOperation increments the subscription operation counter
func RecordSubscriptionOperation(operation string) {
	SubscriptionOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			return err
		}
	}
}
