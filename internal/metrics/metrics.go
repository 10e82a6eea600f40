package metrics

import (
	"sync"
	"time"
)

// Collector provides a centralized way to collect and retrieve metrics
type Collector struct {
	mutex               sync.RWMutex
	counters            map[string]int64
	requestCounts       map[string]int64
	requestLatencies    map[string][]time.Duration
	deliveryCounts      map[string]int64
	databaseQueryCounts map[string]int64
	databaseLatencies   map[string][]time.Duration
	errorCounts         map[string]int64
	startTime           time.Time
	maxSamples          int
}

// Counter metrics
const (
	CounterHTTPRequests        = "http_requests_total"
	CounterHTTPRequestsSuccess = "http_requests_success_total"
	CounterHTTPRequestsError   = "http_requests_error_total"
	CounterStockConflicts      = "stock_conflicts_total"
	CounterWebhookDuplicates   = "signature_webhook_duplicates_total"
	CounterRenewalsCreated     = "auto_renewals_created_total"
	CounterRenewalsFailed      = "auto_renewals_failed_total"
	CounterEventsPublished     = "events_published_total"
	CounterEventsFailed        = "events_failed_total"
	CounterDBQueriesTotal      = "db_queries_total"
	CounterDBQueriesError      = "db_queries_error_total"
)

// Delivery lifecycle operations tracked per status transition
const (
	DeliveryOpCreated   = "created"
	DeliveryOpApproved  = "approved"
	DeliveryOpReproved  = "reproved"
	DeliveryOpDelivered = "delivered"
	DeliveryOpReverted  = "reverted"
	DeliveryOpCancelled = "cancelled"
	DeliveryOpWaiting   = "waiting_signature"
	DeliveryOpCompleted = "completed"
	DeliveryOpRejected  = "signature_rejected"
)

// Database query types
const (
	DBQueryTypeSelect = "select"
	DBQueryTypeInsert = "insert"
	DBQueryTypeUpdate = "update"
	DBQueryTypeDelete = "delete"
)

// Error types
const (
	ErrorTypeValidation = "validation"
	ErrorTypeNotFound   = "not_found"
	ErrorTypeConflict   = "conflict"
	ErrorTypeExternal   = "external"
	ErrorTypeInternal   = "internal"
	ErrorTypeDatabase   = "database"
)

var (
	collector *Collector
	once      sync.Once
)

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	once.Do(func() {
		collector = &Collector{
			counters:            make(map[string]int64),
			requestCounts:       make(map[string]int64),
			requestLatencies:    make(map[string][]time.Duration),
			deliveryCounts:      make(map[string]int64),
			databaseQueryCounts: make(map[string]int64),
			databaseLatencies:   make(map[string][]time.Duration),
			errorCounts:         make(map[string]int64),
			startTime:           time.Now(),
			maxSamples:          1000,
		}
	})
	return collector
}

// IncrementCounter increments a named counter
func (c *Collector) IncrementCounter(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counters[name]++
}

// RecordHTTPRequest records an HTTP request with its latency
func (c *Collector) RecordHTTPRequest(path string, success bool, duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.counters[CounterHTTPRequests]++
	if success {
		c.counters[CounterHTTPRequestsSuccess]++
	} else {
		c.counters[CounterHTTPRequestsError]++
	}

	c.requestCounts[path]++
	c.requestLatencies[path] = appendSample(c.requestLatencies[path], duration, c.maxSamples)
}

// RecordDeliveryOperation records a lifecycle operation on a delivery
func (c *Collector) RecordDeliveryOperation(op string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.deliveryCounts[op]++
}

// RecordDatabaseQuery records a database query with its latency
func (c *Collector) RecordDatabaseQuery(queryType string, success bool, duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.counters[CounterDBQueriesTotal]++
	if !success {
		c.counters[CounterDBQueriesError]++
	}
	c.databaseQueryCounts[queryType]++
	c.databaseLatencies[queryType] = appendSample(c.databaseLatencies[queryType], duration, c.maxSamples)
}

// RecordError records an error by type
func (c *Collector) RecordError(errorType string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errorCounts[errorType]++
}

// Snapshot returns a point-in-time view of all metrics
func (c *Collector) Snapshot() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}
	deliveries := make(map[string]int64, len(c.deliveryCounts))
	for k, v := range c.deliveryCounts {
		deliveries[k] = v
	}
	errors := make(map[string]int64, len(c.errorCounts))
	for k, v := range c.errorCounts {
		errors[k] = v
	}
	queries := make(map[string]int64, len(c.databaseQueryCounts))
	for k, v := range c.databaseQueryCounts {
		queries[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.startTime).Seconds(),
		"counters":       counters,
		"deliveries":     deliveries,
		"errors":         errors,
		"db_queries":     queries,
		"request_counts": c.copyRequestCounts(),
	}
}

func (c *Collector) copyRequestCounts() map[string]int64 {
	counts := make(map[string]int64, len(c.requestCounts))
	for k, v := range c.requestCounts {
		counts[k] = v
	}
	return counts
}

func appendSample(samples []time.Duration, d time.Duration, max int) []time.Duration {
	if len(samples) >= max {
		samples = samples[1:]
	}
	return append(samples, d)
}
