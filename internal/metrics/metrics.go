// Package metrics exposes prometheus counters for bidding and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	bidsAccepted    prometheus.Counter
	bidsRejected    *prometheus.CounterVec
	bidLatency      prometheus.Histogram
	auctionsSettled prometheus.Counter
	rateLimited     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// NewCollector registers every metric on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "winbid_bids_accepted_total",
			Help: "Bids committed",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "winbid_bids_rejected_total",
			Help: "Bids refused before commit, by reason",
		}, []string{"reason"}),
		bidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "winbid_bid_duration_seconds",
			Help:    "Time spent placing and settling a bid",
			Buckets: prometheus.DefBuckets,
		}),
		auctionsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "winbid_auctions_settled_total",
			Help: "Products closed with a drawn winner",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "winbid_rate_limited_total",
			Help: "Requests refused by a rate limit policy",
		}, []string{"policy"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "winbid_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "winbid_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.bidsAccepted,
		c.bidsRejected,
		c.bidLatency,
		c.auctionsSettled,
		c.rateLimited,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) BidAccepted(d time.Duration) {
	c.bidsAccepted.Inc()
	c.bidLatency.Observe(d.Seconds())
}

func (c *Collector) BidRejected(reason string) {
	c.bidsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) AuctionSettled() {
	c.auctionsSettled.Inc()
}

func (c *Collector) RateLimited(policy string) {
	c.rateLimited.WithLabelValues(policy).Inc()
}

// HTTPRequest records one finished request. route is the matched pattern, not the raw path.
func (c *Collector) HTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the prometheus scrape endpoint
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
