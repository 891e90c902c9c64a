// prometheus.go - Prometheus instrumentation for the mixnet transport.
// Copyright (C) 2026  The go-mixnet-transport developers.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package instrument exposes prometheus metrics for the bridge and the
// connection layer.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixnet_transport_inbound_messages_total",
			Help: "Number of inbound messages by kind",
		},
		[]string{"kind"},
	)
	outboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixnet_transport_outbound_messages_total",
			Help: "Number of outbound messages by kind and route",
		},
		[]string{"kind", "route"},
	)
	malformedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixnet_transport_malformed_messages_total",
			Help: "Number of inbound packets dropped as undecodable",
		},
	)
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mixnet_transport_send_failures_total",
			Help: "Number of outbound dispatches that failed at the mixnet client",
		},
	)
	droppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixnet_transport_dropped_messages_total",
			Help: "Number of messages dropped above the bridge",
		},
		[]string{"reason"},
	)

	registerOnce sync.Once
)

func register() {
	prometheus.MustRegister(inboundMessages)
	prometheus.MustRegister(outboundMessages)
	prometheus.MustRegister(malformedMessages)
	prometheus.MustRegister(sendFailures)
	prometheus.MustRegister(droppedMessages)
}

// Init registers the metrics and, when addr is not empty, exposes them via
// HTTP on addr under /metrics.
func Init(addr string) {
	registerOnce.Do(register)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}

// Inbound counts a decoded inbound message of the given kind.
func Inbound(kind string) {
	inboundMessages.With(prometheus.Labels{"kind": kind}).Inc()
}

// Outbound counts a dispatched outbound message of the given kind over the
// given route ("reply" or "direct").
func Outbound(kind, route string) {
	outboundMessages.With(prometheus.Labels{"kind": kind, "route": route}).Inc()
}

// Malformed counts an inbound packet dropped as undecodable.
func Malformed() {
	malformedMessages.Inc()
}

// SendFailure counts a failed outbound dispatch.
func SendFailure() {
	sendFailures.Inc()
}

// Dropped counts a message dropped above the bridge for the given reason.
func Dropped(reason string) {
	droppedMessages.With(prometheus.Labels{"reason": reason}).Inc()
}
