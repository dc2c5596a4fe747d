// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics declares the prometheus collectors the assignment
// core reports, grounded in pingcap-pd's server/metrics.go (cmdCounter
// / balancerCounter / txnCounter style naming).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TransitionCounter counts every region-state transition the
	// Assignment Manager observes, labeled by the resulting state.
	TransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionmaster",
			Subsystem: "assign",
			Name:      "transitions_total",
			Help:      "Counter of region state transitions observed by the Assignment Manager.",
		}, []string{"state"})

	// TimeoutCounter counts transition timeouts fired, labeled by the
	// state that timed out.
	TimeoutCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionmaster",
			Subsystem: "assign",
			Name:      "timeouts_total",
			Help:      "Counter of transition timeouts forced back to OFFLINE.",
		}, []string{"state"})

	// BalancerMoves counts moves the balancer recommended and whether
	// the Assignment Manager enacted them.
	BalancerMoves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionmaster",
			Subsystem: "balancer",
			Name:      "moves_total",
			Help:      "Counter of balance moves computed, labeled by outcome.",
		}, []string{"result"})

	// SplitDuration observes the wall time of a split transaction
	// from Prepare through commit (PONR) or rollback.
	SplitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "regionmaster",
			Subsystem: "split",
			Name:      "transaction_duration_seconds",
			Help:      "Bucketed histogram of split transaction durations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 16),
		}, []string{"outcome"})

	// CoordStoreOpDuration observes coord-store operation latency.
	CoordStoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "regionmaster",
			Subsystem: "coordstore",
			Name:      "op_duration_seconds",
			Help:      "Bucketed histogram of coord-store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"op"})
)

func init() {
	prometheus.MustRegister(TransitionCounter, TimeoutCounter, BalancerMoves, SplitDuration, CoordStoreOpDuration)
}
