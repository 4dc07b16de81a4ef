// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "predict_seconds",
	})
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "requests_total",
	}, []string{"path", "status"})
	UnseenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "unseen_total",
	})
	PoolTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "pool_timeout_total",
	})
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "rate_limited_total",
	})
	LoadModelSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "load_model_seconds",
	})
	ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "server",
		Name:      "model_loaded",
	})
)
