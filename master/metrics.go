// Copyright 2025 gorse Project Authors
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

package master

import (
	"github.com/gorse-io/product-recommender/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelStep = "step"

var (
	TrainStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "train_step_seconds",
	}, []string{LabelStep})
	TrainTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "train_total_seconds",
	})
	LoadedRowsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "loaded_rows_total",
	})
	SkippedRowsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "skipped_rows_total",
	})
	TrainSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "train_set_size",
	})
	TestSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "test_set_size",
	})
	TestRMSE = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "test_rmse",
	})
	TestRSquared = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "test_r_squared",
	})
	TestMAE = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommender",
		Subsystem: "master",
		Name:      "test_mae",
	})
)

func updateMetrics(metrics model.Metrics) {
	TestRMSE.Set(float64(metrics.RMSE))
	TestRSquared.Set(float64(metrics.RSquared))
	TestMAE.Set(float64(metrics.MAE))
}

// WriteMetrics exports training metrics in the Prometheus text format, for
// the node exporter textfile collector.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
