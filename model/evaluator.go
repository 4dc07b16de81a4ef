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

package model

import (
	"math"

	"github.com/gorse-io/product-recommender/common/parallel"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/juju/errors"
)

// Metrics of a regression model on a test set.
type Metrics struct {
	RMSE     float32
	RSquared float32
	MAE      float32
	MSE      float32
}

type partialSums struct {
	absErr float64
	sqErr  float64
	label  float64
}

// Evaluate a predictor on a test set with jobs workers. R² is reported as 0
// when labels in the test set have no variance.
func Evaluate(predictor Predictor, testSet *dataset.Dataset, jobs int) (Metrics, error) {
	n := testSet.Count()
	if n == 0 {
		return Metrics{}, errors.NotValidf("empty test set")
	}
	chunks := parallel.Split(testSet.Ratings(), max(jobs, 1))
	sums := make([]partialSums, len(chunks))
	parallel.For(len(chunks), jobs, func(i int) {
		for _, rating := range chunks[i] {
			diff := float64(rating.Label) - float64(predictor.Predict(rating.UserId, rating.ProductId))
			sums[i].absErr += math.Abs(diff)
			sums[i].sqErr += diff * diff
			sums[i].label += float64(rating.Label)
		}
	})
	var total partialSums
	for _, s := range sums {
		total.absErr += s.absErr
		total.sqErr += s.sqErr
		total.label += s.label
	}
	mean := total.label / float64(n)
	var ssTot float64
	for _, rating := range testSet.Ratings() {
		d := float64(rating.Label) - mean
		ssTot += d * d
	}
	mse := total.sqErr / float64(n)
	metrics := Metrics{
		RMSE: float32(math.Sqrt(mse)),
		MAE:  float32(total.absErr / float64(n)),
		MSE:  float32(mse),
	}
	if ssTot > 0 {
		metrics.RSquared = float32(1 - total.sqErr/ssTot)
	}
	return metrics, nil
}
