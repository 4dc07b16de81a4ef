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
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

const evalEpsilon = 0.00001

type constantPredictor float32

func (p constantPredictor) Predict(_, _ string) float32 {
	return float32(p)
}

type lookupPredictor map[string]float32

func (p lookupPredictor) Predict(userId, productId string) float32 {
	return p[userId+"/"+productId]
}

func newTestSet(labels ...float32) *dataset.Dataset {
	ratings := make([]dataset.Rating, len(labels))
	for i, label := range labels {
		ratings[i] = dataset.Rating{UserId: "u", ProductId: string(rune('a' + i)), Label: label}
	}
	return dataset.NewDataset(ratings)
}

func TestEvaluate(t *testing.T) {
	testSet := newTestSet(1, 2, 3, 4)
	for _, jobs := range []int{1, 2, 3, 8} {
		metrics, err := Evaluate(constantPredictor(2.5), testSet, jobs)
		assert.NoError(t, err)
		// errors: 1.5, 0.5, 0.5, 1.5
		assert.InDelta(t, 1.0, metrics.MAE, evalEpsilon)
		assert.InDelta(t, 1.25, metrics.MSE, evalEpsilon)
		assert.InDelta(t, math32.Sqrt(1.25), metrics.RMSE, evalEpsilon)
		// SS_tot = 5, SS_res = 5
		assert.InDelta(t, 0, metrics.RSquared, evalEpsilon)
	}
}

func TestEvaluatePerfect(t *testing.T) {
	testSet := newTestSet(1, 5)
	metrics, err := Evaluate(lookupPredictor{"u/a": 1, "u/b": 5}, testSet, 2)
	assert.NoError(t, err)
	assert.Zero(t, metrics.RMSE)
	assert.Equal(t, float32(1), metrics.RSquared)
}

func TestEvaluateZeroVariance(t *testing.T) {
	metrics, err := Evaluate(constantPredictor(3), newTestSet(4, 4, 4), 1)
	assert.NoError(t, err)
	assert.InDelta(t, 1, metrics.RMSE, evalEpsilon)
	assert.Zero(t, metrics.RSquared)
}

func TestEvaluateEmpty(t *testing.T) {
	_, err := Evaluate(constantPredictor(3), dataset.NewDataset(nil), 1)
	assert.True(t, errors.Is(err, errors.NotValid))
}
