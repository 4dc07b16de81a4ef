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

package main

import (
	"bytes"
	"testing"

	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/stretchr/testify/assert"
)

func TestPrintMetrics(t *testing.T) {
	var buf bytes.Buffer
	printMetrics(&buf, model.Metrics{RMSE: 0.5, RSquared: 0.25, MAE: 0.4, MSE: 0.25})
	assert.Contains(t, buf.String(), "0.5000")
	assert.Contains(t, buf.String(), "0.2500")
}

func TestPrintSamples(t *testing.T) {
	var buf bytes.Buffer
	printSamples(&buf, []dataset.Rating{{UserId: "U1", ProductId: "P1", Label: 4.2}})
	assert.Contains(t, buf.String(), "U1")
	assert.Contains(t, buf.String(), "4.2")
	buf.Reset()
	printLoadReport(&buf, &dataset.LoadReport{Rows: 3, Accepted: 2, Skipped: 1})
	assert.Contains(t, buf.String(), "2")
}

func TestPrintTrials(t *testing.T) {
	var buf bytes.Buffer
	printTrials(&buf, mf.SearchResult{
		BestParams: model.Params{model.NFactors: 16},
		BestIndex:  1,
		Trials: []mf.Trial{
			{Params: model.Params{model.NFactors: 8}, Metrics: model.Metrics{RMSE: 1.1}},
			{Params: model.Params{model.NFactors: 16}, Metrics: model.Metrics{RMSE: 0.9}},
		},
	})
	assert.Contains(t, buf.String(), "(best)")
	assert.Contains(t, buf.String(), "0.9000")
	assert.Contains(t, buf.String(), "16")
}

func TestCommands(t *testing.T) {
	names := make([]string, 0)
	for _, command := range rootCommand.Commands() {
		names = append(names, command.Name())
	}
	assert.Subset(t, names, []string{"train", "tune", "predict", "serve", "version"})
	threshold, err := predictCommand.Flags().GetFloat64("threshold")
	assert.NoError(t, err)
	assert.Equal(t, 3.5, threshold)
}
