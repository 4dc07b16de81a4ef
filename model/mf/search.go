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

package mf

import (
	"context"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Trial is the outcome of fitting one set of hyper-parameters.
type Trial struct {
	Params  model.Params
	Metrics model.Metrics
}

type SearchResult struct {
	BestParams  model.Params
	BestMetrics model.Metrics
	BestIndex   int
	Trials      []Trial
}

// ModelSearch is the objective of a hyper-parameter study. Each trial fits a
// model on the train set and scores it by RMSE on the test set.
type ModelSearch struct {
	ctx        context.Context
	baseParams model.Params
	trainSet   *dataset.Dataset
	testSet    *dataset.Dataset
	config     *FitConfig
	jobs       int
	result     SearchResult
}

// NewModelSearch creates the objective. Trials are scored with jobs evaluation workers.
func NewModelSearch(ctx context.Context, baseParams model.Params, trainSet, testSet *dataset.Dataset, config *FitConfig, jobs int) *ModelSearch {
	return &ModelSearch{
		ctx:        ctx,
		baseParams: baseParams,
		trainSet:   trainSet,
		testSet:    testSet,
		config:     config,
		jobs:       jobs,
		result:     SearchResult{BestIndex: -1},
	}
}

// SuggestParams samples hyper-parameters for a trial.
func (ms *ModelSearch) SuggestParams(trial goptuna.Trial) (model.Params, error) {
	nFactors, err := trial.SuggestDiscreteFloat(string(model.NFactors), 8, 128, 8)
	if err != nil {
		return nil, errors.Trace(err)
	}
	lr, err := trial.SuggestLogFloat(string(model.Lr), 0.001, 0.05)
	if err != nil {
		return nil, errors.Trace(err)
	}
	reg, err := trial.SuggestLogFloat(string(model.Reg), 0.001, 0.1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	initStdDev, err := trial.SuggestLogFloat(string(model.InitStdDev), 0.001, 0.1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model.Params{
		model.NFactors:   int(nFactors),
		model.Lr:         float32(lr),
		model.Reg:        float32(reg),
		model.InitStdDev: float32(initStdDev),
	}, nil
}

func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	params, err := ms.SuggestParams(trial)
	if err != nil {
		return 0, errors.Trace(err)
	}
	params = ms.baseParams.Overwrite(params)
	m := NewSVD(params)
	if err = m.Fit(ms.ctx, ms.trainSet, ms.config); err != nil {
		return 0, errors.Trace(err)
	}
	metrics, err := model.Evaluate(m, ms.testSet, ms.jobs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	ms.result.Trials = append(ms.result.Trials, Trial{Params: params, Metrics: metrics})
	if ms.result.BestIndex < 0 || metrics.RMSE < ms.result.BestMetrics.RMSE {
		ms.result.BestIndex = len(ms.result.Trials) - 1
		ms.result.BestParams = params.Copy()
		ms.result.BestMetrics = metrics
	}
	log.Logger().Info("search trial",
		zap.Int("trial", len(ms.result.Trials)),
		zap.Any("params", params),
		zap.Float32("rmse", metrics.RMSE))
	return float64(metrics.RMSE), nil
}

func (ms *ModelSearch) Result() SearchResult {
	return ms.result
}

// Search runs a TPE study of nTrials trials minimizing test RMSE.
func Search(ctx context.Context, baseParams model.Params, trainSet, testSet *dataset.Dataset, nTrials int, seed int64, config *FitConfig, jobs int) (SearchResult, error) {
	startTime := time.Now()
	search := NewModelSearch(ctx, baseParams, trainSet, testSet, config, jobs)
	study, err := goptuna.CreateStudy("svd",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))))
	if err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if err = study.Optimize(search.Objective, nTrials); err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	result := search.Result()
	if result.BestIndex < 0 {
		return SearchResult{}, errors.NotFoundf("successful trial")
	}
	log.Logger().Info("complete model search",
		zap.Float32("rmse", result.BestMetrics.RMSE),
		zap.Any("params", result.BestParams),
		zap.String("search_time", time.Since(startTime).String()))
	return result, nil
}
