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
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/logics"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/gorse-io/product-recommender/storage/blob"
	"github.com/gorse-io/product-recommender/storage/meta"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// NumSamples is the number of training samples reported after splitting.
const NumSamples = 5

// Master runs the offline pipeline: load, split, fit, evaluate and save.
type Master struct {
	Config    *config.Config
	BlobStore blob.Store
	MetaStore meta.Database
}

// NewMaster opens the blob store and, if configured, the meta store.
func NewMaster(cfg *config.Config) (*Master, error) {
	// setup trace provider
	tp, err := cfg.Tracing.NewTracerProvider()
	if err != nil {
		return nil, errors.Trace(err)
	}
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(log.GetErrorHandler())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	store, err := blob.NewStore(cfg.Store)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &Master{Config: cfg, BlobStore: store}
	if cfg.Meta.Store != "" {
		if m.MetaStore, err = meta.Open(cfg.Meta.Store, cfg.Meta.Database); err != nil {
			return nil, errors.Trace(err)
		}
		if err = m.MetaStore.Init(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return m, nil
}

func (m *Master) Close() error {
	if m.MetaStore != nil {
		return m.MetaStore.Close()
	}
	return nil
}

// TrainResult is the outcome of one training run.
type TrainResult struct {
	Run     meta.TrainingRun
	Report  *dataset.LoadReport
	Samples []dataset.Rating
	Metrics model.Metrics
	Model   *mf.SVD
	Schema  model.Schema
}

// LoadAndSplit loads the rating file and splits it into train and test sets.
func (m *Master) LoadAndSplit() (trainSet, testSet *dataset.Dataset, report *dataset.LoadReport, err error) {
	start := time.Now()
	data, report, err := dataset.NewLoader(m.Config.Data).Load(m.Config.Data.Path)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	TrainStepSecondsVec.WithLabelValues("load").Set(time.Since(start).Seconds())
	LoadedRowsTotal.Set(float64(report.Rows))
	SkippedRowsTotal.Set(float64(report.Skipped))
	trainSet, testSet, err = dataset.Split(data, m.Config.Data.TestFraction, m.Config.Model.RandomState)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	TrainSetSize.Set(float64(trainSet.Count()))
	TestSetSize.Set(float64(testSet.Count()))
	return trainSet, testSet, report, nil
}

// Train runs the pipeline, saves the model and records the run.
func (m *Master) Train(ctx context.Context) (*TrainResult, error) {
	ctx, span := otel.Tracer("master").Start(ctx, "Train")
	defer span.End()
	startTime := time.Now()
	result := &TrainResult{Run: meta.TrainingRun{
		ID:        uuid.NewString(),
		StartTime: startTime,
		DataPath:  m.Config.Data.Path,
		ModelName: m.Config.Store.Name,
	}}
	// load dataset
	trainSet, testSet, report, err := m.LoadAndSplit()
	if err != nil {
		return nil, errors.Trace(err)
	}
	result.Report = report
	result.Samples = trainSet.Head(NumSamples)
	for i, sample := range result.Samples {
		log.Logger().Info("training sample", zap.Int("index", i),
			zap.String("user_id", sample.UserId),
			zap.String("product_id", sample.ProductId),
			zap.Float32("label", sample.Label))
	}
	span.SetAttributes(
		attribute.Int("train_size", trainSet.Count()),
		attribute.Int("test_size", testSet.Count()))
	// fit model
	fitCtx, fitSpan := otel.Tracer("master").Start(ctx, "Fit")
	fitStart := time.Now()
	params := model.NewParamsFromConfig(m.Config.Model)
	result.Model = mf.NewSVD(params)
	fitConfig := mf.NewFitConfig().SetVerbose(m.Config.Model.Verbose)
	if err = result.Model.Fit(fitCtx, trainSet, fitConfig); err != nil {
		fitSpan.End()
		return nil, errors.Trace(err)
	}
	fitSpan.End()
	TrainStepSecondsVec.WithLabelValues("fit").Set(time.Since(fitStart).Seconds())
	// evaluate model
	evalStart := time.Now()
	if result.Metrics, err = model.Evaluate(result.Model, testSet, m.Config.Model.Jobs); err != nil {
		return nil, errors.Trace(err)
	}
	TrainStepSecondsVec.WithLabelValues("evaluate").Set(time.Since(evalStart).Seconds())
	updateMetrics(result.Metrics)
	span.SetAttributes(attribute.Float64("rmse", float64(result.Metrics.RMSE)))
	log.Logger().Info("evaluate model",
		zap.Float32("rmse", result.Metrics.RMSE),
		zap.Float32("r_squared", result.Metrics.RSquared),
		zap.Float32("mae", result.Metrics.MAE),
		zap.Float32("mse", result.Metrics.MSE))
	// save model
	saveStart := time.Now()
	result.Schema = model.NewSchema(trainSet.Count(), trainSet.CountUsers(), trainSet.CountProducts())
	result.Schema.UserIdColumn = columnName(m.Config.Data.UserIdHeader, "user_id")
	result.Schema.ProductIdColumn = columnName(m.Config.Data.ProductIdHeader, "product_id")
	result.Schema.LabelColumn = columnName(m.Config.Data.LabelHeader, "rating")
	if err = mf.Save(m.BlobStore, m.Config.Store.Name, result.Model, result.Schema); err != nil {
		return nil, errors.Trace(err)
	}
	TrainStepSecondsVec.WithLabelValues("save").Set(time.Since(saveStart).Seconds())
	// record run
	result.Run.EndTime = time.Now()
	result.Run.Rows = report.Rows
	result.Run.Accepted = report.Accepted
	result.Run.Skipped = report.Skipped
	result.Run.TrainSize = trainSet.Count()
	result.Run.TestSize = testSet.Count()
	result.Run.Params = params.ToString()
	result.Run.RMSE = result.Metrics.RMSE
	result.Run.RSquared = result.Metrics.RSquared
	result.Run.MAE = result.Metrics.MAE
	result.Run.MSE = result.Metrics.MSE
	if m.MetaStore != nil {
		if err = m.MetaStore.AddTrainingRun(&result.Run); err != nil {
			return nil, errors.Trace(err)
		}
	}
	TrainTotalSeconds.Set(time.Since(startTime).Seconds())
	log.Logger().Info("complete training",
		zap.String("run_id", result.Run.ID),
		zap.String("model", m.Config.Store.Name),
		zap.Duration("elapsed", time.Since(startTime)))
	return result, nil
}

// Tune searches hyper-parameters on the configured data.
func (m *Master) Tune(ctx context.Context) (mf.SearchResult, error) {
	trainSet, testSet, _, err := m.LoadAndSplit()
	if err != nil {
		return mf.SearchResult{}, errors.Trace(err)
	}
	fitConfig := mf.NewFitConfig().SetVerbose(0)
	return mf.Search(ctx, model.NewParamsFromConfig(m.Config.Model), trainSet, testSet,
		m.Config.Model.NumTrials, m.Config.Model.RandomState, fitConfig, m.Config.Model.Jobs)
}

// LoadPredictor loads the saved model and wraps it in a predictor.
func (m *Master) LoadPredictor() (*logics.Predictor, error) {
	svd, schema, err := mf.Load(m.BlobStore, m.Config.Store.Name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return logics.NewPredictor(svd, schema, m.Config.Server.UnseenPolicy, m.Config.Server.GetPoolSize())
}

func columnName(header, fallback string) string {
	if header != "" {
		return header
	}
	return fallback
}
