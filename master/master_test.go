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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

const header = "product_id,product_name,category,discounted_price,actual_price,discount_percentage,rating,rating_count,about_product,user_id\n"

func writeRatings(t *testing.T, dir string, nUsers, nProducts int) string {
	var builder strings.Builder
	builder.WriteString(header)
	for u := 0; u < nUsers; u++ {
		for p := 0; p < nProducts; p++ {
			label := 1 + float32(u%5)*0.5 + float32(p%5)*0.5
			_, _ = fmt.Fprintf(&builder, "P%d,name,category,1,2,50%%,%.1f,\"1,000\",about,U%d\n", p, label, u)
		}
	}
	// malformed rows
	builder.WriteString(",name,category,1,2,50%,4.0,1,about,U0\n")
	builder.WriteString("P0,name,category,1,2,50%,bad,1,about,U0\n")
	path := filepath.Join(dir, "ratings.csv")
	assert.NoError(t, os.WriteFile(path, []byte(builder.String()), 0644))
	return path
}

type MasterTestSuite struct {
	suite.Suite
	*Master
}

func (suite *MasterTestSuite) SetupTest() {
	dir := suite.T().TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Data.Path = writeRatings(suite.T(), dir, 20, 20)
	cfg.Model.NFactors = 8
	cfg.Model.NEpochs = 50
	cfg.Model.Lr = 0.01
	cfg.Model.NumTrials = 3
	cfg.Store.Dir = filepath.Join(dir, "models")
	cfg.Meta.Store = fmt.Sprintf("sqlite://%s/meta.db", dir)
	var err error
	suite.Master, err = NewMaster(cfg)
	suite.NoError(err)
}

func (suite *MasterTestSuite) TearDownTest() {
	suite.NoError(suite.Master.Close())
}

func (suite *MasterTestSuite) TestTrain() {
	result, err := suite.Train(context.Background())
	suite.NoError(err)
	suite.Equal(402, result.Report.Rows)
	suite.Equal(400, result.Report.Accepted)
	suite.Equal(2, result.Report.Skipped)
	suite.Len(result.Samples, NumSamples)
	suite.Equal(320, result.Run.TrainSize)
	suite.Equal(80, result.Run.TestSize)
	suite.Greater(result.Metrics.RSquared, float32(0))
	suite.Equal(result.Metrics.RMSE, result.Run.RMSE)
	suite.Equal("user_id", result.Schema.UserIdColumn)
	suite.Equal(320, result.Schema.NumRatings)

	// model is saved
	svd, schema, err := mf.Load(suite.BlobStore, suite.Config.Store.Name)
	suite.NoError(err)
	suite.Equal(result.Schema.NumUsers, schema.NumUsers)
	suite.Equal(result.Model.Predict("U1", "P2"), svd.Predict("U1", "P2"))

	// run is recorded
	run, err := suite.MetaStore.GetLatestTrainingRun()
	suite.NoError(err)
	suite.Equal(result.Run.ID, run.ID)
	suite.Equal(400, run.Accepted)

	// predictor
	predictor, err := suite.LoadPredictor()
	suite.NoError(err)
	score, err := predictor.Predict(context.Background(), "U1", "P2")
	suite.NoError(err)
	suite.Equal(svd.Predict("U1", "P2"), score)
}

func (suite *MasterTestSuite) TestTrainSpans() {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(noop.NewTracerProvider())
	_, err := suite.Train(context.Background())
	suite.NoError(err)

	spans := make(map[string]sdktrace.ReadOnlySpan)
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	suite.Contains(spans, "Train")
	suite.Contains(spans, "Fit")
	suite.Equal(spans["Train"].SpanContext().SpanID(), spans["Fit"].Parent().SpanID())
	// epochs are recorded on the fit span
	events := spans["Fit"].Events()
	suite.Len(events, suite.Config.Model.NEpochs/suite.Config.Model.Verbose)
	for _, event := range events {
		suite.Equal("epoch", event.Name)
	}
	suite.Empty(spans["Train"].Events())
}

func (suite *MasterTestSuite) TestTrainMissingData() {
	suite.Config.Data.Path = filepath.Join(suite.T().TempDir(), "missing.csv")
	_, err := suite.Train(context.Background())
	suite.True(errors.Is(err, errors.NotFound))
	_, err = suite.LoadPredictor()
	suite.True(errors.Is(err, errors.NotFound))
}

func (suite *MasterTestSuite) TestTune() {
	result, err := suite.Tune(context.Background())
	suite.NoError(err)
	suite.Len(result.Trials, 3)
	suite.Contains(result.BestParams, model.NFactors)
	for _, trial := range result.Trials {
		suite.LessOrEqual(result.BestMetrics.RMSE, trial.Metrics.RMSE)
	}
}

func TestMaster(t *testing.T) {
	suite.Run(t, new(MasterTestSuite))
}

func TestWriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recommender.prom")
	TestRMSE.Set(0.5)
	assert.NoError(t, WriteMetrics(path))
	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "recommender_master_test_rmse 0.5")
}
