// Copyright 2020 gorse Project Authors
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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("config.toml")
	assert.NoError(t, err)

	// [data]
	assert.Equal(t, "Data/amazon.csv", config.Data.Path)
	assert.Equal(t, ",", config.Data.Separator)
	assert.True(t, config.Data.HasHeader)
	assert.Equal(t, 0, config.Data.ProductIdColumn)
	assert.Equal(t, 6, config.Data.LabelColumn)
	assert.Equal(t, 9, config.Data.UserIdColumn)
	assert.Equal(t, "product_id", config.Data.ProductIdHeader)
	assert.Equal(t, "rating", config.Data.LabelHeader)
	assert.Equal(t, "user_id", config.Data.UserIdHeader)
	assert.Equal(t, 0.2, config.Data.TestFraction)
	// [model]
	assert.Equal(t, 100, config.Model.NFactors)
	assert.Equal(t, 20, config.Model.NEpochs)
	assert.Equal(t, 0.005, config.Model.Lr)
	assert.Equal(t, 0.02, config.Model.Reg)
	assert.Equal(t, 0.1, config.Model.InitStdDev)
	assert.True(t, config.Model.UseBias)
	assert.Equal(t, 10, config.Model.NumTrials)
	// [store]
	assert.Equal(t, StorePOSIX, config.Store.Type)
	assert.Equal(t, "Data", config.Store.Dir)
	assert.Equal(t, "ProductRecommenderModel.bin", config.Store.Name)
	// [meta]
	assert.Equal(t, "sqlite://Data/meta.db", config.Meta.Store)
	// [server]
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, UnseenMean, config.Server.UnseenPolicy)
	assert.Equal(t, 5*time.Second, config.Server.Timeout)
	assert.Equal(t, 10*time.Minute, config.Server.LoadTimeout)
	assert.Zero(t, config.Server.RateLimit)
	// [tracing]
	assert.False(t, config.Tracing.EnableTracing)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, "always", config.Tracing.Sampler)
	assert.Equal(t, 1.0, config.Tracing.Ratio)
}

func TestSetDefault(t *testing.T) {
	config, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
}

func TestBindEnv(t *testing.T) {
	t.Setenv("RECOMMENDER_DATA_PATH", "/data/ratings.csv")
	t.Setenv("RECOMMENDER_MODEL_N_FACTORS", "8")
	t.Setenv("RECOMMENDER_STORE_DIR", "/models")
	t.Setenv("RECOMMENDER_SERVER_PORT", "9090")
	t.Setenv("RECOMMENDER_SERVER_UNSEEN_POLICY", "reject")
	t.Setenv("RECOMMENDER_SERVER_TIMEOUT", "1s")

	config, err := LoadConfig("config.toml")
	assert.NoError(t, err)
	assert.Equal(t, "/data/ratings.csv", config.Data.Path)
	assert.Equal(t, 8, config.Model.NFactors)
	assert.Equal(t, "/models", config.Store.Dir)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, UnseenReject, config.Server.UnseenPolicy)
	assert.Equal(t, time.Second, config.Server.Timeout)
	// check default values
	assert.Equal(t, 20, config.Model.NEpochs)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	assert.NoError(t, config.Validate())

	config = GetDefaultConfig()
	config.Data.TestFraction = 1
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Data.LabelColumn = config.Data.UserIdColumn
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Server.UnseenPolicy = "guess"
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Store.Type = StoreS3
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))
	config.Store.S3.Endpoint = "localhost:9000"
	config.Store.S3.Bucket = "models"
	assert.NoError(t, config.Validate())
}

func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte("[model]\nn_factors = 0\n"), 0o644))
	_, err := LoadConfig(path)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestTracerProvider(t *testing.T) {
	traceConfig := TracingConfig{}
	tp, err := traceConfig.NewTracerProvider()
	assert.NoError(t, err)
	assert.Equal(t, "noop.TracerProvider", fmt.Sprintf("%T", tp))

	traceConfig = TracingConfig{
		EnableTracing:     true,
		Exporter:          "zipkin",
		CollectorEndpoint: "http://localhost:9411/api/v2/spans",
		Sampler:           "ratio",
		Ratio:             0.5,
	}
	tp, err = traceConfig.NewTracerProvider()
	assert.NoError(t, err)
	assert.Equal(t, "*trace.TracerProvider", fmt.Sprintf("%T", tp))

	traceConfig.Exporter = "otlphttp"
	traceConfig.CollectorEndpoint = "localhost:4318"
	traceConfig.Sampler = "always"
	_, err = traceConfig.NewTracerProvider()
	assert.NoError(t, err)

	traceConfig.Sampler = "sometimes"
	_, err = traceConfig.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))
	traceConfig.Exporter = "jaeger"
	_, err = traceConfig.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))
}
