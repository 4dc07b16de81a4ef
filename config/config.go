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
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const EnvPrefix = "RECOMMENDER"

const (
	StorePOSIX = "posix"
	StoreS3    = "s3"
	StoreGCS   = "gcs"
	StoreAzure = "azure"
)

const (
	UnseenMean   = "mean"
	UnseenZero   = "zero"
	UnseenReject = "reject"
)

// Config is the configuration for training and serving.
type Config struct {
	Data    DataConfig    `mapstructure:"data"`
	Model   ModelConfig   `mapstructure:"model"`
	Store   StoreConfig   `mapstructure:"store"`
	Meta    MetaConfig    `mapstructure:"meta"`
	Server  ServerConfig  `mapstructure:"server"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// DataConfig describes the rating file. Column indices are zero-based.
type DataConfig struct {
	Path            string  `mapstructure:"path" validate:"required"`
	Separator       string  `mapstructure:"separator" validate:"len=1"`
	HasHeader       bool    `mapstructure:"has_header"`
	ProductIdColumn int     `mapstructure:"product_id_column" validate:"gte=0"`
	LabelColumn     int     `mapstructure:"label_column" validate:"gte=0"`
	UserIdColumn    int     `mapstructure:"user_id_column" validate:"gte=0"`
	ProductIdHeader string  `mapstructure:"product_id_header"`
	LabelHeader     string  `mapstructure:"label_header"`
	UserIdHeader    string  `mapstructure:"user_id_header"`
	TestFraction    float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	Progress        bool    `mapstructure:"progress"`
}

// ModelConfig holds hyper-parameters of the factorization model.
type ModelConfig struct {
	NFactors    int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr          float64 `mapstructure:"lr" validate:"gt=0"`
	Reg         float64 `mapstructure:"reg" validate:"gte=0"`
	InitMean    float64 `mapstructure:"init_mean"`
	InitStdDev  float64 `mapstructure:"init_std" validate:"gte=0"`
	UseBias     bool    `mapstructure:"use_bias"`
	RandomState int64   `mapstructure:"random_state"`
	Verbose     int     `mapstructure:"verbose" validate:"gte=0"`
	Jobs        int     `mapstructure:"jobs" validate:"gt=0"`
	NumTrials   int     `mapstructure:"n_trials" validate:"gt=0"`
}

// StoreConfig selects where the model artifact lives.
type StoreConfig struct {
	Type  string          `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	Dir   string          `mapstructure:"dir"`
	Name  string          `mapstructure:"name" validate:"required"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

// MetaConfig points to the training history database. Empty disables it.
type MetaConfig struct {
	Store    string `mapstructure:"store"`
	Database string `mapstructure:"database"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	PoolSize     int           `mapstructure:"pool_size" validate:"gte=0"`
	UnseenPolicy string        `mapstructure:"unseen_policy" validate:"oneof=mean zero reject"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	LoadTimeout  time.Duration `mapstructure:"load_timeout" validate:"gte=0"`
	RateLimit    int           `mapstructure:"rate_limit" validate:"gte=0"`
}

// GetPoolSize returns the number of prediction engines, defaulting to GOMAXPROCS.
func (c *ServerConfig) GetPoolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return runtime.GOMAXPROCS(0)
}

type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=zipkin otlp otlphttp"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

// NewTracerProvider creates a tracer provider. A no-op provider is returned
// when tracing is disabled.
func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}

	var exporter tracesdk.SpanExporter
	var err error
	switch config.Exporter {
	case "zipkin":
		exporter, err = zipkin.New(config.CollectorEndpoint)
	case "otlp":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.TODO(), client)
	case "otlphttp":
		client := otlptracehttp.NewClient(otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(config.CollectorEndpoint))
		exporter, err = otlptrace.New(context.TODO(), client)
	default:
		return nil, errors.NotSupportedf("exporter %s", config.Exporter)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var sampler tracesdk.Sampler
	switch config.Sampler {
	case "always":
		sampler = tracesdk.AlwaysSample()
	case "never":
		sampler = tracesdk.NeverSample()
	case "ratio":
		sampler = tracesdk.TraceIDRatioBased(config.Ratio)
	default:
		return nil, errors.NotSupportedf("sampler %s", config.Sampler)
	}

	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("product-recommender"),
		)),
	), nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Path:            "Data/amazon.csv",
			Separator:       ",",
			HasHeader:       true,
			ProductIdColumn: 0,
			LabelColumn:     6,
			UserIdColumn:    9,
			TestFraction:    0.2,
		},
		Model: ModelConfig{
			NFactors:   100,
			NEpochs:    20,
			Lr:         0.005,
			Reg:        0.02,
			InitStdDev: 0.1,
			UseBias:    true,
			Verbose:    5,
			Jobs:       1,
			NumTrials:  10,
		},
		Store: StoreConfig{
			Type: StorePOSIX,
			Dir:  "Data",
			Name: "ProductRecommenderModel.bin",
		},
		Meta: MetaConfig{
			Database: "recommender",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			UnseenPolicy: UnseenMean,
			Timeout:      5 * time.Second,
			LoadTimeout:  10 * time.Minute,
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.path", defaultConfig.Data.Path)
	v.SetDefault("data.separator", defaultConfig.Data.Separator)
	v.SetDefault("data.has_header", defaultConfig.Data.HasHeader)
	v.SetDefault("data.product_id_column", defaultConfig.Data.ProductIdColumn)
	v.SetDefault("data.label_column", defaultConfig.Data.LabelColumn)
	v.SetDefault("data.user_id_column", defaultConfig.Data.UserIdColumn)
	v.SetDefault("data.product_id_header", defaultConfig.Data.ProductIdHeader)
	v.SetDefault("data.label_header", defaultConfig.Data.LabelHeader)
	v.SetDefault("data.user_id_header", defaultConfig.Data.UserIdHeader)
	v.SetDefault("data.test_fraction", defaultConfig.Data.TestFraction)
	v.SetDefault("data.progress", defaultConfig.Data.Progress)
	// [model]
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.reg", defaultConfig.Model.Reg)
	v.SetDefault("model.init_mean", defaultConfig.Model.InitMean)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.use_bias", defaultConfig.Model.UseBias)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	v.SetDefault("model.verbose", defaultConfig.Model.Verbose)
	v.SetDefault("model.jobs", defaultConfig.Model.Jobs)
	v.SetDefault("model.n_trials", defaultConfig.Model.NumTrials)
	// [store]
	v.SetDefault("store.type", defaultConfig.Store.Type)
	v.SetDefault("store.dir", defaultConfig.Store.Dir)
	v.SetDefault("store.name", defaultConfig.Store.Name)
	for _, key := range []string{
		"store.s3.endpoint", "store.s3.access_key_id", "store.s3.secret_access_key", "store.s3.bucket", "store.s3.prefix",
		"store.gcs.bucket", "store.gcs.prefix", "store.gcs.credentials_file",
		"store.azure.account_name", "store.azure.account_key", "store.azure.endpoint",
		"store.azure.connection_string", "store.azure.container", "store.azure.prefix",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.s3.use_ssl", false)
	// [meta]
	v.SetDefault("meta.store", defaultConfig.Meta.Store)
	v.SetDefault("meta.database", defaultConfig.Meta.Database)
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.pool_size", defaultConfig.Server.PoolSize)
	v.SetDefault("server.unseen_policy", defaultConfig.Server.UnseenPolicy)
	v.SetDefault("server.timeout", defaultConfig.Server.Timeout)
	v.SetDefault("server.load_timeout", defaultConfig.Server.LoadTimeout)
	v.SetDefault("server.rate_limit", defaultConfig.Server.RateLimit)
	// [tracing]
	v.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

// LoadConfig loads configuration from a TOML file. Every key can be overridden
// by an environment variable, e.g. RECOMMENDER_DATA_PATH for data.path. An
// empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks field constraints and cross-field rules.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	columns := []int{config.Data.ProductIdColumn, config.Data.LabelColumn, config.Data.UserIdColumn}
	if len(lo.Uniq(columns)) != len(columns) {
		return errors.NotValidf("data columns %v must be distinct", columns)
	}
	switch config.Store.Type {
	case StoreS3:
		if config.Store.S3.Endpoint == "" || config.Store.S3.Bucket == "" {
			return errors.NotValidf("s3 store requires endpoint and bucket")
		}
	case StoreGCS:
		if config.Store.GCS.Bucket == "" {
			return errors.NotValidf("gcs store requires bucket")
		}
	case StoreAzure:
		if config.Store.Azure.Container == "" {
			return errors.NotValidf("azure store requires container")
		}
	}
	return nil
}
