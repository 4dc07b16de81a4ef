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

package server

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/logics"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/gorse-io/product-recommender/storage/blob"
	"github.com/gorse-io/product-recommender/storage/meta"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Server serves predictions of the model in the blob store.
type Server struct {
	RestServer
	BlobStore blob.Store
	cancel    context.CancelFunc
}

// NewServer creates a server. The meta store is optional.
func NewServer(cfg *config.Config) (*Server, error) {
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
	s := &Server{
		RestServer: RestServer{Config: cfg},
		BlobStore:  store,
	}
	if cfg.Meta.Store != "" {
		if s.MetaStore, err = meta.Open(cfg.Meta.Store, cfg.Meta.Database); err != nil {
			return nil, errors.Trace(err)
		}
		if err = s.MetaStore.Init(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return s, nil
}

// LoadModel loads the model and creates a predictor.
func (s *Server) LoadModel() (*logics.Predictor, error) {
	start := time.Now()
	svd, schema, err := mf.Load(s.BlobStore, s.Config.Store.Name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	predictor, err := logics.NewPredictor(svd, schema, s.Config.Server.UnseenPolicy, s.Config.Server.GetPoolSize())
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadModelSeconds.Set(time.Since(start).Seconds())
	return predictor, nil
}

// WaitModel retries loading until the model appears in the store. Missing
// models are retried with exponential backoff, corrupted ones are not.
func (s *Server) WaitModel(ctx context.Context) error {
	predictor, err := backoff.Retry(ctx, func() (*logics.Predictor, error) {
		predictor, err := s.LoadModel()
		if err != nil && !errors.Is(err, errors.NotFound) {
			return nil, backoff.Permanent(err)
		}
		return predictor, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.Config.Server.LoadTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Logger().Warn("failed to load model", zap.Error(err), zap.Duration("retry_after", next))
		}))
	if err != nil {
		return errors.Trace(err)
	}
	s.SetPredictor(predictor)
	log.Logger().Info("load model",
		zap.String("name", s.Config.Store.Name),
		zap.Int("users", int(predictor.Model().GetUserIndex().Count())),
		zap.Int("products", int(predictor.Model().GetProductIndex().Count())),
		zap.Int("engines", predictor.PoolSize()))
	return nil
}

// Serve loads the model in the background and starts the HTTP server. Requests
// are answered with 503 until the model is loaded.
func (s *Server) Serve() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go func() {
		if err := s.WaitModel(ctx); err != nil {
			log.Logger().Error("give up loading model", zap.Error(err))
		}
	}()
	s.StartHttpServer(restful.NewContainer())
}

func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.HttpServer != nil {
		if err := s.HttpServer.Shutdown(context.TODO()); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}
	if s.MetaStore != nil {
		if err := s.MetaStore.Close(); err != nil {
			log.Logger().Error("failed to close meta store", zap.Error(err))
		}
	}
}
