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
	"fmt"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/logics"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/storage/meta"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const APIDocsPath = "/apidocs.json"

type PredictRequest struct {
	UserId    string `json:"userId" description:"identifier of the user"`
	ProductId string `json:"productId" description:"identifier of the product"`
}

type PredictResponse struct {
	Score float32 `json:"score"`
}

type Health struct {
	Ready bool   `json:"ready"`
	Model string `json:"model"`
}

type ModelInfo struct {
	Name          string            `json:"name"`
	Policy        string            `json:"policy"`
	PoolSize      int               `json:"pool_size"`
	Schema        model.Schema      `json:"schema"`
	LatestRun     *meta.TrainingRun `json:"latest_run,omitempty"`
	UsersKnown    int               `json:"users_known"`
	ProductsKnown int               `json:"products_known"`
}

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config     *config.Config
	MetaStore  meta.Database
	WebService *restful.WebService
	HttpServer *http.Server
	predictor  atomic.Pointer[logics.Predictor]
	limiter    *ratelimit.Bucket
}

// Predictor returns the published predictor, or nil before a model is loaded.
func (s *RestServer) Predictor() *logics.Predictor {
	return s.predictor.Load()
}

// SetPredictor publishes a predictor to request handlers.
func (s *RestServer) SetPredictor(predictor *logics.Predictor) {
	s.predictor.Store(predictor)
	ModelLoaded.Set(1)
}

// StartHttpServer starts the REST-ful API server.
func (s *RestServer) StartHttpServer(container *restful.Container) {
	// register restful APIs
	s.CreateWebService()
	container.Add(s.WebService)
	// register swagger UI
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     APIDocsPath,
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	// register prometheus
	container.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	log.Logger().Info("start http server", zap.String("url", "http://"+addr))
	s.HttpServer = &http.Server{Addr: addr, Handler: container}
	if err := s.HttpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Logger().Fatal("failed to start http server", zap.Error(err))
	}
}

// RequestIDFilter tags every response with a request id, generated when absent.
func RequestIDFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter(log.RequestIDHeader)
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set(log.RequestIDHeader, requestId)
	chain.ProcessFilter(req, resp)
}

// RateLimitFilter rejects predictions beyond server.rate_limit per second.
func (s *RestServer) RateLimitFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.limiter != nil && s.limiter.TakeAvailable(1) == 0 {
		RateLimitedTotal.Inc()
		resp.Header().Set("Access-Control-Allow-Origin", "*")
		if err := resp.WriteError(http.StatusTooManyRequests, errors.New("too many requests")); err != nil {
			log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
		}
		return
	}
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RequestsTotal.WithLabelValues(req.SelectedRoutePath(), fmt.Sprint(resp.StatusCode())).Inc()
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	if rate := int64(s.Config.Server.RateLimit); rate > 0 {
		s.limiter = ratelimit.NewBucketWithQuantum(time.Second, rate, rate)
	}
	ws := new(restful.WebService)
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/")
	ws.Filter(otelrestful.OTelFilter("product-recommender"))
	ws.Filter(RequestIDFilter)
	ws.Filter(LogFilter)

	ws.Route(ws.POST("/predict").To(s.predict).
		Filter(s.RateLimitFilter).
		Doc("Predict the rating of a user for a product.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"predict"}).
		Reads(PredictRequest{}).
		Returns(http.StatusOK, "OK", PredictResponse{}).
		Writes(PredictResponse{}))
	ws.Route(ws.POST("/api/product/predict").To(s.predict).
		Filter(s.RateLimitFilter).
		Doc("Predict the rating of a user for a product.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"predict"}).
		Reads(PredictRequest{}).
		Returns(http.StatusOK, "OK", PredictResponse{}).
		Writes(PredictResponse{}))
	ws.Route(ws.GET("/api/health").To(s.health).
		Doc("Check whether a model is loaded.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "OK", Health{}).
		Writes(Health{}))
	ws.Route(ws.GET("/api/model").To(s.getModel).
		Doc("Get the schema of the loaded model and the latest training run.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Returns(http.StatusOK, "OK", ModelInfo{}).
		Writes(ModelInfo{}))
	s.WebService = ws
}

func (s *RestServer) predict(request *restful.Request, response *restful.Response) {
	start := time.Now()
	var req PredictRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	predictor := s.Predictor()
	if predictor == nil {
		ServiceUnavailable(response, errors.New("model is not loaded"))
		return
	}
	ctx, cancel := context.WithTimeout(request.Request.Context(), s.Config.Server.Timeout)
	defer cancel()
	score, err := predictor.Predict(ctx, req.UserId, req.ProductId)
	switch {
	case err == nil:
	case errors.Is(err, errors.NotValid):
		BadRequest(response, err)
		return
	case errors.Is(err, logics.ErrUnseenIdentifier):
		UnseenTotal.Inc()
		PageNotFound(response, err)
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		PoolTimeoutTotal.Inc()
		ServiceUnavailable(response, errors.Annotate(err, "no prediction engine available"))
		return
	default:
		InternalServerError(response, err)
		return
	}
	PredictSeconds.Observe(time.Since(start).Seconds())
	Ok(response, PredictResponse{Score: score})
}

func (s *RestServer) health(_ *restful.Request, response *restful.Response) {
	health := Health{Ready: s.Predictor() != nil, Model: s.Config.Store.Name}
	if !health.Ready {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, health, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, health)
}

func (s *RestServer) getModel(_ *restful.Request, response *restful.Response) {
	predictor := s.Predictor()
	if predictor == nil {
		ServiceUnavailable(response, errors.New("model is not loaded"))
		return
	}
	info := ModelInfo{
		Name:          s.Config.Store.Name,
		Policy:        predictor.Policy(),
		PoolSize:      predictor.PoolSize(),
		Schema:        predictor.Schema(),
		UsersKnown:    int(predictor.Model().GetUserIndex().Count()),
		ProductsKnown: int(predictor.Model().GetProductIndex().Count()),
	}
	if s.MetaStore != nil {
		run, err := s.MetaStore.GetLatestTrainingRun()
		if err != nil && !errors.Is(err, errors.NotFound) {
			InternalServerError(response, err)
			return
		}
		info.LatestRun = run
	}
	Ok(response, info)
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable returns a service unavailable error.
func ServiceUnavailable(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Warn("service unavailable", zap.Error(err))
	if err = response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
