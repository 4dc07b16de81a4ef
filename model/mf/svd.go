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
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/common/floats"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/model"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FitConfig controls progress logging of Fit. SGD updates are sequential.
type FitConfig struct {
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Verbose: 5,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// SVD algorithm, as popularized by Simon Funk during the
// Netflix Prize. The prediction \hat{r}_{ui} is set as:
//
//	\hat{r}_{ui} = μ + b_u + b_i + q_i^Tp_u
//
// If user u is unknown, then the bias b_u and the factors p_u are
// assumed to be zero. The same applies for product i with b_i and q_i.
// Without bias, the prediction is q_i^Tp_u only.
type SVD struct {
	model.BaseModel
	UserIndex    *dataset.FreqDict
	ProductIndex *dataset.FreqDict
	// Model parameters
	UserFactor    [][]float32 // p_u
	ProductFactor [][]float32 // q_i
	UserBias      []float32   // b_u
	ProductBias   []float32   // b_i
	GlobalBias    float32     // mu
	// Hyper parameters
	useBias    bool
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
}

// NewSVD creates a SVD model. Params:
//
//	UseBias    - Add bias terms. Default is true.
//	Reg        - The regularization parameter of the cost function that is
//	             optimized. Default is 0.02.
//	Lr         - The learning rate of SGD. Default is 0.005.
//	NFactors   - The number of latent factors. Default is 100.
//	NEpochs    - The number of iteration of the SGD procedure. Default is 20.
//	InitMean   - The mean of initial random latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial random latent factors. Default is 0.1.
func NewSVD(params model.Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

func (svd *SVD) SetParams(params model.Params) {
	svd.BaseModel.SetParams(params)
	svd.useBias = svd.Params.GetBool(model.UseBias, true)
	svd.nFactors = svd.Params.GetInt(model.NFactors, 100)
	svd.nEpochs = svd.Params.GetInt(model.NEpochs, 20)
	svd.lr = svd.Params.GetFloat32(model.Lr, 0.005)
	svd.reg = svd.Params.GetFloat32(model.Reg, 0.02)
	svd.initMean = svd.Params.GetFloat32(model.InitMean, 0)
	svd.initStdDev = svd.Params.GetFloat32(model.InitStdDev, 0.1)
}

func (svd *SVD) GetUserIndex() *dataset.FreqDict {
	return svd.UserIndex
}

func (svd *SVD) GetProductIndex() *dataset.FreqDict {
	return svd.ProductIndex
}

// IsUserKnown returns true if the user appeared in the training set.
func (svd *SVD) IsUserKnown(userId string) bool {
	return svd.UserIndex.Id(userId) >= 0
}

// IsProductKnown returns true if the product appeared in the training set.
func (svd *SVD) IsProductKnown(productId string) bool {
	return svd.ProductIndex.Id(productId) >= 0
}

// Predict the rating given by a user to a product.
func (svd *SVD) Predict(userId, productId string) float32 {
	userIndex := svd.UserIndex.Id(userId)
	productIndex := svd.ProductIndex.Id(productId)
	if userIndex < 0 {
		log.Logger().Debug("unknown user", zap.String("user_id", userId))
	}
	if productIndex < 0 {
		log.Logger().Debug("unknown product", zap.String("product_id", productId))
	}
	return svd.internalPredict(userIndex, productIndex)
}

func (svd *SVD) internalPredict(userIndex, productIndex int32) float32 {
	ret := svd.GlobalBias
	if svd.useBias {
		// + b_u
		if userIndex >= 0 {
			ret += svd.UserBias[userIndex]
		}
		// + b_i
		if productIndex >= 0 {
			ret += svd.ProductBias[productIndex]
		}
	}
	// + q_i^Tp_u
	if userIndex >= 0 && productIndex >= 0 {
		ret += floats.Dot(svd.UserFactor[userIndex], svd.ProductFactor[productIndex])
	}
	return ret
}

// Fit the model on a train set. It fails with errors.NotValid if the train set
// is empty or has fewer than two distinct users or products.
func (svd *SVD) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) error {
	if trainSet.Count() == 0 {
		return errors.NotValidf("empty train set")
	}
	if n := trainSet.CountUsers(); n < 2 {
		return errors.NotValidf("train set with %d distinct users", n)
	}
	if n := trainSet.CountProducts(); n < 2 {
		return errors.NotValidf("train set with %d distinct products", n)
	}
	log.Logger().Info("fit svd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Any("params", svd.GetParams()),
		zap.Any("config", config))
	// reset random generator so that fitting is reproducible
	svd.SetParams(svd.GetParams())
	svd.Init(trainSet)
	// Encode ratings
	userIndices := make([]int32, trainSet.Count())
	productIndices := make([]int32, trainSet.Count())
	labels := trainSet.Labels()
	for i, rating := range trainSet.Ratings() {
		userIndices[i] = svd.UserIndex.Id(rating.UserId)
		productIndices[i] = svd.ProductIndex.Id(rating.ProductId)
	}
	// Create buffers
	grad := make([]float32, svd.nFactors)
	userFactor := make([]float32, svd.nFactors)
	productFactor := make([]float32, svd.nFactors)
	// Optimize
	for epoch := 1; epoch <= svd.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		fitStart := time.Now()
		cost := float32(0)
		perm := svd.GetRandomGenerator().Perm(trainSet.Count())
		for _, i := range perm {
			userIndex, productIndex := userIndices[i], productIndices[i]
			// Compute error: e_{ui} = r - \hat r
			diff := labels[i] - svd.internalPredict(userIndex, productIndex)
			cost += diff * diff
			if svd.useBias {
				// Update user bias: b_u <- b_u + \gamma (e_{ui} - \lambda b_u)
				svd.UserBias[userIndex] += svd.lr * (diff - svd.reg*svd.UserBias[userIndex])
				// Update product bias: b_i <- b_i + \gamma (e_{ui} - \lambda b_i)
				svd.ProductBias[productIndex] += svd.lr * (diff - svd.reg*svd.ProductBias[productIndex])
			}
			copy(userFactor, svd.UserFactor[userIndex])
			copy(productFactor, svd.ProductFactor[productIndex])
			// Update user latent factor: p_u <- p_u + \gamma (e_{ui} q_i - \lambda p_u)
			floats.MulConstTo(productFactor, diff, grad)
			floats.MulConstAdd(userFactor, -svd.reg, grad)
			floats.MulConstAdd(grad, svd.lr, svd.UserFactor[userIndex])
			// Update product latent factor: q_i <- q_i + \gamma (e_{ui} p_u - \lambda q_i)
			floats.MulConstTo(userFactor, diff, grad)
			floats.MulConstAdd(productFactor, -svd.reg, grad)
			floats.MulConstAdd(grad, svd.lr, svd.ProductFactor[productIndex])
		}
		if math32.IsNaN(cost) || math32.IsInf(cost, 0) {
			return errors.NotValidf("training diverged at epoch %d", epoch)
		}
		if config != nil && config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == svd.nEpochs) {
			trainRMSE := math32.Sqrt(cost / float32(trainSet.Count()))
			log.Logger().Info(fmt.Sprintf("fit svd %v/%v", epoch, svd.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("train_rmse", trainRMSE))
			trace.SpanFromContext(ctx).AddEvent("epoch", trace.WithAttributes(
				attribute.Int("epoch", epoch),
				attribute.Float64("train_rmse", float64(trainRMSE))))
		}
	}
	log.Logger().Info("fit svd complete",
		zap.Int32("n_users", svd.UserIndex.Count()),
		zap.Int32("n_products", svd.ProductIndex.Count()))
	return nil
}

// Init builds indices from the train set and initializes parameters.
func (svd *SVD) Init(trainSet *dataset.Dataset) {
	svd.UserIndex = dataset.NewFreqDict()
	svd.ProductIndex = dataset.NewFreqDict()
	var sum float32
	for _, rating := range trainSet.Ratings() {
		svd.UserIndex.Add(rating.UserId)
		svd.ProductIndex.Add(rating.ProductId)
		sum += rating.Label
	}
	nUsers, nProducts := int(svd.UserIndex.Count()), int(svd.ProductIndex.Count())
	svd.GlobalBias = 0
	if svd.useBias && trainSet.Count() > 0 {
		svd.GlobalBias = sum / float32(trainSet.Count())
	}
	svd.UserBias = make([]float32, nUsers)
	svd.ProductBias = make([]float32, nProducts)
	rng := svd.GetRandomGenerator()
	svd.UserFactor = rng.NormalMatrix(nUsers, svd.nFactors, svd.initMean, svd.initStdDev)
	svd.ProductFactor = rng.NormalMatrix(nProducts, svd.nFactors, svd.initMean, svd.initStdDev)
}

func (svd *SVD) Clear() {
	svd.UserIndex = nil
	svd.ProductIndex = nil
	svd.UserFactor = nil
	svd.ProductFactor = nil
	svd.UserBias = nil
	svd.ProductBias = nil
	svd.GlobalBias = 0
}

// Invalid returns true if the model has not been fitted or loaded.
func (svd *SVD) Invalid() bool {
	return svd == nil ||
		svd.UserIndex == nil ||
		svd.ProductIndex == nil ||
		svd.UserFactor == nil ||
		svd.ProductFactor == nil
}
