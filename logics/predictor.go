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

package logics

import (
	"context"
	"fmt"

	"github.com/gorse-io/product-recommender/base"
	"github.com/gorse-io/product-recommender/common/parallel"
	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/juju/errors"
)

// ErrUnseenIdentifier is returned under the reject policy for identifiers
// absent from the training data. It also satisfies errors.NotFound.
const ErrUnseenIdentifier = errors.ConstError("unseen identifier")

// Engine scores pairs with a shared model. Engines are checked out of a pool,
// one per in-flight prediction.
type Engine struct {
	id     int
	model  *mf.SVD
	policy string
}

func (e *Engine) Predict(userId, productId string) (float32, error) {
	userKnown := e.model.IsUserKnown(userId)
	productKnown := e.model.IsProductKnown(productId)
	if !userKnown || !productKnown {
		switch e.policy {
		case config.UnseenZero:
			return 0, nil
		case config.UnseenReject:
			if !userKnown {
				return 0, unseen("user", userId)
			}
			return 0, unseen("product", productId)
		}
	}
	// unknown side contributes nothing under the mean policy
	return e.model.Predict(userId, productId), nil
}

func unseen(kind, id string) error {
	return errors.WithType(fmt.Errorf("%s %q: %w", kind, id, ErrUnseenIdentifier), errors.NotFound)
}

// Predictor serves single predictions from a trained model.
type Predictor struct {
	model  *mf.SVD
	schema model.Schema
	policy string
	pool   *parallel.Pool[*Engine]
}

func NewPredictor(m *mf.SVD, schema model.Schema, policy string, poolSize int) (*Predictor, error) {
	switch policy {
	case "":
		policy = config.UnseenMean
	case config.UnseenMean, config.UnseenZero, config.UnseenReject:
	default:
		return nil, errors.NotValidf("unseen policy %s", policy)
	}
	if m.Invalid() {
		return nil, errors.NotValidf("unfitted model")
	}
	return &Predictor{
		model:  m,
		schema: schema,
		policy: policy,
		pool: parallel.NewPool(max(poolSize, 1), func(i int) *Engine {
			return &Engine{id: i, model: m, policy: policy}
		}),
	}, nil
}

// Predict a score for a user and a product. It waits for a free engine until
// ctx is done. Empty identifiers fail with errors.NotValid.
func (p *Predictor) Predict(ctx context.Context, userId, productId string) (score float32, err error) {
	userId, productId = base.NormalizeId(userId), base.NormalizeId(productId)
	if err = base.ValidateId(userId); err != nil {
		return 0, errors.Annotate(err, "user id")
	}
	if err = base.ValidateId(productId); err != nil {
		return 0, errors.Annotate(err, "product id")
	}
	err = p.pool.Do(ctx, func(engine *Engine) error {
		var predictErr error
		score, predictErr = engine.Predict(userId, productId)
		return predictErr
	})
	return score, err
}

func (p *Predictor) Model() *mf.SVD {
	return p.model
}

func (p *Predictor) Schema() model.Schema {
	return p.schema
}

func (p *Predictor) Policy() string {
	return p.policy
}

// PoolSize returns the number of engines.
func (p *Predictor) PoolSize() int {
	return p.pool.Size()
}

// IdleEngines returns the number of engines not checked out.
func (p *Predictor) IdleEngines() int {
	return p.pool.Available()
}

// Recommended tells whether a score rounded to one decimal exceeds the threshold.
func Recommended(score float32, threshold float64) bool {
	return base.Round(float64(score), 1) > threshold
}
