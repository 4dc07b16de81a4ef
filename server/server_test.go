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
	"testing"
	"time"

	"github.com/gorse-io/product-recommender/config"
	"github.com/gorse-io/product-recommender/model/mf"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) *Server {
	cfg := config.GetDefaultConfig()
	cfg.Store.Dir = t.TempDir()
	cfg.Meta.Store = ""
	cfg.Server.LoadTimeout = 200 * time.Millisecond
	s, err := NewServer(cfg)
	assert.NoError(t, err)
	return s
}

func TestWaitModel(t *testing.T) {
	s := newTestServer(t)
	svd, schema := newTestModel()
	assert.NoError(t, mf.Save(s.BlobStore, s.Config.Store.Name, svd, schema))
	assert.Nil(t, s.Predictor())
	assert.NoError(t, s.WaitModel(context.Background()))
	predictor := s.Predictor()
	if assert.NotNil(t, predictor) {
		score, err := predictor.Predict(context.Background(), "u1", "p1")
		assert.NoError(t, err)
		assert.Equal(t, svd.Predict("u1", "p1"), score)
	}
}

func TestWaitModelMissing(t *testing.T) {
	s := newTestServer(t)
	err := s.WaitModel(context.Background())
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Nil(t, s.Predictor())
}

func TestWaitModelCorrupted(t *testing.T) {
	s := newTestServer(t)
	w, done, err := s.BlobStore.Create(s.Config.Store.Name)
	assert.NoError(t, err)
	_, err = w.Write([]byte("garbage"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, <-done)
	start := time.Now()
	err = s.WaitModel(context.Background())
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitModelCancel(t *testing.T) {
	s := newTestServer(t)
	s.Config.Server.LoadTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.WaitModel(ctx))
}

func TestNewServerUnknownStore(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Type = "ftp"
	_, err := NewServer(cfg)
	assert.True(t, errors.Is(err, errors.NotSupported))
}
