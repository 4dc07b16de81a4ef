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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMarshal(t *testing.T) {
	svd := NewSVD(newTestParams())
	assert.NoError(t, svd.Fit(context.Background(), newSyntheticDataset(6, 7), NewFitConfig()))
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, svd.Marshal(buf))

	copied := new(SVD)
	assert.NoError(t, copied.Unmarshal(buf))
	assert.Equal(t, svd.GetParams(), copied.GetParams())
	assert.Equal(t, svd.UserIndex.Names(), copied.UserIndex.Names())
	assert.Equal(t, svd.ProductIndex.Names(), copied.ProductIndex.Names())
	assert.Equal(t, svd.UserFactor, copied.UserFactor)
	assert.Equal(t, svd.ProductFactor, copied.ProductFactor)
	assert.Equal(t, svd.GlobalBias, copied.GlobalBias)
	assert.Equal(t, svd.UserBias, copied.UserBias)
	assert.Equal(t, svd.ProductBias, copied.ProductBias)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	store := blob.NewPOSIX(dir)
	svd := NewSVD(newTestParams())
	trainSet := newSyntheticDataset(6, 7)
	assert.NoError(t, svd.Fit(context.Background(), trainSet, NewFitConfig()))
	schema := model.NewSchema(trainSet.Count(), trainSet.CountUsers(), trainSet.CountProducts())
	assert.NoError(t, Save(store, "model.bin", svd, schema))

	loaded, loadedSchema, err := Load(store, "model.bin")
	assert.NoError(t, err)
	assert.Equal(t, schema.NumRatings, loadedSchema.NumRatings)
	assert.Equal(t, schema.Features, loadedSchema.Features)
	assert.True(t, schema.TrainedAt.Equal(loadedSchema.TrainedAt))
	for _, userId := range []string{"u0", "u3", "unknown"} {
		for _, productId := range []string{"p1", "p6", "unknown"} {
			assert.Equal(t, svd.Predict(userId, productId), loaded.Predict(userId, productId))
		}
	}

	// truncated artifact
	data, err := os.ReadFile(filepath.Join(dir, "model.bin"))
	assert.NoError(t, err)
	for _, size := range []int{0, 3, len(magic) + 5, len(data) / 2, len(data) - 1} {
		assert.NoError(t, os.WriteFile(filepath.Join(dir, "truncated.bin"), data[:size], 0o644))
		_, _, err = Load(store, "truncated.bin")
		assert.True(t, errors.Is(err, errors.NotValid), size)
	}

	// missing artifact
	_, _, err = Load(store, "missing.bin")
	assert.True(t, errors.Is(err, errors.NotFound))

	// unfitted model
	err = Save(store, "empty.bin", NewSVD(nil), schema)
	assert.True(t, errors.Is(err, errors.NotValid))
}

// shortStore fails every write once limit bytes have been written.
type shortStore struct {
	*blob.POSIX
	limit int
}

func (s *shortStore) Create(name string) (blob.Writer, chan error, error) {
	w, done, err := s.POSIX.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return &shortWriter{Writer: w, remain: s.limit}, done, nil
}

type shortWriter struct {
	blob.Writer
	remain int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.remain {
		n, _ := w.Writer.Write(p[:w.remain])
		w.remain = 0
		return n, errors.New("no space left on device")
	}
	w.remain -= len(p)
	return w.Writer.Write(p)
}

func TestSaveFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	store := blob.NewPOSIX(dir)
	trainSet := newSyntheticDataset(6, 7)
	schema := model.NewSchema(trainSet.Count(), trainSet.CountUsers(), trainSet.CountProducts())
	previous := NewSVD(newTestParams())
	assert.NoError(t, previous.Fit(context.Background(), trainSet, NewFitConfig()))
	assert.NoError(t, Save(store, "model.bin", previous, schema))

	params := newTestParams()
	params[model.NFactors] = 4
	next := NewSVD(params)
	assert.NoError(t, next.Fit(context.Background(), trainSet, NewFitConfig()))
	err := Save(&shortStore{POSIX: store, limit: 64}, "model.bin", next, schema)
	assert.Error(t, err)

	loaded, _, err := Load(store, "model.bin")
	assert.NoError(t, err)
	for _, userId := range []string{"u0", "u5"} {
		for _, productId := range []string{"p0", "p6"} {
			assert.Equal(t, previous.Predict(userId, productId), loaded.Predict(userId, productId))
		}
	}
	names, err := store.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"model.bin"}, names)
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}
