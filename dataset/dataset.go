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

package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// Rating is a single user-product interaction with a numeric label.
type Rating struct {
	UserId    string
	ProductId string
	Label     float32
}

// Dataset is an ordered collection of ratings. It is not modified after loading.
type Dataset struct {
	ratings []Rating
}

func NewDataset(ratings []Rating) *Dataset {
	return &Dataset{ratings: ratings}
}

func (d *Dataset) Count() int {
	return len(d.ratings)
}

func (d *Dataset) Get(i int) Rating {
	return d.ratings[i]
}

// Ratings returns the underlying slice. Callers must not modify it.
func (d *Dataset) Ratings() []Rating {
	return d.ratings
}

// Head returns at most n ratings from the beginning.
func (d *Dataset) Head(n int) []Rating {
	return d.ratings[:min(n, len(d.ratings))]
}

func (d *Dataset) CountUsers() int {
	return mapset.NewThreadUnsafeSet(lo.Map(d.ratings, func(r Rating, _ int) string {
		return r.UserId
	})...).Cardinality()
}

func (d *Dataset) CountProducts() int {
	return mapset.NewThreadUnsafeSet(lo.Map(d.ratings, func(r Rating, _ int) string {
		return r.ProductId
	})...).Cardinality()
}

// Subset returns ratings at the given indices, in the given order.
func (d *Dataset) Subset(indices []int) *Dataset {
	ratings := make([]Rating, len(indices))
	for i, index := range indices {
		ratings[i] = d.ratings[index]
	}
	return NewDataset(ratings)
}

// Labels returns all labels in order.
func (d *Dataset) Labels() []float32 {
	return lo.Map(d.ratings, func(r Rating, _ int) float32 {
		return r.Label
	})
}
