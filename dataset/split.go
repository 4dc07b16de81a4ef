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
	"math"

	"github.com/gorse-io/product-recommender/base"
	"github.com/juju/errors"
)

const DefaultTestFraction = 0.2

// Split partitions the dataset into a train set and a test set. The test set
// holds floor(n * testFraction) ratings chosen by a permutation seeded with
// seed. Both sets keep the source order.
func Split(data *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	if math.IsNaN(testFraction) || testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NotValidf("test fraction %v out of (0, 1)", testFraction)
	}
	testSize := int(math.Floor(float64(data.Count()) * testFraction))
	if testSize == 0 || testSize == data.Count() {
		return nil, nil, errors.NotValidf("split of %d ratings with test fraction %v", data.Count(), testFraction)
	}
	rng := base.NewRandomGenerator(seed)
	testIndices, trainIndices := rng.SampleSorted(data.Count(), testSize)
	return data.Subset(trainIndices), data.Subset(testIndices), nil
}
