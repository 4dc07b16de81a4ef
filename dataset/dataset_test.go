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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataset(t *testing.T) {
	data := NewDataset([]Rating{
		{UserId: "u1", ProductId: "p1", Label: 1},
		{UserId: "u1", ProductId: "p2", Label: 2},
		{UserId: "u2", ProductId: "p1", Label: 3},
	})
	assert.Equal(t, 3, data.Count())
	assert.Equal(t, 2, data.CountUsers())
	assert.Equal(t, 2, data.CountProducts())
	assert.Equal(t, []float32{1, 2, 3}, data.Labels())
	assert.Len(t, data.Head(5), 3)
	assert.Len(t, data.Head(2), 2)
	subset := data.Subset([]int{2, 0})
	assert.Equal(t, []float32{3, 1}, subset.Labels())
}
