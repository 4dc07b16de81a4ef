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

package model

import (
	"testing"

	"github.com/gorse-io/product-recommender/config"
	"github.com/stretchr/testify/assert"
)

func TestParams(t *testing.T) {
	params := Params{
		NFactors:    16,
		NEpochs:     int64(10),
		Lr:          0.01,
		Reg:         float32(0.1),
		UseBias:     false,
		RandomState: 42,
		InitMean:    "wrong",
	}
	assert.Equal(t, 16, params.GetInt(NFactors, 100))
	assert.Equal(t, 10, params.GetInt(NEpochs, 20))
	assert.Equal(t, 5, params.GetInt(ParamName("missing"), 5))
	assert.Equal(t, int64(42), params.GetInt64(RandomState, 0))
	assert.Equal(t, float32(0.01), params.GetFloat32(Lr, 0.005))
	assert.Equal(t, float32(0.1), params.GetFloat32(Reg, 0.02))
	assert.Equal(t, float32(0), params.GetFloat32(InitMean, 0))
	assert.False(t, params.GetBool(UseBias, true))
	assert.True(t, params.GetBool(ParamName("missing"), true))
}

func TestParamsOverwrite(t *testing.T) {
	params := Params{NFactors: 16, Lr: 0.01}
	merged := params.Overwrite(Params{Lr: 0.1, Reg: 0.2})
	assert.Equal(t, Params{NFactors: 16, Lr: 0.1, Reg: 0.2}, merged)
	// the original is untouched
	assert.Equal(t, Params{NFactors: 16, Lr: 0.01}, params)
	copied := params.Copy()
	copied[NFactors] = 32
	assert.Equal(t, 16, params[NFactors])
	assert.JSONEq(t, `{"NFactors":16,"Lr":0.01}`, params.ToString())
}

func TestNewParamsFromConfig(t *testing.T) {
	params := NewParamsFromConfig(config.GetDefaultConfig().Model)
	assert.Equal(t, 100, params.GetInt(NFactors, 0))
	assert.Equal(t, 20, params.GetInt(NEpochs, 0))
	assert.Equal(t, float32(0.005), params.GetFloat32(Lr, 0))
	assert.Equal(t, float32(0.02), params.GetFloat32(Reg, 0))
	assert.Equal(t, float32(0.1), params.GetFloat32(InitStdDev, 0))
	assert.True(t, params.GetBool(UseBias, false))
	assert.Equal(t, int64(0), params.GetInt64(RandomState, -1))
}
