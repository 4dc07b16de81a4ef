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

package base

import "math"

// Round x half away from zero to the given number of decimals.
func Round(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}

// NewMatrix32 creates a row-major matrix backed by a single slice.
func NewMatrix32(row, col int) [][]float32 {
	data := make([]float32, row*col)
	ret := make([][]float32, row)
	for i := range ret {
		ret[i] = data[i*col : (i+1)*col]
	}
	return ret
}
