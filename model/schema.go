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
	"time"
)

// SchemaVersion is the version of the artifact layout.
const SchemaVersion = 1

// Schema describes the data a model was trained on. It is saved with the model.
type Schema struct {
	Version         int
	UserIdColumn    string
	ProductIdColumn string
	LabelColumn     string
	Features        []string
	Label           string
	NumRatings      int
	NumUsers        int
	NumProducts     int
	TrainedAt       time.Time
}

// NewSchema creates a schema with the default feature and label names.
func NewSchema(numRatings, numUsers, numProducts int) Schema {
	return Schema{
		Version:         SchemaVersion,
		UserIdColumn:    "user_id",
		ProductIdColumn: "product_id",
		LabelColumn:     "rating",
		Features:        []string{"userId", "productId"},
		Label:           "Label",
		NumRatings:      numRatings,
		NumUsers:        numUsers,
		NumProducts:     numProducts,
		TrainedAt:       time.Now().UTC(),
	}
}
