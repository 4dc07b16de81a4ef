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

package meta

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TestTrainingRuns() {
	// no runs
	_, err := suite.Database.GetLatestTrainingRun()
	suite.True(errors.Is(err, errors.NotFound))

	// add runs
	now := time.Now().Truncate(time.Second)
	var ids []string
	for i := 0; i < 3; i++ {
		run := &TrainingRun{
			ID:        uuid.NewString(),
			StartTime: now.Add(time.Duration(i) * time.Minute),
			EndTime:   now.Add(time.Duration(i)*time.Minute + time.Second),
			DataPath:  "Data/amazon.csv",
			Rows:      100,
			Accepted:  98,
			Skipped:   2,
			TrainSize: 79,
			TestSize:  19,
			Params:    `{"NFactors":100}`,
			RMSE:      float32(i) + 0.5,
			RSquared:  0.25,
			ModelName: "ProductRecommenderModel.bin",
		}
		suite.NoError(suite.Database.AddTrainingRun(run))
		ids = append(ids, run.ID)
	}

	// get latest
	latest, err := suite.Database.GetLatestTrainingRun()
	suite.NoError(err)
	suite.Equal(ids[2], latest.ID)
	suite.Equal(float32(2.5), latest.RMSE)
	suite.Equal(98, latest.Accepted)
	suite.Equal(`{"NFactors":100}`, latest.Params)
	suite.True(now.Add(2*time.Minute + time.Second).Equal(latest.EndTime))

	// list runs
	runs, err := suite.Database.ListTrainingRuns(2)
	suite.NoError(err)
	if suite.Len(runs, 2) {
		suite.Equal(ids[2], runs[0].ID)
		suite.Equal(ids[1], runs[1].ID)
	}

	// replace run
	latest.RMSE = 0.1
	suite.NoError(suite.Database.AddTrainingRun(latest))
	runs, err = suite.Database.ListTrainingRuns(10)
	suite.NoError(err)
	suite.Len(runs, 3)
	suite.Equal(float32(0.1), runs[0].RMSE)
}
