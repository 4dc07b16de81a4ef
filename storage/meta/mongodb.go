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
	"context"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const trainingRuns = "training_runs"

type MongoDB struct {
	client *mongo.Client
	dbName string
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// create collection
	collections, err := d.ListCollectionNames(ctx, bson.M{"name": trainingRuns})
	if err != nil {
		return errors.Trace(err)
	}
	if len(collections) == 0 {
		if err = d.CreateCollection(ctx, trainingRuns); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection(trainingRuns).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{"end_time", -1}},
	})
	return errors.Trace(err)
}

func (m *MongoDB) AddTrainingRun(run *TrainingRun) error {
	ctx := context.Background()
	c := m.client.Database(m.dbName).Collection(trainingRuns)
	_, err := c.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, options.Replace().SetUpsert(true))
	return errors.Trace(err)
}

func (m *MongoDB) GetLatestTrainingRun() (*TrainingRun, error) {
	runs, err := m.ListTrainingRuns(1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(runs) == 0 {
		return nil, errors.NotFoundf("training run")
	}
	return runs[0], nil
}

func (m *MongoDB) ListTrainingRuns(n int) ([]*TrainingRun, error) {
	ctx := context.Background()
	c := m.client.Database(m.dbName).Collection(trainingRuns)
	cur, err := c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{"end_time", -1}}).SetLimit(int64(n)))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var runs []*TrainingRun
	for cur.Next(ctx) {
		var run TrainingRun
		if err = cur.Decode(&run); err != nil {
			return nil, errors.Trace(err)
		}
		runs = append(runs, &run)
	}
	return runs, errors.Trace(cur.Err())
}
