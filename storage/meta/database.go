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
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/product-recommender/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

// TrainingRun records one execution of the training pipeline.
type TrainingRun struct {
	ID        string    `json:"id" bson:"_id"`
	StartTime time.Time `json:"start_time" bson:"start_time"`
	EndTime   time.Time `json:"end_time" bson:"end_time"`
	DataPath  string    `json:"data_path" bson:"data_path"`
	Rows      int       `json:"rows" bson:"rows"`
	Accepted  int       `json:"accepted" bson:"accepted"`
	Skipped   int       `json:"skipped" bson:"skipped"`
	TrainSize int       `json:"train_size" bson:"train_size"`
	TestSize  int       `json:"test_size" bson:"test_size"`
	Params    string    `json:"params" bson:"params"`
	RMSE      float32   `json:"rmse" bson:"rmse"`
	RSquared  float32   `json:"r_squared" bson:"r_squared"`
	MAE       float32   `json:"mae" bson:"mae"`
	MSE       float32   `json:"mse" bson:"mse"`
	ModelName string    `json:"model_name" bson:"model_name"`
}

type Database interface {
	Close() error
	Init() error
	// AddTrainingRun inserts a run. Runs with an existing id are replaced.
	AddTrainingRun(run *TrainingRun) error
	// GetLatestTrainingRun returns the run that ended last, or errors.NotFound.
	GetLatestTrainingRun() (*TrainingRun, error)
	// ListTrainingRuns returns at most n runs, latest first.
	ListTrainingRuns(n int) ([]*TrainingRun, error)
}

// Open a connection to a database.
func Open(path, database string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.SQLitePrefix) {
		dataSourceName := path[len(storage.SQLitePrefix):]
		// append parameters
		if dataSourceName, err = storage.AppendURLParams(dataSourceName, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		db := new(SQLite)
		if db.db, err = otelsql.Open("sqlite", dataSourceName,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		return db, nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db := new(MongoDB)
		opts := options.Client()
		opts.Monitor = otelmongo.NewMonitor()
		opts.ApplyURI(path)
		if db.client, err = mongo.Connect(ctx, opts); err != nil {
			return nil, errors.Trace(err)
		}
		db.dbName = database
		return db, nil
	}
	return nil, errors.NotSupportedf("database %s", path)
}
