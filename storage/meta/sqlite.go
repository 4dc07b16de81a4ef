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
	"database/sql"

	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Init() error {
	// Create tables
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS training_runs (
	id TEXT PRIMARY KEY,
	start_time TIMESTAMP,
	end_time TIMESTAMP,
	data_path TEXT,
	row_count INTEGER,
	accepted INTEGER,
	skipped INTEGER,
	train_size INTEGER,
	test_size INTEGER,
	params TEXT,
	rmse REAL,
	r_squared REAL,
	mae REAL,
	mse REAL,
	model_name TEXT
);`); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (s *SQLite) AddTrainingRun(run *TrainingRun) error {
	_, err := s.db.Exec(`
INSERT INTO training_runs (id, start_time, end_time, data_path, row_count, accepted, skipped,
	train_size, test_size, params, rmse, r_squared, mae, mse, model_name)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	start_time = excluded.start_time,
	end_time = excluded.end_time,
	data_path = excluded.data_path,
	row_count = excluded.row_count,
	accepted = excluded.accepted,
	skipped = excluded.skipped,
	train_size = excluded.train_size,
	test_size = excluded.test_size,
	params = excluded.params,
	rmse = excluded.rmse,
	r_squared = excluded.r_squared,
	mae = excluded.mae,
	mse = excluded.mse,
	model_name = excluded.model_name
`, run.ID, run.StartTime.UTC(), run.EndTime.UTC(), run.DataPath, run.Rows, run.Accepted, run.Skipped,
		run.TrainSize, run.TestSize, run.Params, run.RMSE, run.RSquared, run.MAE, run.MSE, run.ModelName)
	return errors.Trace(err)
}

func (s *SQLite) GetLatestTrainingRun() (*TrainingRun, error) {
	runs, err := s.ListTrainingRuns(1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(runs) == 0 {
		return nil, errors.NotFoundf("training run")
	}
	return runs[0], nil
}

func (s *SQLite) ListTrainingRuns(n int) ([]*TrainingRun, error) {
	rs, err := s.db.Query(`
SELECT id, start_time, end_time, data_path, row_count, accepted, skipped,
	train_size, test_size, params, rmse, r_squared, mae, mse, model_name
FROM training_runs ORDER BY end_time DESC LIMIT ?
`, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rs.Close()
	var runs []*TrainingRun
	for rs.Next() {
		var run TrainingRun
		if err = rs.Scan(&run.ID, &run.StartTime, &run.EndTime, &run.DataPath, &run.Rows, &run.Accepted, &run.Skipped,
			&run.TrainSize, &run.TestSize, &run.Params, &run.RMSE, &run.RSquared, &run.MAE, &run.MSE, &run.ModelName); err != nil {
			return nil, errors.Trace(err)
		}
		runs = append(runs, &run)
	}
	return runs, errors.Trace(rs.Err())
}
