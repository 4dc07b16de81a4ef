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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chewxy/math32"
	"github.com/gorse-io/product-recommender/base"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const (
	ReasonTooFewFields    = "too few fields"
	ReasonEmptyProductId  = "empty product id"
	ReasonEmptyUserId     = "empty user id"
	ReasonInvalidLabel    = "invalid label"
	maxRowErrorsInReport  = 10
	maxScannerBufferBytes = 64 << 20
)

// RowError describes a row that was skipped while loading.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// LoadReport summarizes a load. Line numbers in Errors are one-based.
type LoadReport struct {
	Rows            int
	Accepted        int
	Skipped         int
	SkippedByReason map[string]int
	Errors          []RowError
}

func (r *LoadReport) skip(line int, reason string) {
	r.Skipped++
	r.SkippedByReason[reason]++
	if len(r.Errors) < maxRowErrorsInReport {
		r.Errors = append(r.Errors, RowError{Line: line, Reason: reason})
	}
}

// Loader reads ratings from delimited text files.
type Loader struct {
	Separator       rune
	HasHeader       bool
	ProductIdColumn int
	LabelColumn     int
	UserIdColumn    int
	ProductIdHeader string
	LabelHeader     string
	UserIdHeader    string
	Progress        bool
}

func NewLoader(cfg config.DataConfig) *Loader {
	sep, _ := utf8.DecodeRuneInString(cfg.Separator)
	if sep == utf8.RuneError {
		sep = ','
	}
	return &Loader{
		Separator:       sep,
		HasHeader:       cfg.HasHeader,
		ProductIdColumn: cfg.ProductIdColumn,
		LabelColumn:     cfg.LabelColumn,
		UserIdColumn:    cfg.UserIdColumn,
		ProductIdHeader: cfg.ProductIdHeader,
		LabelHeader:     cfg.LabelHeader,
		UserIdHeader:    cfg.UserIdHeader,
		Progress:        cfg.Progress,
	}
}

// Load reads ratings from a file.
func (l *Loader) Load(path string) (*Dataset, *LoadReport, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewNotFound(err, fmt.Sprintf("data file %s", path))
		}
		return nil, nil, errors.Trace(err)
	}
	defer file.Close()
	var reader io.Reader = file
	if l.Progress {
		stat, err := file.Stat()
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "Loading "+path))
		defer pbReader.Close()
		reader = &pbReader
	}
	return l.LoadFromReader(reader)
}

// LoadFromReader reads ratings from a reader. Malformed rows are skipped and
// counted in the report, they never abort the load.
func (l *Loader) LoadFromReader(r io.Reader) (*Dataset, *LoadReport, error) {
	report := &LoadReport{SkippedByReason: make(map[string]int)}
	ratings := make([]Rating, 0)
	required := lo.Max([]int{l.ProductIdColumn, l.LabelColumn, l.UserIdColumn}) + 1
	headerPending := l.HasHeader
	var headerErr error

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxScannerBufferBytes)
	err := base.ReadLines(sc, l.Separator, func(lineNumber int, fields []string) bool {
		if headerPending {
			headerPending = false
			headerErr = l.validateHeader(fields)
			return headerErr == nil
		}
		line := lineNumber + 1
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			// blank line
			return true
		}
		report.Rows++
		if len(fields) < required {
			report.skip(line, ReasonTooFewFields)
			log.Logger().Debug("skip row", zap.Int("line", line), zap.String("reason", ReasonTooFewFields))
			return true
		}
		productId := base.NormalizeId(fields[l.ProductIdColumn])
		userId := base.NormalizeId(fields[l.UserIdColumn])
		label, labelErr := parseLabel(fields[l.LabelColumn])
		var reason string
		switch {
		case productId == "":
			reason = ReasonEmptyProductId
		case userId == "":
			reason = ReasonEmptyUserId
		case labelErr != nil:
			reason = ReasonInvalidLabel
		}
		if reason != "" {
			report.skip(line, reason)
			log.Logger().Debug("skip row", zap.Int("line", line), zap.String("reason", reason))
			return true
		}
		ratings = append(ratings, Rating{UserId: userId, ProductId: productId, Label: label})
		report.Accepted++
		return true
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if headerErr != nil {
		return nil, nil, headerErr
	}
	if headerPending {
		return nil, nil, errors.NotValidf("missing header")
	}
	log.Logger().Info("load ratings",
		zap.Int("rows", report.Rows),
		zap.Int("accepted", report.Accepted),
		zap.Int("skipped", report.Skipped),
		zap.Any("skipped_by_reason", report.SkippedByReason))
	return NewDataset(ratings), report, nil
}

func (l *Loader) validateHeader(header []string) error {
	columns := []struct {
		index    int
		expected string
	}{
		{l.ProductIdColumn, l.ProductIdHeader},
		{l.LabelColumn, l.LabelHeader},
		{l.UserIdColumn, l.UserIdHeader},
	}
	for _, column := range columns {
		if column.index >= len(header) {
			return errors.NotValidf("column %d not in header of %d fields", column.index, len(header))
		}
		if column.expected != "" && !strings.EqualFold(strings.TrimSpace(header[column.index]), column.expected) {
			return errors.NotValidf("column %d named %q, expected %q", column.index, header[column.index], column.expected)
		}
	}
	return nil
}

func parseLabel(text string) (float32, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
	if err != nil {
		return 0, errors.Trace(err)
	}
	label := float32(value)
	if math32.IsNaN(label) || math32.IsInf(label, 0) {
		return 0, errors.NotValidf("label %s", text)
	}
	return label, nil
}
