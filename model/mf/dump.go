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

package mf

import (
	"bufio"
	"bytes"
	"io"

	"github.com/gorse-io/product-recommender/base"
	"github.com/gorse-io/product-recommender/base/encoding"
	"github.com/gorse-io/product-recommender/base/log"
	"github.com/gorse-io/product-recommender/dataset"
	"github.com/gorse-io/product-recommender/model"
	"github.com/gorse-io/product-recommender/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

var magic = []byte("PRMF\x00\x01")

// Marshal model into byte stream.
func (svd *SVD) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, svd.Params); err != nil {
		return errors.Trace(err)
	}
	// write indices
	if err := encoding.WriteStrings(w, svd.UserIndex.Names()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteStrings(w, svd.ProductIndex.Names()); err != nil {
		return errors.Trace(err)
	}
	// write biases
	if err := encoding.WriteVector(w, []float32{svd.GlobalBias}); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, svd.UserBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, svd.ProductBias); err != nil {
		return errors.Trace(err)
	}
	// write latent factors
	if err := encoding.WriteMatrix(w, svd.UserFactor); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteMatrix(w, svd.ProductFactor)
}

// Unmarshal model from byte stream.
func (svd *SVD) Unmarshal(r io.Reader) error {
	// read params
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	svd.SetParams(params)
	// read indices
	userNames, err := encoding.ReadStrings(r)
	if err != nil {
		return errors.Trace(err)
	}
	productNames, err := encoding.ReadStrings(r)
	if err != nil {
		return errors.Trace(err)
	}
	svd.UserIndex = dataset.NewFreqDictFromNames(userNames)
	svd.ProductIndex = dataset.NewFreqDictFromNames(productNames)
	if int(svd.UserIndex.Count()) != len(userNames) || int(svd.ProductIndex.Count()) != len(productNames) {
		return errors.NotValidf("duplicate identifiers")
	}
	// read biases
	globalBias, err := encoding.ReadVector(r)
	if err != nil {
		return errors.Trace(err)
	}
	if len(globalBias) != 1 {
		return errors.NotValidf("global bias of length %d", len(globalBias))
	}
	svd.GlobalBias = globalBias[0]
	if svd.UserBias, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	if svd.ProductBias, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	if len(svd.UserBias) != len(userNames) || len(svd.ProductBias) != len(productNames) {
		return errors.NotValidf("bias size mismatch")
	}
	if svd.nFactors <= 0 || (len(userNames)+len(productNames))*svd.nFactors > encoding.MaxLength {
		return errors.NotValidf("%d factors", svd.nFactors)
	}
	// read latent factors
	svd.UserFactor = base.NewMatrix32(len(userNames), svd.nFactors)
	if err = encoding.ReadMatrix(r, svd.UserFactor); err != nil {
		return errors.Trace(err)
	}
	svd.ProductFactor = base.NewMatrix32(len(productNames), svd.nFactors)
	if err = encoding.ReadMatrix(r, svd.ProductFactor); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Save a model and its schema as a single blob.
func Save(store blob.Store, name string, svd *SVD, schema model.Schema) error {
	if svd.Invalid() {
		return errors.NotValidf("unfitted model")
	}
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	bw := bufio.NewWriter(w)
	err = writeArtifact(bw, svd, schema)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		_ = w.CloseWithError(err)
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	if err = <-done; err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save model", zap.String("name", name), zap.Int("version", schema.Version))
	return nil
}

func writeArtifact(w io.Writer, svd *SVD, schema model.Schema) error {
	if _, err := w.Write(magic); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, schema); err != nil {
		return errors.Trace(err)
	}
	return svd.Marshal(w)
}

// Load a model and its schema. Missing blobs fail with errors.NotFound and
// corrupted blobs fail with errors.NotValid.
func Load(store blob.Store, name string) (*SVD, model.Schema, error) {
	r, err := store.Open(name)
	if err != nil {
		return nil, model.Schema{}, errors.Trace(err)
	}
	defer r.Close()
	br := bufio.NewReader(r)
	header := make([]byte, len(magic))
	if _, err = io.ReadFull(br, header); err != nil || !bytes.Equal(header, magic) {
		return nil, model.Schema{}, errors.NotValidf("model artifact %s", name)
	}
	var schema model.Schema
	if err = encoding.ReadGob(br, &schema); err != nil {
		return nil, model.Schema{}, errors.NewNotValid(err, "model schema")
	}
	if schema.Version != model.SchemaVersion {
		return nil, model.Schema{}, errors.NotValidf("model schema version %d", schema.Version)
	}
	svd := new(SVD)
	if err = svd.Unmarshal(br); err != nil {
		return nil, model.Schema{}, errors.NewNotValid(err, "model weights")
	}
	log.Logger().Info("load model", zap.String("name", name),
		zap.Int32("n_users", svd.UserIndex.Count()),
		zap.Int32("n_products", svd.ProductIndex.Count()))
	return svd, schema, nil
}
