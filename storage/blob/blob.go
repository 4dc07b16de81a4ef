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

package blob

import (
	"io"

	"github.com/gorse-io/product-recommender/config"
	"github.com/juju/errors"
)

// Writer is a blob being written. Close commits the blob. CloseWithError
// discards everything written so far and leaves any previous blob in place.
type Writer interface {
	io.WriteCloser
	CloseWithError(err error) error
}

// Store keeps named blobs, such as model artifacts.
type Store interface {
	// Open a blob for reading. Missing blobs fail with errors.NotFound.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The returned channel receives the result of
	// the upload once the writer is closed.
	Create(name string) (Writer, chan error, error)
	// List names of all blobs.
	List() ([]string, error)
	// Remove a blob.
	Remove(name string) error
}

// NewStore creates the blob store selected by the configuration.
func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case config.StorePOSIX, "":
		return NewPOSIX(cfg.Dir), nil
	case config.StoreS3:
		return NewS3(cfg.S3)
	case config.StoreGCS:
		return NewGCS(cfg.GCS)
	case config.StoreAzure:
		return NewAzureBlob(cfg.Azure, cfg.Azure.Container, cfg.Azure.Prefix)
	}
	return nil, errors.NotSupportedf("blob store %s", cfg.Type)
}

// pipeUpload streams everything written to the returned writer into upload.
// Closing the writer with an error fails the upload.
func pipeUpload(upload func(r io.Reader) error) (Writer, chan error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := upload(pr)
		// unblock the writer if upload stopped early
		_ = pr.CloseWithError(err)
		done <- err
		close(done)
	}()
	return pw, done
}
