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
	"os"
	"path"
	"strings"

	"github.com/juju/errors"
)

type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

// Open a file for reading. It returns an io.Reader that can be used to read the file's content.
func (p *POSIX) Open(name string) (io.ReadCloser, error) {
	fullPath := path.Join(p.dir, name)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(err, fullPath)
		}
		return nil, errors.Trace(err)
	}
	return file, nil
}

// Create a new file for writing. Data goes to a temporary file which replaces
// the target when the writer is closed, so readers never observe a partial file.
func (p *POSIX) Create(name string) (Writer, chan error, error) {
	fullPath := path.Join(p.dir, name)
	if err := os.MkdirAll(path.Dir(fullPath), os.ModePerm); err != nil {
		return nil, nil, errors.Trace(err)
	}
	file, err := os.CreateTemp(path.Dir(fullPath), ".upload-*")
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	done := make(chan error, 1)
	return &posixWriter{File: file, target: fullPath, done: done}, done, nil
}

type posixWriter struct {
	*os.File
	target string
	done   chan error
}

func (w *posixWriter) Close() error {
	err := w.File.Close()
	if err == nil {
		err = os.Rename(w.File.Name(), w.target)
	}
	if err != nil {
		_ = os.Remove(w.File.Name())
		err = errors.Trace(err)
	}
	w.done <- err
	close(w.done)
	return err
}

// CloseWithError drops the temporary file and keeps the target untouched.
func (w *posixWriter) CloseWithError(cause error) error {
	_ = w.File.Close()
	err := errors.Trace(os.Remove(w.File.Name()))
	w.done <- errors.Annotatef(cause, "discard %s", w.target)
	close(w.done)
	return err
}

func (p *POSIX) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasPrefix(entry.Name(), ".upload-") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (p *POSIX) Remove(name string) error {
	return errors.Trace(os.Remove(path.Join(p.dir, name)))
}
