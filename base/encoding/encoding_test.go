// Copyright 2022 gorse Project Authors
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

package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
	"runtime"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestWriteMatrix(t *testing.T) {
	a := [][]float32{{1, 2}, {3, 4}}
	buf := bytes.NewBuffer(nil)
	err := WriteMatrix(buf, a)
	assert.NoError(t, err)
	b := [][]float32{{0, 0}, {0, 0}}
	err = ReadMatrix(buf, b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteVector(t *testing.T) {
	a := []float32{1, 2, 3}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteVector(buf, a))
	b, err := ReadVector(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteStrings(t *testing.T) {
	a := []string{"a", "", "b c"}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteStrings(buf, a))
	b, err := ReadStrings(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteString(t *testing.T) {
	a := "abc"
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, a)
	assert.NoError(t, err)
	var b string
	b, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadCorrupted(t *testing.T) {
	// negative length
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int32(-1)))
	_, err := ReadString(buf)
	assert.True(t, errors.Is(err, errors.NotValid))
	// truncated payload
	buf = bytes.NewBuffer(nil)
	assert.NoError(t, WriteString(buf, "hello"))
	_, err = ReadString(bytes.NewReader(buf.Bytes()[:6]))
	assert.Error(t, err)
}

func TestWriteGob(t *testing.T) {
	a := map[string]int{"a": 1}
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, a)
	assert.NoError(t, err)
	var b map[string]int
	err = ReadGob(buf, &b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadCorruptedLength(t *testing.T) {
	for _, read := range []func(io.Reader) error{
		func(r io.Reader) error { _, err := ReadVector(r); return err },
		func(r io.Reader) error { _, err := ReadBytes(r); return err },
		func(r io.Reader) error { _, err := ReadStrings(r); return err },
	} {
		buf := bytes.NewBuffer(nil)
		assert.NoError(t, binary.Write(buf, binary.LittleEndian, int32(MaxLength)))
		buf.Write(make([]byte, 16))
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		err := read(buf)
		runtime.ReadMemStats(&after)
		assert.Error(t, err)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(4<<20))
	}
}
