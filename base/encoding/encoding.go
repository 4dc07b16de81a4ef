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
	"encoding/gob"
	"io"

	"github.com/juju/errors"
)

// MaxLength bounds every length prefix read from a stream. A larger value means
// the stream is corrupted.
const MaxLength = 1 << 30

// chunkSize bounds the memory reserved for a length prefix before the data
// behind it has been read.
const chunkSize = 1 << 16

// WriteMatrix writes matrix to byte stream. Shape is not written.
func WriteMatrix(w io.Writer, m [][]float32) error {
	for i := range m {
		err := binary.Write(w, binary.LittleEndian, m[i])
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadMatrix reads matrix from byte stream into a preallocated matrix.
func ReadMatrix(r io.Reader, m [][]float32) error {
	for i := range m {
		err := binary.Read(r, binary.LittleEndian, m[i])
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// WriteVector writes a length-prefixed vector to byte stream.
func WriteVector(w io.Writer, v []float32) error {
	if err := writeLength(w, len(v)); err != nil {
		return err
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, v))
}

// ReadVector reads a length-prefixed vector from byte stream.
func ReadVector(r io.Reader) ([]float32, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	data, err := readFull(r, n*4)
	if err != nil {
		return nil, err
	}
	v := make([]float32, n)
	if err = binary.Read(bytes.NewReader(data), binary.LittleEndian, v); err != nil {
		return nil, errors.Trace(err)
	}
	return v, nil
}

// WriteStrings writes a length-prefixed list of strings to byte stream.
func WriteStrings(w io.Writer, s []string) error {
	if err := writeLength(w, len(s)); err != nil {
		return err
	}
	for _, e := range s {
		if err := WriteString(w, e); err != nil {
			return err
		}
	}
	return nil
}

// ReadStrings reads a length-prefixed list of strings from byte stream.
func ReadStrings(r io.Reader) ([]string, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	s := make([]string, 0, min(n, chunkSize))
	for i := 0; i < n; i++ {
		e, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		s = append(s, e)
	}
	return s, nil
}

// WriteString writes string to byte stream.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads string from byte stream.
func ReadString(r io.Reader) (string, error) {
	data, err := ReadBytes(r)
	return string(data), err
}

// WriteBytes writes bytes to byte stream.
func WriteBytes(w io.Writer, s []byte) error {
	if err := writeLength(w, len(s)); err != nil {
		return err
	}
	n, err := w.Write(s)
	if err != nil {
		return errors.Trace(err)
	} else if n != len(s) {
		return errors.New("fail to write bytes")
	}
	return nil
}

// ReadBytes reads bytes from byte stream.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	return readFull(r, n)
}

// readFull reads exactly n bytes. The buffer grows with the data actually
// read, so a corrupted length fails at the end of the stream without
// allocating n bytes first.
func readFull(r io.Reader, n int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, min(n, chunkSize)))
	if _, err := io.CopyN(buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// WriteGob writes object to byte stream.
func WriteGob(w io.Writer, v interface{}) error {
	buffer := bytes.NewBuffer(nil)
	encoder := gob.NewEncoder(buffer)
	if err := encoder.Encode(v); err != nil {
		return errors.Trace(err)
	}
	return WriteBytes(w, buffer.Bytes())
}

// ReadGob read object from byte stream.
func ReadGob(r io.Reader, v interface{}) error {
	data, err := ReadBytes(r)
	if err != nil {
		return err
	}
	decoder := gob.NewDecoder(bytes.NewReader(data))
	return errors.Trace(decoder.Decode(v))
}

func writeLength(w io.Writer, n int) error {
	return errors.Trace(binary.Write(w, binary.LittleEndian, int32(n)))
}

func readLength(r io.Reader) (int, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, errors.Trace(err)
	}
	if n < 0 || n > MaxLength {
		return 0, errors.NotValidf("length %d", n)
	}
	return int(n), nil
}
