// Copyright 2020 gorse Project Authors
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

package base

import (
	"bufio"
	"strings"

	"github.com/juju/errors"
)

// NormalizeId replaces commas with spaces and trims surrounding whitespace, so
// that identifiers never collide with the delimiter downstream.
func NormalizeId(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, ",", " "))
}

// ValidateId validates user/product id. Id cannot be empty after normalization.
func ValidateId(text string) error {
	if NormalizeId(text) == "" {
		return errors.NotValidf("empty id")
	}
	return nil
}

// ReadLines parse fields of each line for csv file. Quoted fields may contain
// the separator, doubled quotes and line breaks. The handler receives the
// zero-based line number where the record starts and stops the scan by
// returning false.
func ReadLines(sc *bufio.Scanner, sep rune, handler func(int, []string) bool) error {
	lineCount := 0               // line number of current position
	recordStart := 0             // line number where current record starts
	fields := make([]string, 0)  // fields for current line
	builder := strings.Builder{} // string builder for current field
	quoted := false              // whether current position in quote
	for sc.Scan() {
		line := []rune(sc.Text())
		if quoted {
			builder.WriteString("\r\n")
		} else {
			recordStart = lineCount
		}
		for i := 0; i < len(line); i++ {
			if line[i] == sep && !quoted {
				// end of field
				fields = append(fields, builder.String())
				builder.Reset()
			} else if line[i] == '"' {
				if quoted {
					if i+1 >= len(line) || line[i+1] != '"' {
						// end of quoted
						quoted = false
					} else {
						i++
						builder.WriteRune('"')
					}
				} else {
					// start of quoted
					quoted = true
				}
			} else {
				builder.WriteRune(line[i])
			}
		}
		// end of line
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if !handler(recordStart, fields) {
				return nil
			}
			fields = []string{}
		}
		lineCount++
	}
	if err := sc.Err(); err != nil {
		return errors.Trace(err)
	}
	if quoted {
		// unterminated quote swallows the rest of the file
		fields = append(fields, builder.String())
		handler(recordStart, fields)
	}
	return nil
}
