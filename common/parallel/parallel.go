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

package parallel

import (
	"sync"
)

const chanSize = 1024

// For runs worker over job ids [0, nJobs) on nWorkers goroutines. Jobs run in
// order on the calling goroutine when nWorkers <= 1.
func For(nJobs, nWorkers int, worker func(int)) {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			worker(i)
		}
	} else {
		c := make(chan int, chanSize)
		// producer
		go func() {
			for i := 0; i < nJobs; i++ {
				c <- i
			}
			close(c)
		}()
		// consumer
		var wg sync.WaitGroup
		for j := 0; j < nWorkers; j++ {
			wg.Go(func() {
				for jobId := range c {
					worker(jobId)
				}
			})
		}
		wg.Wait()
	}
}

// Split a slice into n nearly equal slices.
func Split[T any](a []T, n int) [][]T {
	if n > len(a) {
		n = len(a)
	}
	if n <= 0 {
		return nil
	}
	size := len(a) / n
	rest := len(a) % n
	parts := make([][]T, 0, n)
	begin := 0
	for i := 0; i < n; i++ {
		end := begin + size
		if i < rest {
			end++
		}
		parts = append(parts, a[begin:end])
		begin = end
	}
	return parts
}
