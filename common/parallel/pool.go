// Copyright 2026 gorse Project Authors
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
	"context"

	"github.com/juju/errors"
)

// Pool is a fixed-size pool of reusable objects. An object is checked out by
// exactly one caller at a time.
type Pool[T any] struct {
	items chan T
}

// NewPool creates a pool of size objects built by factory.
func NewPool[T any](size int, factory func(int) T) *Pool[T] {
	if size < 1 {
		size = 1
	}
	p := &Pool[T]{items: make(chan T, size)}
	for i := 0; i < size; i++ {
		p.items <- factory(i)
	}
	return p
}

// Get checks out an object. It blocks until an object is returned to the pool
// or ctx is done.
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	select {
	case item := <-p.items:
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, errors.Trace(ctx.Err())
	}
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(item T) {
	p.items <- item
}

// Do checks out an object, runs fn with it and returns the object afterwards,
// also when fn panics.
func (p *Pool[T]) Do(ctx context.Context, fn func(T) error) error {
	item, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(item)
	return fn(item)
}

// Size returns the capacity of the pool.
func (p *Pool[T]) Size() int {
	return cap(p.items)
}

// Available returns the number of objects not checked out.
func (p *Pool[T]) Available() int {
	return len(p.items)
}
