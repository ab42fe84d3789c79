// Copyright 2017-25 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package core holds small allocation-sensitive helpers shared by the
// decoder pipeline stages.
package core

import (
	"bytes"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

// PooledBuffer is a bytes.Buffer borrowed from a shared pool. Framing and
// inflate both read into one per blob so that repeated blobs don't each
// pay for a fresh allocation.
type PooledBuffer struct {
	buf *bytes.Buffer
}

// NewPooledBuffer borrows a buffer from the pool.
func NewPooledBuffer() *PooledBuffer {
	buf, _ := bufferPool.Get().(*bytes.Buffer)

	return &PooledBuffer{buf: buf}
}

// Close returns the buffer to the pool. Callers must not use the
// PooledBuffer after calling Close.
func (p *PooledBuffer) Close() {
	if p.buf == nil {
		return
	}

	p.buf.Reset()
	bufferPool.Put(p.buf)
	p.buf = nil
}

func (p *PooledBuffer) Reset() { p.buf.Reset() }

func (p *PooledBuffer) Len() int { return p.buf.Len() }

func (p *PooledBuffer) Cap() int { return p.buf.Cap() }

func (p *PooledBuffer) Grow(n int) { p.buf.Grow(n) }

func (p *PooledBuffer) Bytes() []byte { return p.buf.Bytes() }

func (p *PooledBuffer) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *PooledBuffer) ReadFrom(r interface {
	Read(p []byte) (n int, err error)
}) (int64, error) {
	return p.buf.ReadFrom(r)
}
