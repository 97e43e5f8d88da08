// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"sync"
	"sync/atomic"
)

// throttle runs at most Max functions at a time and remembers the
// first error any of them returned.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			t.Max = 1
		}
		t.ch = make(chan bool, t.Max)
	})
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

// Go waits for a free slot and runs fn in a new goroutine. Once an
// error has been reported, further functions are skipped.
func (t *throttle) Go(fn func() error) {
	t.Acquire()
	go func() {
		defer t.Release()
		if t.Err() != nil {
			return
		}
		t.Report(fn())
	}()
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

// WaitGroup is a sync.WaitGroup that also keeps the first error passed
// to Error.
type WaitGroup struct {
	sync.WaitGroup
	err     error
	errOnce sync.Once
}

func (wg *WaitGroup) Error(err error) {
	if err != nil {
		wg.errOnce.Do(func() { wg.err = err })
	}
}

func (wg *WaitGroup) Wait() error {
	wg.WaitGroup.Wait()
	return wg.err
}
