// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package router

import "sync"

// stripeCount is the default number of stripes for serializing
// per-series state-machine transitions.
const stripeCount = 1024

type stripedLocks struct {
	stripes [stripeCount]sync.Mutex
}

func stripeFor(seriesID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(seriesID); i++ {
		h ^= uint32(seriesID[i])
		h *= 16777619
	}
	return h % stripeCount
}

// lockFor returns the mutex guarding seriesID's state transition.
func (l *stripedLocks) lockFor(seriesID string) *sync.Mutex {
	return &l.stripes[stripeFor(seriesID)]
}
