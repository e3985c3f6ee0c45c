package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	grpcapi "rdpso/simulator/internal/grpc"
	"rdpso/simulator/internal/networking"
)

// SubscribeSnapshots lets the gRPC service observe per-iteration snapshots via fan-out channels.
func (e *Engine) SubscribeSnapshots(ctx context.Context) (<-chan networking.Snapshot, func(), error) {
	if e == nil {
		return nil, func() {}, errors.New("engine is nil")
	}
	//1.- Allocate a buffered channel so slow consumers drop gracefully.
	ch := make(chan networking.Snapshot, subscriberBuffer)
	id := atomic.AddUint64(&e.nextSubID, 1)

	//2.- Register the subscriber under lock; a closed engine refuses new ones.
	e.subMu.Lock()
	if e.subsClosed {
		e.subMu.Unlock()
		return nil, func() {}, errors.New("engine closed")
	}
	e.subscribers[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		//3.- Ensure unsubscribe and close only happens once.
		once.Do(func() {
			e.subMu.Lock()
			if sub, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(sub)
			}
			e.subMu.Unlock()
		})
	}

	if ctx != nil {
		//4.- Propagate context cancellation to the subscription lifecycle.
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, nil
}

// Subscribers reports the number of live snapshot subscriptions.
func (e *Engine) Subscribers() int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subscribers)
}

var _ grpcapi.Backend = (*Engine)(nil)
