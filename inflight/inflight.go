// Package inflight tracks requests that have been written to a connection
// but not yet answered, per destination. The coordinator client uses it to
// bound pipelining and to find destinations whose oldest request timed out.
package inflight

import (
	"sort"

	"github.com/pkg/errors"
)

// Request is one outstanding request on a connection. SendTimeMs is when the
// write started, in unix milliseconds.
type Request struct {
	Destination   string
	CorrelationId int32
	SendTimeMs    int64

	sendDone bool
}

// MarkSendDone records that the request left the socket completely. Until
// then no further request may be pipelined behind it.
func (r *Request) MarkSendDone() {
	r.sendDone = true
}

func (r *Request) SendDone() bool {
	return r.sendDone
}

// Registry holds the in-flight requests of every destination. It is not
// safe for concurrent use, the owning client loop is single threaded.
type Registry struct {
	maxPerDestination int
	requests          map[string][]*Request
}

// NewRegistry caps each destination at maxPerDestination outstanding
// requests, 0 or less means a single request at a time.
func NewRegistry(maxPerDestination int) *Registry {
	if maxPerDestination <= 0 {
		maxPerDestination = 1
	}
	return &Registry{
		maxPerDestination: maxPerDestination,
		requests:          make(map[string][]*Request),
	}
}

// Add registers a request as the most recently sent one for its destination.
func (r *Registry) Add(request *Request) {
	r.requests[request.Destination] = append(r.requests[request.Destination], request)
}

func (r *Registry) queue(destination string) ([]*Request, error) {
	queue := r.requests[destination]
	if len(queue) == 0 {
		return nil, errors.Errorf("no in-flight requests for destination %s", destination)
	}
	return queue, nil
}

// CompleteNext removes and returns the oldest request for the destination,
// the one a well-behaved peer answers first.
func (r *Registry) CompleteNext(destination string) (*Request, error) {
	queue, err := r.queue(destination)
	if err != nil {
		return nil, err
	}
	request := queue[0]
	r.requests[destination] = queue[1:]
	return request, nil
}

// LastSent returns the most recently sent request without removing it.
func (r *Registry) LastSent(destination string) (*Request, error) {
	queue, err := r.queue(destination)
	if err != nil {
		return nil, err
	}
	return queue[len(queue)-1], nil
}

// CompleteLastSent removes and returns the most recently sent request. Used
// when a send fails and the request never actually went out.
func (r *Registry) CompleteLastSent(destination string) (*Request, error) {
	queue, err := r.queue(destination)
	if err != nil {
		return nil, err
	}
	request := queue[len(queue)-1]
	r.requests[destination] = queue[:len(queue)-1]
	return request, nil
}

// CanSendMore reports whether another request may go to the destination: the
// latest request must have left the socket and the pipeline must have room.
func (r *Registry) CanSendMore(destination string) bool {
	queue := r.requests[destination]
	if len(queue) == 0 {
		return true
	}
	return queue[len(queue)-1].SendDone() && len(queue) < r.maxPerDestination
}

// Count returns the number of in-flight requests for one destination.
func (r *Registry) Count(destination string) int {
	return len(r.requests[destination])
}

// CountAll returns the number of in-flight requests across destinations.
func (r *Registry) CountAll() int {
	total := 0
	for _, queue := range r.requests {
		total += len(queue)
	}
	return total
}

// ClearAll removes and returns every in-flight request for the destination,
// oldest first. Called when its connection drops.
func (r *Registry) ClearAll(destination string) []*Request {
	queue := r.requests[destination]
	delete(r.requests, destination)
	return queue
}

// TimedOutDestinations returns the destinations whose oldest in-flight
// request has been waiting longer than requestTimeoutMs at time nowMs.
func (r *Registry) TimedOutDestinations(nowMs int64, requestTimeoutMs int) []string {
	var destinations []string
	for destination, queue := range r.requests {
		if len(queue) == 0 {
			continue
		}
		if nowMs-queue[0].SendTimeMs > int64(requestTimeoutMs) {
			destinations = append(destinations, destination)
		}
	}
	sort.Strings(destinations)
	return destinations
}
