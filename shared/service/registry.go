// Package service reconstructs the teacher's service-lifecycle convention:
// a small Service interface every long-running component implements, and a
// Registry that owns them in registration order and starts/stops
// them together. The defining file itself is not present anywhere in the
// retrieval pack (only call sites survive: `var _ = shared.Service(&Service{})`
// assertions across beacon-chain/p2p, beacon-chain/node, etc.), so this is
// rebuilt from that usage evidence.
package service

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "service")

// Service is implemented by every long-running component the node
// composition root owns: subnet juggler, friend relay, supervisor, metrics
// server.
type Service interface {
	Start()
	Stop() error
	Status() error
}

// Registry holds services in registration order and exposes bulk lifecycle
// operations plus type-based lookup for wiring one service's dependency on
// another, mirroring beacon-chain/node.go's FetchService pattern.
type Registry struct {
	mu       sync.Mutex
	services map[reflect.Type]Service
	order    []reflect.Type
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{services: make(map[reflect.Type]Service)}
}

// Register adds s to the registry, keyed by its concrete type. Registering
// the same type twice is an error: a node should compose each service once.
func (r *Registry) Register(s Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := reflect.TypeOf(s)
	if _, exists := r.services[kind]; exists {
		return fmt.Errorf("service already registered: %s", kind)
	}
	r.services[kind] = s
	r.order = append(r.order, kind)
	return nil
}

// Fetch populates dest (a pointer to a Service-typed variable) with the
// registered service of that type, or returns an error if none is registered.
func (r *Registry) Fetch(dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	value := reflect.ValueOf(dest)
	if value.Kind() != reflect.Ptr {
		return fmt.Errorf("input must be of pointer type, got %T", dest)
	}
	element := value.Elem()
	kind := element.Type()
	svc, exists := r.services[kind]
	if !exists {
		return fmt.Errorf("unknown service type %s", kind)
	}
	element.Set(reflect.ValueOf(svc))
	return nil
}

// StartAll starts every registered service in registration order.
func (r *Registry) StartAll() {
	r.mu.Lock()
	order := append([]reflect.Type(nil), r.order...)
	r.mu.Unlock()

	for _, kind := range order {
		log.WithField("service", kind).Debug("Starting service")
		r.services[kind].Start()
	}
}

// StopAll stops every registered service in reverse registration order.
func (r *Registry) StopAll() {
	r.mu.Lock()
	order := append([]reflect.Type(nil), r.order...)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		kind := order[i]
		log.WithField("service", kind).Debug("Stopping service")
		if err := r.services[kind].Stop(); err != nil {
			log.WithField("service", kind).WithError(err).Error("Failed to stop service")
		}
	}
}

// Statuses returns every registered service's current Status(), keyed by
// type, for the metrics /healthz handler.
func (r *Registry) Statuses() map[reflect.Type]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make(map[reflect.Type]error, len(r.services))
	for kind, svc := range r.services {
		statuses[kind] = svc.Status()
	}
	return statuses
}
