package plugin

import (
	"context"
	"fmt"
	"sync"

	"asq-order-service/internal/domain"
)

// Hook names the extension points of the question pipeline.
type Hook string

const (
	HookDefine           Hook = "onDefine"
	HookIngest           Hook = "onIngest"
	HookConnectPresenter Hook = "onConnectPresenter"
	HookConnectViewer    Hook = "onConnectViewer"
)

// Handlers receive the hook argument and return the argument for the next handler.
type (
	DefineHandler  func(ctx context.Context, doc domain.Document) (domain.Document, error)
	IngestHandler  func(ctx context.Context, req domain.AnswerRequest) (domain.AnswerRequest, error)
	ConnectHandler func(ctx context.Context, info domain.ConnectInfo) (domain.ConnectInfo, error)
)

type named[H any] struct {
	name    string
	handler H
}

// Registry holds the handlers question-type modules registered, per hook, in
// registration order.
type Registry struct {
	mu               sync.RWMutex
	define           []named[DefineHandler]
	ingest           []named[IngestHandler]
	connectPresenter []named[ConnectHandler]
	connectViewer    []named[ConnectHandler]
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) OnDefine(name string, h DefineHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.define = append(r.define, named[DefineHandler]{name: name, handler: h})
}

func (r *Registry) OnIngest(name string, h IngestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingest = append(r.ingest, named[IngestHandler]{name: name, handler: h})
}

func (r *Registry) OnConnectPresenter(name string, h ConnectHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectPresenter = append(r.connectPresenter, named[ConnectHandler]{name: name, handler: h})
}

func (r *Registry) OnConnectViewer(name string, h ConnectHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectViewer = append(r.connectViewer, named[ConnectHandler]{name: name, handler: h})
}

// Names lists the handler names registered for a hook, in invocation order.
func (r *Registry) Names(hook Hook) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch hook {
	case HookDefine:
		return names(r.define)
	case HookIngest:
		return names(r.ingest)
	case HookConnectPresenter:
		return names(r.connectPresenter)
	case HookConnectViewer:
		return names(r.connectViewer)
	}
	return nil
}

func (r *Registry) RunDefine(ctx context.Context, doc domain.Document) (domain.Document, error) {
	r.mu.RLock()
	handlers := append([]named[DefineHandler](nil), r.define...)
	r.mu.RUnlock()
	return run(ctx, HookDefine, handlers, doc)
}

func (r *Registry) RunIngest(ctx context.Context, req domain.AnswerRequest) (domain.AnswerRequest, error) {
	r.mu.RLock()
	handlers := append([]named[IngestHandler](nil), r.ingest...)
	r.mu.RUnlock()
	return run(ctx, HookIngest, handlers, req)
}

func (r *Registry) RunConnectPresenter(ctx context.Context, info domain.ConnectInfo) (domain.ConnectInfo, error) {
	r.mu.RLock()
	handlers := append([]named[ConnectHandler](nil), r.connectPresenter...)
	r.mu.RUnlock()
	return run(ctx, HookConnectPresenter, handlers, info)
}

func (r *Registry) RunConnectViewer(ctx context.Context, info domain.ConnectInfo) (domain.ConnectInfo, error) {
	r.mu.RLock()
	handlers := append([]named[ConnectHandler](nil), r.connectViewer...)
	r.mu.RUnlock()
	return run(ctx, HookConnectViewer, handlers, info)
}

// run chains arg through handlers and stops at the first error.
func run[T any, H ~func(context.Context, T) (T, error)](ctx context.Context, hook Hook, handlers []named[H], arg T) (T, error) {
	for _, h := range handlers {
		next, err := h.handler(ctx, arg)
		if err != nil {
			return arg, fmt.Errorf("%s %s: %w", hook, h.name, err)
		}
		arg = next
	}
	return arg, nil
}

func names[H any](handlers []named[H]) []string {
	out := make([]string, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h.name)
	}
	return out
}
