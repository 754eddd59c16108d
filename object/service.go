// Package object implements the FileObject write/read/commit/delete
// pipelines of spec.md §4.4-§4.6: the engine surface front-ends (HTTP,
// FUSE -- both out of this module's scope) are built against.
//
// Backpressure is rendered the idiomatic Go way rather than as a literal
// port of spec.md's event-emitter language (spec.md §9 explicitly allows
// this: "implementations may use native async iterators, channels, or
// callback-driven streams; the contract is the events and ordering
// above"). Source implements io.ReadCloser: a synchronous, pull-based
// Read is itself a backpressure mechanism -- the caller only asks for more
// bytes when it is ready for them, which is exactly what spec.md's
// pause/resume contract describes. Sink exposes Write/End plus an OnDrain
// callback for the one case a literal boolean-return backpressure signal
// is still useful: a producer that wants to keep pushing bytes without
// blocking its own goroutine.
package object

import (
	"strubs/ioshutdown"
	"strubs/store"
	"strubs/volume"
)

// Service is the process-wide FileObject service singleton (spec.md §9),
// holding the collaborators every Sink/Source/Commit needs. Grounded on
// the teacher's targetrunner (ais/tgtobj.go's `t *targetrunner` field
// threaded through putObjInfo/getObjInfo), generalized from "the local
// target node" to "this process."
type Service struct {
	Volumes *volume.Registry
	Store   *store.Store
	Token   *ioshutdown.Token
}

// NewService wires a Service from its collaborators. Dependency injection
// here is a testing seam (spec.md §9), not a runtime requirement -- a real
// process builds one Service at startup and shares it.
func NewService(volumes *volume.Registry, st *store.Store, token *ioshutdown.Token) *Service {
	if token == nil {
		token = ioshutdown.Global
	}
	return &Service{Volumes: volumes, Store: st, Token: token}
}

func (s *Service) checkAborted() error {
	return s.Token.ThrowIfAborted()
}
