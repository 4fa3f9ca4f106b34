package collab

import (
	"sync"
)

type received struct {
	event   string
	payload any
}

// recorder is an Outbound that keeps every delivered frame.
type recorder struct {
	mu     sync.Mutex
	frames []received
	err    error
}

func (r *recorder) Deliver(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, received{event: event, payload: payload})
	return nil
}

func (r *recorder) failWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *recorder) list() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]received, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *recorder) events(name string) []received {
	var out []received
	for _, f := range r.list() {
		if f.event == name {
			out = append(out, f)
		}
	}
	return out
}

type mirrorCapture struct {
	mu        sync.Mutex
	edits     []EditRequest
	lifecycle []received
}

func (m *mirrorCapture) MirrorEdit(documentID, content string) {
	m.mu.Lock()
	m.edits = append(m.edits, EditRequest{DocumentID: documentID, Content: content})
	m.mu.Unlock()
}

func (m *mirrorCapture) MirrorLifecycle(event string, payload any) {
	m.mu.Lock()
	m.lifecycle = append(m.lifecycle, received{event: event, payload: payload})
	m.mu.Unlock()
}
