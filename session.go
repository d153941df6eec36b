package imagestudio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownMode is returned when setting a mode that is not create or edit.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrUnknownFunction is returned when setting a sub-function outside its enumeration.
	ErrUnknownFunction = errors.New("unknown function")
)

// Snapshot is a copy of a Session's fields. Its attachments are copies too,
// so it never changes after it is taken.
type Snapshot struct {
	Prompt         string           `json:"prompt"`
	Mode           Mode             `json:"mode"`
	CreateFunction CreateFunction   `json:"createFunction"`
	EditFunction   EditFunction     `json:"editFunction"`
	Image1         *ImageAttachment `json:"image1,omitempty"`
	Image2         *ImageAttachment `json:"image2,omitempty"`
	GeneratedImage string           `json:"generatedImage,omitempty"`
	Loading        bool             `json:"isLoading"`
	Error          string           `json:"error,omitempty"`
}

// Outcome derives the tri-state submission result from the snapshot.
func (s Snapshot) Outcome() Outcome {
	switch {
	case s.Loading:
		return Outcome{Kind: OutcomePending}
	case s.Error != "":
		return Outcome{Kind: OutcomeFailure, Message: s.Error}
	case s.GeneratedImage != "":
		return Outcome{Kind: OutcomeSuccess, ImageRef: s.GeneratedImage}
	default:
		return Outcome{Kind: OutcomeEmpty}
	}
}

// Request builds the generation payload, picking the sub-function that is
// active for the snapshot's mode.
func (s Snapshot) Request() GenerationRequest {
	req := GenerationRequest{
		Prompt: s.Prompt,
		Mode:   s.Mode,
		Image1: s.Image1,
		Image2: s.Image2,
	}
	if s.Mode == ModeEdit {
		req.Function = string(s.EditFunction)
	} else {
		req.Function = string(s.CreateFunction)
	}
	return req
}

// Session holds the interaction state of one studio user: the inputs being
// edited and the result of the latest submission. All mutations go through
// its setters.
type Session struct {
	mu sync.Mutex

	prompt         string
	mode           Mode
	createFunction CreateFunction
	editFunction   EditFunction
	image1         *ImageAttachment
	image2         *ImageAttachment

	generatedImage string
	loading        bool
	errMsg         string

	listeners map[int]func(Snapshot)
	nextID    int

	// pending holds snapshots not yet delivered, in mutation order. The
	// goroutine that finds dispatching false drains it.
	pending     []Snapshot
	dispatching bool
}

// NewSession returns a session with default values.
func NewSession() *Session {
	return &Session{
		mode:           ModeCreate,
		createFunction: CreateFree,
		editFunction:   EditAddRemove,
		listeners:      make(map[int]func(Snapshot)),
	}
}

// Watch registers fn to be called with a snapshot after every mutation.
// Calls are serialized and arrive in mutation order; a mutation made from
// inside fn is delivered after fn returns. The returned func removes the
// listener.
func (s *Session) Watch(fn func(Snapshot)) (unwatch func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// update applies fn under the lock and queues the resulting snapshot for
// listeners. If no other goroutine is delivering, this one drains the queue.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, s.snapshotLocked())
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	s.mu.Unlock()

	s.dispatch()
}

func (s *Session) dispatch() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		snap := s.pending[0]
		s.pending[0] = Snapshot{}
		s.pending = s.pending[1:]
		listeners := make([]func(Snapshot), 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
		s.mu.Unlock()

		for _, l := range listeners {
			l(snap)
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Prompt:         s.prompt,
		Mode:           s.mode,
		CreateFunction: s.createFunction,
		EditFunction:   s.editFunction,
		Image1:         s.image1.clone(),
		Image2:         s.image2.clone(),
		GeneratedImage: s.generatedImage,
		Loading:        s.loading,
		Error:          s.errMsg,
	}
}

// Prompt returns the current prompt text.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// SetPrompt replaces the prompt text.
func (s *Session) SetPrompt(prompt string) {
	s.update(func() { s.prompt = prompt })
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode replaces the mode and clears both image slots, whether or not the
// mode actually changed.
func (s *Session) SetMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	s.update(func() {
		s.mode = mode
		s.image1 = nil
		s.image2 = nil
	})
	return nil
}

// CreateFunction returns the selected create function.
func (s *Session) CreateFunction() CreateFunction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFunction
}

// SetCreateFunction selects the create function. The edit function is untouched.
func (s *Session) SetCreateFunction(fn CreateFunction) error {
	if !fn.Valid() {
		return fmt.Errorf("%w: create function %q", ErrUnknownFunction, fn)
	}
	s.update(func() { s.createFunction = fn })
	return nil
}

// EditFunction returns the selected edit function.
func (s *Session) EditFunction() EditFunction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editFunction
}

// SetEditFunction selects the edit function. The create function is untouched.
func (s *Session) SetEditFunction(fn EditFunction) error {
	if !fn.Valid() {
		return fmt.Errorf("%w: edit function %q", ErrUnknownFunction, fn)
	}
	s.update(func() { s.editFunction = fn })
	return nil
}

// Image1 returns the first image slot, or nil.
func (s *Session) Image1() *ImageAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image1
}

// SetImage1 fills the first slot. Passing nil clears it.
func (s *Session) SetImage1(img *ImageAttachment) {
	s.update(func() { s.image1 = img })
}

// Image2 returns the second image slot, or nil.
func (s *Session) Image2() *ImageAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image2
}

// SetImage2 fills the second slot. Passing nil clears it.
func (s *Session) SetImage2(img *ImageAttachment) {
	s.update(func() { s.image2 = img })
}

// GeneratedImage returns the reference of the last generated image.
func (s *Session) GeneratedImage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatedImage
}

// SetGeneratedImage stores an image reference.
func (s *Session) SetGeneratedImage(ref string) {
	s.update(func() { s.generatedImage = ref })
}

// Loading reports whether a submission is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SetLoading sets the loading flag directly. Submitter uses acquireLoading instead.
func (s *Session) SetLoading(loading bool) {
	s.update(func() { s.loading = loading })
}

// Error returns the user-facing error message, or "".
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// SetError stores a user-facing error message. An empty string clears it.
func (s *Session) SetError(msg string) {
	s.update(func() { s.errMsg = msg })
}

// Outcome returns the tri-state result of the latest submission.
func (s *Session) Outcome() Outcome {
	return s.Snapshot().Outcome()
}

// acquireLoading sets the loading flag and clears the previous result in one
// step. It returns false, changing nothing, when a submission is already in
// flight. The returned release func clears the flag and is safe to call once.
func (s *Session) acquireLoading() (release func(), ok bool) {
	acquired := false
	s.update(func() {
		if s.loading {
			return
		}
		s.loading = true
		s.errMsg = ""
		s.generatedImage = ""
		acquired = true
	})
	if !acquired {
		return func() {}, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.update(func() { s.loading = false })
		})
	}, true
}
