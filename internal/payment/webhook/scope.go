package webhook

// Scope caches the authenticated event of a single inbound request so that
// several handlers can consult it without re-parsing the body.
// A Scope must not outlive or be shared beyond its request.
type Scope struct {
	body []byte

	done  bool
	event *Event
	err   error
	reads int
}

func NewScope(body []byte) *Scope {
	return &Scope{body: body}
}

// Event authenticates and parses the body on first use and returns the
// cached outcome, success or failure, on every later call.
func (s *Scope) Event(secret string) (*Event, error) {
	if !s.done {
		s.event, s.err = AuthenticateBody(s.body, secret)
		s.done = true
		s.reads++
	}
	return s.event, s.err
}

// Body returns the raw payload the scope was created with.
func (s *Scope) Body() []byte {
	return s.body
}

// Parses reports how many times the body was actually parsed.
func (s *Scope) Parses() int {
	return s.reads
}
