package report

// SessionType distinguishes sessions created by an actual upload from
// sessions carried forward from a previous commit's report.
type SessionType string

// Session types.
const (
	SessionUploaded       SessionType = "uploaded"
	SessionCarriedForward SessionType = "carriedforward"
)

// Session records one upload's identity and metadata inside a Report. The
// session id is the key under Report.Sessions and is referenced by every
// LineSession and Datapoint the upload contributed.
type Session struct {
	ID    int         `json:"id"`
	Type  SessionType `json:"type"`
	Flags []string    `json:"flags,omitempty"`

	// Upload metadata, kept verbatim for downstream consumers.
	Name     string            `json:"name,omitempty"`
	Archive  string            `json:"archive,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Build    string            `json:"build,omitempty"`
	Job      string            `json:"job,omitempty"`
	URL      string            `json:"url,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Time     int64             `json:"time,omitempty"`

	// Totals of this session's own contribution, filled when the upload
	// transaction finalizes.
	Totals *Totals `json:"totals,omitempty"`
}

// HasFlag reports whether the session carries the given flag.
func (s *Session) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}

	return false
}

// HasAnyFlag reports whether the session carries at least one of the flags.
func (s *Session) HasAnyFlag(flags ...string) bool {
	for _, flag := range flags {
		if s.HasFlag(flag) {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Flags = append([]string(nil), s.Flags...)

	if s.Env != nil {
		clone.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			clone.Env[k] = v
		}
	}

	if s.Totals != nil {
		totals := *s.Totals
		clone.Totals = &totals
	}

	return &clone
}
