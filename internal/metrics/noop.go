package metrics

import "time"

// Noop discards everything.
type Noop struct{}

var _ Recorder = (*Noop)(nil)

func NewNoop() Recorder {
	return &Noop{}
}

func (n *Noop) RecordTokenIssued(string, string)                     {}
func (n *Noop) RecordTokenValidation(string, string, time.Duration)  {}
func (n *Noop) RecordTokenRevoked(string)                            {}
func (n *Noop) RecordLogin(bool, time.Duration)                      {}
func (n *Noop) RecordSignup(bool)                                    {}
func (n *Noop) RecordTokenRefresh(bool)                              {}
func (n *Noop) RecordResetRequested(bool)                            {}
func (n *Noop) RecordResetRedeemed(string)                           {}
func (n *Noop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (n *Noop) RecordHTTPInFlight(int)                               {}
