package msnp

// Status is a presence state as carried on the wire.
type Status string

const (
	StatusOnline  Status = "NLN" // online
	StatusBusy    Status = "BSY" // busy
	StatusIdle    Status = "IDL" // idle
	StatusBRB     Status = "BRB" // be right back
	StatusAway    Status = "AWY" // away
	StatusPhone   Status = "PHN" // on the phone
	StatusLunch   Status = "LUN" // out to lunch
	StatusHidden  Status = "HDN" // appears offline to others
	StatusOffline Status = "FLN" // offline; never set explicitly while connected
)

// settableStatuses are the states a client may request via CHG.
// FLN is implicit and cannot be set on a live connection.
var settableStatuses = map[Status]bool{
	StatusOnline: true,
	StatusBusy:   true,
	StatusIdle:   true,
	StatusBRB:    true,
	StatusAway:   true,
	StatusPhone:  true,
	StatusLunch:  true,
	StatusHidden: true,
}

// Settable reports whether s may be requested by a client.
func (s Status) Settable() bool {
	return settableStatuses[s]
}

// Visible reports whether peers should see presence lines about a user in
// state s. Hidden users appear offline and suppress outbound notifications.
func (s Status) Visible() bool {
	return s.Settable() && s != StatusHidden
}
