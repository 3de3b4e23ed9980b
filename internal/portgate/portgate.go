package portgate

import (
	"net"
	"strconv"
	"time"
)

const pollInterval = 500 * time.Millisecond

// Available reports whether the TCP port can currently be bound on
// localhost. This is advisory: a positive result does not guarantee the
// port stays free until the caller's own bind.
func Available(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// WaitFree polls Available until the port frees up or the timeout
// elapses. Covers lingering occupancy from a just-killed instance and
// kernel TIME_WAIT teardown.
func WaitFree(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if Available(port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
