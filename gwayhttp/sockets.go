package gwayhttp

import (
	"net"
	"os"
	"strings"
)

// inheritedListener looks for a file descriptor passed down by a parent
// process via the LISTEN_FDS/LISTEN_FDNAMES convention (the systemd
// socket-activation protocol), enabling zero-downtime restarts. Names are
// matched by local address (e.g. "0.0.0.0:443"); if none matches, ok is
// false and the caller should bind a fresh socket.
func inheritedListener(addr string) (net.Listener, bool) {
	fd, ok := inheritedFD(addr)
	if !ok {
		return nil, false
	}
	f := os.NewFile(fd, "inherited-"+addr)
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, false
	}
	return ln, true
}

func inheritedPacketConn(addr string) (net.PacketConn, bool) {
	fd, ok := inheritedFD(addr)
	if !ok {
		return nil, false
	}
	f := os.NewFile(fd, "inherited-"+addr)
	pc, err := net.FilePacketConn(f)
	f.Close()
	if err != nil {
		return nil, false
	}
	return pc, true
}

// inheritedFD parses LISTEN_FDNAMES (a colon-separated list of names,
// each expected to be the listen address it was bound to) and returns the
// matching descriptor number, starting at fd 3 per the systemd
// convention: fd 0-2 are stdio, and the first passed socket is fd 3.
func inheritedFD(addr string) (uintptr, bool) {
	names := os.Getenv("LISTEN_FDNAMES")
	if names == "" {
		return 0, false
	}
	for i, name := range strings.Split(names, ":") {
		if name == addr {
			return uintptr(3 + i), true
		}
	}
	return 0, false
}

// listenTCP returns a TCP listener for addr, reusing an inherited socket
// if the environment names one, otherwise binding fresh.
func listenTCP(addr string) (net.Listener, error) {
	if ln, ok := inheritedListener(addr); ok {
		return ln, nil
	}
	return net.Listen("tcp", addr)
}

// listenUDP returns a UDP packet conn for addr, reusing an inherited
// socket if the environment names one, otherwise binding fresh.
func listenUDP(addr string) (net.PacketConn, error) {
	if pc, ok := inheritedPacketConn(addr); ok {
		return pc, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}
