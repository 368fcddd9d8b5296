package connpool

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"
)

// connReq is one unit of work handed to a conn's driver goroutine. HTTP/1.1
// forbids pipelining multiple requests onto one connection at once, so the
// driver only ever has one connReq in flight; callers block on reply.
type connReq struct {
	req   *http.Request
	reply chan connResult
}

type connResult struct {
	resp *http.Response
	err  error
}

// conn owns one outbound TCP connection and the single goroutine ("driver")
// that performs all I/O on it: a dedicated goroutine reads at most one
// request at a time off reqCh for the lifetime of the connection.
type conn struct {
	addr     string
	peerAddr string
	nc       net.Conn
	reqCh    chan connReq

	// onDone is invoked exactly once, with this conn's peerAddr, when the
	// driver goroutine exits. It's a function of peerAddr rather than a
	// closure over the *conn itself so a caller can pass it in before the
	// conn value exists — the driver goroutine starts inside dial, before
	// dial has returned the *conn to its caller, so a closure capturing an
	// as-yet-unassigned outer variable would race.
	onDone func(peerAddr string)
}

// dial opens a new connection to addr and starts its driver goroutine.
func dial(addr string, connectTimeout time.Duration, onDone func(peerAddr string)) (*conn, error) {
	nc, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	c := &conn{
		addr:     addr,
		peerAddr: nc.LocalAddr().String(),
		nc:       nc,
		reqCh:    make(chan connReq),
		onDone:   onDone,
	}
	go c.drive()
	return c, nil
}

// drive is the connection's driver goroutine. It serves requests one at a
// time until the request channel is closed or an I/O error occurs, and in
// either case evicts itself from the pool before returning — the
// self-eviction invariant that keeps the pool from ever handing out a
// connection its driver has already abandoned.
func (c *conn) drive() {
	defer func() {
		c.nc.Close()
		if c.onDone != nil {
			c.onDone(c.peerAddr)
		}
	}()
	br := bufio.NewReader(c.nc)
	for work := range c.reqCh {
		resp, err := c.roundTrip(br, work.req)
		work.reply <- connResult{resp: resp, err: err}
		if err != nil {
			return
		}
	}
}

func (c *conn) roundTrip(br *bufio.Reader, req *http.Request) (*http.Response, error) {
	if err := req.Write(c.nc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return resp, nil
}

// do submits req to the driver and waits for its result, or for ctx to be
// done first.
func (c *conn) do(req *http.Request) (*http.Response, error) {
	reply := make(chan connResult, 1)
	select {
	case c.reqCh <- connReq{req: req, reply: reply}:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	select {
	case res := <-reply:
		return res.resp, res.err
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

// close shuts the request channel, which causes the driver to exit (and
// evict itself) once any in-flight work completes.
func (c *conn) close() {
	defer func() { recover() }() // tolerate a double close
	close(c.reqCh)
}
