package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/alan-christopher/qkd/bb84"
	"github.com/alan-christopher/qkd/bb84/photon"
	"github.com/alan-christopher/qkd/bb84/wire"
)

// openChannel returns the measurement channel c asks for, and a function
// releasing it.
func openChannel(c config, src *bb84.Source) (photon.Channel, func() error, error) {
	if c.Channel == "local" {
		sim := photon.NewSimulated(src.Fork())
		sim.Shots = c.Shots
		return sim, func() error { return nil }, nil
	}

	secret, err := os.Open(c.Secret)
	if err != nil {
		return nil, nil, err
	}
	conn, err := net.Dial("tcp", c.Addr)
	if err != nil {
		secret.Close()
		return nil, nil, fmt.Errorf("dialing channeld: %w", err)
	}
	f, err := wire.NewFramer(conn, bufio.NewReader(secret), wire.FramerOpts{MaxFrameBytes: c.MaxFrame})
	if err != nil {
		conn.Close()
		secret.Close()
		return nil, nil, err
	}
	return photon.NewRemote(f), closeAll(conn, secret), nil
}

func closeAll(cs ...io.Closer) func() error {
	return func() error {
		var first error
		for _, c := range cs {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
