package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// recorder keeps the addresses the listener asks the node to connect to.
type recorder struct {
	addr string

	mu    sync.Mutex
	dials []string
}

func (r *recorder) Addr() string               { return r.addr }
func (r *recorder) IsPeer(address string) bool { return false }

func (r *recorder) ConnectToAddress(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dials = append(r.dials, address)
	return nil
}

func Test_ReceivedLoopbackHost(t *testing.T) {
	t.Log("Given the need to reach a node that advertises a loopback host.")
	{
		node := recorder{addr: "127.0.0.1:5000"}

		d := Discovery{
			node:       &node,
			netTimeout: time.Second,
			limiter:    rate.NewLimiter(rate.Inf, 1),
			evHandler:  func(v string, args ...any) { t.Logf(v, args...) },
			shut:       make(chan struct{}),
		}

		from := &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: 5001}
		d.received([]byte(`{"type":"DISCOVERY","host":"127.0.0.1","port":5000}`), from)
		d.received([]byte(`{"type":"DISCOVERY","host":"0.0.0.0","port":5002}`), from)
		d.wg.Wait()

		node.mu.Lock()
		dials := node.dials
		node.mu.Unlock()

		exp := map[string]bool{"192.168.1.20:5000": true, "192.168.1.20:5002": true}
		if len(dials) != len(exp) {
			t.Fatalf("\t%s\tShould dial both announced nodes : %v", failed, dials)
		}
		for _, address := range dials {
			if !exp[address] {
				t.Fatalf("\t%s\tShould dial the sender's address instead of loopback : %v", failed, dials)
			}
		}
		t.Logf("\t%s\tShould dial the sender's address instead of loopback.", success)
	}
}
