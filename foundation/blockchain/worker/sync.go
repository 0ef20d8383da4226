package worker

import "context"

// Sync connects to the configured peers, adopting the longest chain
// among them.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, address := range w.knownPeers {
		ctx, cancel := context.WithTimeout(context.Background(), 2*w.netTimeout)
		err := w.node.ConnectToAddress(ctx, address)
		cancel()

		if err != nil {
			w.evHandler("worker: sync: peer[%s]: ERROR: %s", address, err)
		}
	}
}
