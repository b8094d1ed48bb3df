// Package peerwire is a peer-to-peer messaging transport layer: framed,
// bidirectional byte exchange between logical peers over a hand-implemented
// WebSocket protocol subset or raw length-prefixed TCP.
//
// The root package is a thin facade over the transport package, selecting a
// backend from options:
//
//	tr, err := peerwire.New(peerwire.Options{
//	    Backend: peerwire.BackendTCP,
//	    TCP: transport.TCPOptions{
//	        LocalID:    "A",
//	        ListenHost: "127.0.0.1",
//	        ListenPort: 9000,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tr.OnFrame(func(from transport.PeerID, payload []byte) {
//	    fmt.Printf("%s: %d bytes\n", from, len(payload))
//	})
//	if err := tr.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer tr.Stop()
//
// See the transport package for the contract, the backends, and the event
// model; the crypto package for caller-side payload protection; and the
// metrics package for optional Prometheus instrumentation.
package peerwire
