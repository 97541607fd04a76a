// Package chatship provides an embeddable chat transport client.
//
// A [Client] keeps an ordered, gap-free view of a remote chat event log and
// drives resumable chunked file uploads against the same endpoint. It can be
// used from the standalone CLI or embedded as a library in other Go programs.
//
// # Basic Usage
//
//	cfg := chatship.Config{
//	    UserID: "alice",
//	}
//
//	client, err := chatship.New(transport, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	unsubscribe := client.Subscribe(func(ev chatship.Event) {
//	    fmt.Println(ev.Offset, string(ev.Payload))
//	})
//	defer unsubscribe()
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	client.Disconnect()
//
// # Event Handling
//
// Connection-level notifications (connect offset, terminal errors) are
// delivered through [EventHandler] via [WithEventHandler]. Handlers run
// synchronously on the connection goroutine and must return quickly; they
// must not call Connect or Disconnect.
package chatship
