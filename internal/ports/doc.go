// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// application needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [Transport]: The capability set of the remote transfer endpoint:
//     push subscription, bounded-timeout poll, range reads, event append,
//     and resumable chunk upload
//   - [Subscription]: A live push feed opened by Transport.Subscribe
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The stream connector and the upload manager depend only on these
// interfaces. Infrastructure adapters (internal/adapters) supply concrete
// implementations (HTTP/JSON, websocket, zerolog). Either data-plane style
// can be substituted without touching the consumers.
package ports
