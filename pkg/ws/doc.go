// Package ws provides the WebSocket transport for the room synchronization gateway.
//
// # Features
//
//   - Connection registration through the gateway before the handshake completes
//   - Envelope-based messages with request/response correlation
//   - Message routing with middleware and pre-compiled handler chains
//   - Dual send queues with non-blocking enqueue
//   - Slow consumer eviction so no member observes a sequence gap
//   - Origin whitelist for security
//   - Invalid message rate limiting
//   - Graceful shutdown with timeout control
//
// # Basic Usage
//
//	registry := room.NewRegistry(10000)
//	rooms := room.NewManager(registry)
//	gw := gateway.New(registry, rooms, gateway.WithLogger(log))
//
//	wsManager, err := ws.NewManager(gw,
//	    ws.WithHeartbeatInterval(30*time.Second),
//	    ws.WithCheckOriginWhitelist([]string{"https://example.com"}),
//	)
//	if err != nil {
//	    return err
//	}
//
//	r.GET("/ws", func(c *syncboard.Context) {
//	    _ = wsManager.HandleUpgrade(c.Writer, c.Request)
//	})
//
// # Protocol
//
// The first server frame is always the handshake:
//
//	{"type":"notify","event":"connected","data":{"conn_id":"..."},"timestamp":1700000000}
//
// Client requests:
//
//	{"type":"request","event":"join","request_id":"1","data":{"room":"alpha"}}
//	{"type":"request","event":"leave","request_id":"2"}
//	{"type":"request","event":"update","request_id":"3","data":{"payload":{"x":1}}}
//
// Server notifications are "update.delivered", "member.joined" and "member.left".
// Requests carrying a request_id are acknowledged with a "response" frame; failures are
// reported with an "error" frame carrying kind, code and message.
//
// # Concurrency Safety
//
// Notify only enqueues; network writes happen in each client's write pump. When a
// client's queue is full it is marked closed immediately and torn down asynchronously,
// because Notify may be called inside a room's delivery section.
package ws
