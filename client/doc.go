// Package client is the collaborator-facing side of the position relay.
//
// A Client holds one TCP connection to a relay and keeps all network I/O
// on its own goroutines, so a render or simulation loop can call it once
// per frame without ever blocking:
//
//	c, err := client.Dial(ctx, "127.0.0.1:8080", client.Options{Retries: 3})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	for range ticker.C {
//		c.SendPosition(x, y)
//		for _, u := range c.PollRemoteUpdates() {
//			peers[u.ID] = u.Position
//		}
//		for _, id := range c.PollDepartures() {
//			delete(peers, id)
//		}
//	}
//
// SendPosition is fire-and-forget. When the outbound queue is full the
// update is dropped and SendPosition reports false; the next frame's update
// supersedes it anyway.
package client
