// Package dnsresolver provides a non-blocking DNS query transport.
//
// The package is the DNS collaborator of the rbl blacklist engine: it puts
// queries on the wire, reads their replies in the background and lets a
// single caller wait for whichever replies arrive first. It does not retry,
// cache, or interpret answers.
//
// # Basic Usage
//
// Send a query and read its reply once it is ready:
//
//	resolver := dnsresolver.New(5 * time.Second)
//	q, err := resolver.Send(ctx, "2.0.0.127.zen.spamhaus.org", dns.TypeA)
//	if err != nil {
//		return err // could not dial or write
//	}
//	<-q.Done()
//	msg, err := resolver.Read(q)
//
// Configure resolver with custom options:
//
//	resolver := dnsresolver.New(
//		5 * time.Second,
//		dnsresolver.WithResolvers([]string{
//			"1.1.1.1:53",
//			"9.9.9.9",   // port 53 is implied
//		}),
//	)
//
// # Readiness
//
// A Poller tracks many outstanding queries and reports those whose replies
// are ready:
//
//	p := dnsresolver.NewPoller()
//	defer p.Close()
//	p.Add(q1)
//	p.Add(q2)
//	for p.Len() > 0 {
//		ready := p.Wait(ctx, time.Second)
//		if len(ready) == 0 {
//			break // nothing arrived in time
//		}
//		for _, q := range ready {
//			p.Remove(q)
//			msg, err := resolver.Read(q)
//			// ...
//		}
//	}
//
// Closing the Poller closes every query it still tracks.
//
// # Read Deadlines
//
// Send's timeout bounds dialing only. A reply is awaited until the query is
// closed, its deadline is moved with Query.SetReadDeadline, or, when the
// client was built WithReadTimeout, that timeout elapses after Send.
//
// # Error Handling
//
//   - ErrEmptyName: Send was given an empty name
//   - ErrNotReady: Read was called before the reply arrived
//   - ErrEmptyMsg: the query finished without a message
//
// Dial and write failures are returned by Send wrapped with the resolver
// address; read failures (expired deadlines, closed handles) are returned by Read.
package dnsresolver
