// Package delivery notices items that appear on the credential service
// between two polls, such as credentials newly shared with an account.
//
// A [Poller] calls a fetch function with adaptive backoff. Every item is
// keyed, and its handler runs once per key for as long as the key keeps
// appearing in the fetched lists:
//
//	p := delivery.NewPoller(fetch, func(s Share) string { return s.ID })
//	err := p.Run(ctx, func(ctx context.Context, s Share) error {
//	    // Handle a new item
//	    return nil
//	})
//
// # Backoff
//
// The wait between polls starts at [PollingInitialInterval] and grows by
// [PollingBackoffMultiplier] up to [PollingMaxBackoff] while nothing new
// arrives. New items reset it. Up to [PollingJitterFactor] of the wait is
// added as jitter so that clients started together drift apart.
package delivery
