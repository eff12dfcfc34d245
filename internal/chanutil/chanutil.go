// Package chanutil holds small channel combinators shared by the
// server's shutdown path.
package chanutil

// Or merges several done channels into one that closes as soon as any
// input channel closes. cmd/cachify-server uses it to combine the OS
// signal channel with the listener's Done channel into one shutdown
// signal.
func Or(channels ...<-chan struct{}) <-chan struct{} {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}

	orDone := make(chan struct{})
	go func() {
		defer close(orDone)

		switch len(channels) {
		case 2:
			select {
			case <-channels[0]:
			case <-channels[1]:
			}
		default:
			select {
			case <-channels[0]:
			case <-channels[1]:
			case <-Or(append(channels[2:], orDone)...):
			}
		}
	}()

	return orDone
}
