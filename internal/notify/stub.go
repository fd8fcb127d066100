//go:build !linux

package notify

// stubNotifier drops every notification. The D-Bus notification service
// only exists on Linux desktops.
type stubNotifier struct{}

// New returns a notifier that drops everything.
func New() (Notifier, error) {
	return stubNotifier{}, nil
}

func (stubNotifier) Notify(Notification) (uint32, error) { return 0, nil }

func (stubNotifier) Close(uint32) error { return nil }
