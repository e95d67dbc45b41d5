// Package widget manages the lifecycle of the embedded third-party support
// chat overlay: loading the vendor scripts, keeping the overlay positioned,
// resetting everything when the logged-in identity changes, and reacting to
// the vendor's closed-conversation marker.
//
// The vendor's markup and client state are not ours; the manager only talks
// to a Host, the explicit stand-in for the embedding environment, and to the
// session's storage.
package widget

import "context"

// Position is a fixed screen position for the overlay nodes.
type Position struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// DefaultPosition is applied until the user drags the widget somewhere else.
var DefaultPosition = Position{Top: 560, Left: 24}

// Host is the embedding environment the manager drives. Implementations must
// be safe for concurrent use. DOM-side failures are the host's to absorb:
// only script injection reports an error, because the load flow depends on
// it.
type Host interface {
	// InjectScript loads one vendor script and returns once it has loaded
	// or failed. The manager never calls this concurrently for the same
	// load flight.
	InjectScript(ctx context.Context, url string) error
	// RemoveInjected removes every script and overlay node the host has
	// injected so far.
	RemoveInjected()
	// RemoveNodes removes the nodes matching a selector.
	RemoveNodes(selector string)
	// SetPosition pins the nodes matching a selector to a screen position.
	SetPosition(selector string, pos Position)
	// SetHidden toggles the style rule that hides the whole overlay.
	SetHidden(hidden bool)
	// ApplyClosedState disables the input and send control and swaps the
	// last message bubble for the closed-conversation text.
	ApplyClosedState()
	// Subscribe registers a callback invoked with the text content of
	// newly added nodes. The returned cancel detaches the subscription.
	Subscribe(fn func(addedText string)) (cancel func())
}
