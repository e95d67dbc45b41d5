package widget

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CommandOp enumerates the DOM operations a QueueHost forwards to the page.
type CommandOp string

const (
	OpInjectScript     CommandOp = "inject_script"
	OpRemoveInjected   CommandOp = "remove_injected"
	OpRemoveNodes      CommandOp = "remove_nodes"
	OpSetPosition      CommandOp = "set_position"
	OpSetHidden        CommandOp = "set_hidden"
	OpApplyClosedState CommandOp = "apply_closed_state"
)

// Command is one DOM instruction for the page to execute.
type Command struct {
	Op       CommandOp `json:"op"`
	URL      string    `json:"url,omitempty"`
	Selector string    `json:"selector,omitempty"`
	Position *Position `json:"position,omitempty"`
	Hidden   *bool     `json:"hidden,omitempty"`
}

// QueueHost implements Host for the gateway: DOM operations are queued as
// commands the page polls and executes, and DOM-change reports from the page
// fan out to subscribers. Script injection verifies the vendor URL is
// reachable before queueing, so the manager's timeout and retry policy acts
// on a real network signal.
type QueueHost struct {
	client *http.Client

	mu     sync.Mutex
	queue  []Command
	subs   map[int]func(string)
	nextID int
}

// NewQueueHost creates a host with its own HTTP client for script probing.
func NewQueueHost() *QueueHost {
	return &QueueHost{
		client: &http.Client{Timeout: 30 * time.Second},
		subs:   make(map[int]func(string)),
	}
}

// InjectScript implements Host.InjectScript.
func (h *QueueHost) InjectScript(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build script request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch vendor script: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vendor script %s returned status %d", url, resp.StatusCode)
	}

	h.enqueue(Command{Op: OpInjectScript, URL: url})
	return nil
}

// RemoveInjected implements Host.RemoveInjected.
func (h *QueueHost) RemoveInjected() {
	h.enqueue(Command{Op: OpRemoveInjected})
}

// RemoveNodes implements Host.RemoveNodes.
func (h *QueueHost) RemoveNodes(selector string) {
	h.enqueue(Command{Op: OpRemoveNodes, Selector: selector})
}

// SetPosition implements Host.SetPosition.
func (h *QueueHost) SetPosition(selector string, pos Position) {
	p := pos
	h.enqueue(Command{Op: OpSetPosition, Selector: selector, Position: &p})
}

// SetHidden implements Host.SetHidden.
func (h *QueueHost) SetHidden(hidden bool) {
	v := hidden
	h.enqueue(Command{Op: OpSetHidden, Hidden: &v})
}

// ApplyClosedState implements Host.ApplyClosedState.
func (h *QueueHost) ApplyClosedState() {
	h.enqueue(Command{Op: OpApplyClosedState})
}

// Subscribe implements Host.Subscribe.
func (h *QueueHost) Subscribe(fn func(addedText string)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// NotifyDOMChanged fans a DOM-change report from the page out to the
// subscribers.
func (h *QueueHost) NotifyDOMChanged(addedText string) {
	h.mu.Lock()
	fns := make([]func(string), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(addedText)
	}
}

// Drain returns and clears the pending commands, oldest first.
func (h *QueueHost) Drain() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.queue
	h.queue = nil
	return out
}

func (h *QueueHost) enqueue(cmd Command) {
	h.mu.Lock()
	h.queue = append(h.queue, cmd)
	h.mu.Unlock()
}
