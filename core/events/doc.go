// Package events defines the typed notifications the orchestrator emits while
// a session runs. Front ends subscribe to these for their activity log; the
// pipeline itself never depends on anyone observing them.
package events
