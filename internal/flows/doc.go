// Package flows contains the orchestration behind every Engine operation.
//
// Each Run function takes a dependency struct built by the Engine and returns
// results without touching anything outside those dependencies. Store-level
// errors are mapped to the host's sentinel errors here, so the Engine stays
// a thin delegating layer.
//
// Flows never import the root package (to avoid import cycles) and hold no
// state between calls. Side effects that must not fail the caller (audit,
// notifications, throttle clears, refresh revocation after a reset) are
// logged and swallowed inside the flow.
package flows
