// Package dispatch routes named commands to their handlers, with mock
// interception in front.
//
// Every inbound command passes through the same gate: the mock registry is
// consulted first, and a registered override answers the call without the real
// handler ever running. For overrides the precedence is explicit:
//
//   - implementation set → the serialized script is evaluated in the remote
//     context with the inbound payload bound as its argument
//   - return_value set → handed back verbatim
//   - neither → JSON null
//
// Handlers are registered once at startup; the handler table is read-only
// afterwards. The mock registry is the only shared mutable state and carries
// its own locking.
package dispatch
