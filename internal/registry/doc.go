// Package registry provides the central "glue" between adapter manifests and
// the Go code that speaks each backend protocol.
//
// Manifests are HCL files declaring named adapters: the protocol they use, the
// request path, the samplers they accept and the numeric bounds of their
// payload fields. Protocols are Go factories registered by modules at startup.
// After loading, ValidateRegistry checks that every manifest is backed by a
// registered protocol and that its bounds are coherent.
package registry
