// Package interfaces defines the narrow seams between the peerwire transport
// layer and its external collaborators.
//
// The transport layer deliberately consumes nothing beyond a reliable,
// ordered socket primitive. Everything else the surrounding system needs,
// payload protection, account persistence, and data-directory resolution, is
// expressed here as a small interface so hosts can supply their own
// implementations:
//
//   - [PayloadSecurer] is implemented by the crypto package's BoxSealer and
//     NoiseSession. Callers seal payloads before Send and open them in their
//     frame handler; the transport carries the sealed bytes opaquely.
//
//   - [AccountStore] keeps account and index persistence, with whatever
//     crash-safety protocol the host requires, outside this module.
//
//   - [DataDirResolver] abstracts process-level data-directory resolution.
//
// None of these interfaces is consumed by the transport package itself; they
// anchor the boundary so host code and the transports never grow direct
// dependencies on each other's internals.
package interfaces
