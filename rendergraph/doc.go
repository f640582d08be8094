// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package rendergraph resolves per-frame render passes into GPU work.
//
// # Overview
//
// Every frame the driver hands the [Builder] an ordered list of passes. Each
// pass declares in Setup the named resources it writes (with a descriptor)
// and the names it reads. The builder then:
//
//  1. validates the declarations (unknown reads, conflicting writes, writes
//     after reads),
//  2. resolves every name to backing storage, reusing last frame's storage
//     when the descriptor is unchanged, recreating it when the descriptor
//     changed, and recycling released storage by descriptor,
//  3. runs LazyInit and Execute for each pass, grouping passes into dependency
//     waves so that independent passes record commands in parallel, and
//  4. submits the recorded command buffers in declaration order.
//
// # Handles
//
// Setup returns [ResourceHandle] values rather than resources. A handle
// carries the table slot, the slot generation, the build serial and the
// pass that obtained it, so using it from another pass, from a later frame,
// or after its slot was reclaimed fails instead of touching stale storage.
//
// # Errors
//
// Wiring mistakes (reading an unwritten name, conflicting descriptors,
// out-of-scope handles) are configuration errors: they carry a cockroachdb
// assertion-failure marker and abort Build. Backend failures inside a pass
// (framebuffer creation, unready programs) degrade that pass for the frame
// and are only logged.
//
// # Aliasing
//
// Two passes may declare the same write with identical descriptors; both
// resolve to one allocation. Declaring the same name with a different
// descriptor in one build is [ErrConflictingWrite].
package rendergraph
