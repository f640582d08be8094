// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package streaming keeps a device-resident array of fixed-size records in
// step with CPU-side edits while several frames are in flight.
//
// A Manager owns N ring slots. Each slot pairs a host-visible staging buffer
// with a device buffer and carries the byte range still pending for it and
// the fence of the last frame that used it:
//
//	         Flush                copy + fence          fence signaled
//	Free ──────────────▶ Writing ──────────────▶ Submitted ──────────────▶ Free
//
// Edits are recorded as dirty record indices. At flush time they collapse
// into a single covering range [min, max), which every slot must eventually
// copy; widely scattered edits therefore degrade to a near-full copy.
//
// A slot is never written while the fence of its previous use is
// unsignaled. Flush is the only operation that blocks, and only when the
// GPU is more than N frames behind.
//
// Consumers outside the frame graph read the committed device buffer with
// Current and must not retain it across frames.
package streaming
