// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package passes implements the frame's render passes on top of the
// rendergraph builder:
//
//	Opaque            Materials, Textures        -> Color, Depth
//	DepthDownsample   Depth                      -> DepthHalf
//	AmbientOcclusion  DepthHalf, Depth           -> AORaw, AOBlur, AO
//	Luminance         Color                      -> LumaDown, Luminance
//
// Every pass loads its programs through the shader cache from LazyInit and
// rebuilds its framebuffers only when one of their attachments changed.
// A missing program or a failed framebuffer degrades the pass for the
// frame; the next frame retries.
//
// Binding slots are shared by all shaders; see the Slot constants.
package passes
