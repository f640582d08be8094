// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package wgpu implements gpucore.Device on the gogpu/wgpu HAL.
//
// The device can be opened standalone (Open, which selects a Vulkan
// adapter) or wrap a device and queue owned by a host application
// (FromProvider). Either way it keeps a single timeline fence: every
// submission signals the next value, and a gpucore.Fence is simply the
// timeline value of the last submission it covers.
//
// # Programs and pipelines
//
// A program is a pair of shader modules. Pipelines are created lazily at
// the first draw or dispatch and cached by program, target formats, raster
// state and the kinds of resources bound, so one program serves every
// framebuffer it is used with. All bindings live in bind group 0 at the
// slot number passed to BindTexture/BindBuffer; SetConstants is exposed as
// a uniform buffer at gpucore.ConstantsSlot.
//
// # Staging buffers
//
// HAL buffers cannot be persistently mapped, so MapBuffer hands out a
// CPU shadow of the requested range and UnmapBuffer writes it through the
// queue. Queue writes are ordered before later submissions, which is all
// the streaming layer relies on.
package wgpu
