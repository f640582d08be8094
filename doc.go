// Copyright 2026 The occdemo Authors
// SPDX-License-Identifier: MIT

// Package occdemo drives per-frame rendering: a render graph of passes over
// scene data that is streamed to the GPU through multi-buffered staging.
//
// # Quick Start
//
//	b, err := backend.Open("auto")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	r, err := occdemo.New(b.Device(), occdemo.WithConfig(cfg))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close(context.Background())
//
//	frame := passes.NewFrame()
//	for {
//		err := r.Frame(ctx, occdemo.View{Width: 1280, Height: 720}, frame.Passes()...)
//		...
//	}
//
// # Architecture
//
// The module is organized into:
//   - gpucore: the graphics-context capability every backend implements
//   - backend, backend/null, backend/wgpu: backend registry and devices
//   - shader: program cache keyed by name and variant
//   - rendergraph: resource declarations, handle table, pass execution
//   - streaming: ring-slot streaming of record arrays to device buffers
//   - scene: materials and texture table on top of streaming
//   - passes: the opaque, depth downsample, ambient occlusion and luminance passes
//
// # Frame Order
//
// Renderer.Frame writes the view uniforms, flushes the scene store, builds
// the graph and then protects the streamed buffers with a fence. A frame
// blocks only when the ring slot it needs is still read by an older frame.
//
// # Logging
//
// Nothing is logged until SetLogger is called. See SetLogger for the levels.
package occdemo
