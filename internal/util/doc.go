// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small file and text helpers shared by yolokit packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - CopyFile: copy a file, creating the destination directory
//   - FileExists, DirExists: existence checks that treat errors as absent
//   - FreeDiskSpace: bytes available on the filesystem holding a path
//
// Text:
//   - PadRight, Truncate: display-width aware helpers for table output
//     (class names such as "bogenschützenturm" contain multi-byte runes)
//
// # Usage
//
//	// Write detection output atomically so a reader never sees half a file
//	err := util.AtomicWriteFile(path, data, 0644)
package util
