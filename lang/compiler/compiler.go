// Much of the compiler package is adapted from the Starlark source code:
// https://github.com/google/starlark-go/tree/ee8ed142361c69d52fe8e9fb5e311d2a0a7c02de
//
// Copyright 2017 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compiler takes a parsed AST and lowers it to the register-machine
// bytecode the virtual machine executes. A ScopeUnit tracks the state of one
// compilation unit (a chunk, a method body, a block or a for-body); the
// ASTLowerer walks the AST and drives a chain of scope-local helpers
// (RegisterStack, LiteralPool, SymbolTable, JumpPatcher, LoopStack,
// PeepholeOptimizer) to produce a Procedure. Disassemble renders a compiled
// Procedure back to a human-readable instruction listing for debugging and
// golden-file testing.
package compiler
