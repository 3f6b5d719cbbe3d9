package simpl

// Package simpl provides:
//
// - Reflection-driven marshalling of object graphs (shared references and cycles included) to XML, JSON and a binary TLV framing
// - Class and field descriptors built once per Go type from `simpl` struct tags and cached in a Registry
// - Translation scopes that map wire tags to classes and back polymorphic fields
// - A stable error model via Issues (element path, code, message); recoverable problems are absorbed and reported as diagnostics
//
// Design policy:
// - Keep only public APIs in the root package; put the element tree and format codecs under internal/.
// - Place the CLI under cmd/simpl.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//  scope, err := simpl.NewScope("library", nil, Library{}, Book{})
//  data, err := simpl.Marshal(lib, scope, simpl.FormatXML)
//  lib2, err := simpl.UnmarshalAs[*Library](data, scope)
//
