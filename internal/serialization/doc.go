// Package serialization saves and loads cortex state dictionaries.
//
// A StateDict maps string keys to scalars, lists, shapes, nested dictionaries and
// raw tensor contents (TensorData). Two encodings are supported and selected by
// file extension in Save and Load:
//
//	YAML (.yaml, .yml):
//	  <key>:
//	    type: <value type name>
//	    value: <value>
//
//	Binary (any other extension):
//	  [4 bytes: Magic "CTXS"]
//	  [varint: Version]
//	  [varint: entry count]
//	  per entry, in key order:
//	    [length-prefixed key] [varint: type tag] [length-prefixed payload]
//	  [32 bytes: SHA-256 of everything before it]
//
// Tensor payloads hold the shape, a dtype tag and the raw little-endian elements.
//
// Example usage:
//
//	state := serialization.StateDict{
//	    "columns":     2048,
//	    "connections": serialization.TensorData{Shape: tensor.Shape{2048, 32}, DType: tensor.Int32, Data: raw},
//	}
//	if err := serialization.Save(state, "layer.ctx"); err != nil {
//	    log.Fatal(err)
//	}
//	loaded, err := serialization.Load("layer.ctx")
package serialization
