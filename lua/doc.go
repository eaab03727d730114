// Package lua runs a model written as a Lua script on gopher-lua.
//
// The script defines globals the bridge calls:
//
//	initialize()              optional; false or a non-zero number fails
//	version                   number, or function returning one
//	inputs, outputs           optional; count, layout table, or function
//	calculate(values, n)      returns a table of n output values
//	wrap_up()                 optional
//
// A function may return nil (or false) followed by a message to fail with
// that message. Lua errors raised with error() fail the call the same way.
//
// The script can log through xf.log(level, message), where level is a
// number (0 debug through 3 error) or a level name. print writes to the
// log at info level.
//
// A layout table is a list of variables:
//
//	inputs = {
//	  { name = "rate", kind = "Double" },
//	  { name = "grid", kind = "2-D Array", rows = 2, cols = 3 },
//	}
package lua
