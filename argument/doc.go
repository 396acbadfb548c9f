// Package argument records chains of method calls on placeholder values and
// replays them later against real objects.
//
// A Recorder hands out placeholders: ordinary values of the requested type
// that the registry can map back to the sequence of invocations that
// produced them. Calls are recorded explicitly through Call, never executed:
//
//	rec := argument.NewRecorder()
//	p := argument.On[*Person](rec)
//	friend := argument.MustCall[*Person](rec, p, "GetBestFriend")
//	age := argument.MustCall[int](rec, friend, "Age")
//
//	seq, _ := rec.Resolve(age)
//	seq.PropertyPath()      // "bestFriend.age"
//	seq.Evaluate(somePerson) // somePerson.GetBestFriend().Age()
//
// Evaluation replays the chain reflectively. A nil intermediate result ends
// the evaluation with nil; panics and non-nil errors are reported as
// *InvocationError. Sequences whose arguments are all scalars are counted
// and, once hot, replaced by specialized evaluators built by the registry's
// JITCompiler. GenerateSource writes such evaluators out as Go code.
//
// Placeholders are built by strategies: rotation for bool and registered
// enums, registered factories, opaque values and stubs for interfaces,
// fresh allocations for pointers, slices, maps and chans, and sentinel
// values for numbers and strings.
package argument
