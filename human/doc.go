// Package human provides the channels through which a waiting tool obtains a
// decision from a person.
//
// A Channel receives a Request listing proposed field values and blocks until
// the person approves them or supplies corrections. Three implementations
// exist:
//
//   - ConsoleChannel prompts on a terminal
//   - Queue parks requests in memory until Resolve is called
//   - Handler exposes a Queue over HTTP so another process can decide
//
// LineReader lets the console channel and the CLI share one input stream and
// stop waiting when their context ends.
package human
