// Package audit relays credauth audit events to sinks off the request path.
//
// The engine decides which events exist; this package only buffers them and
// delivers them to a [Sink] ([ChannelSink], [JSONWriterSink], [SlogSink],
// [MultiSink] or [NoOpSink]). A [Dispatcher] owns one goroutine that drains
// its buffer until Close. With DropIfFull an overflowing event is counted in
// [Dispatcher.Dropped] instead of blocking the caller.
package audit
