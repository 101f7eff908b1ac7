// Package hardware inspects the host and produces the immutable device
// profile for a run.
//
// Detection shells out to nvidia-smi through an injectable runner. Any
// failure to query the GPU yields a CPU profile; profiling never returns an
// error. The Profiler memoizes its first result so repeated calls within a
// run agree.
package hardware
