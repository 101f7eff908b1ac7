// Package inference launches the external inference stages.
//
// Stage tools are black boxes with a directory contract: they read frame and
// mask directories, write images to an output directory, and report success
// through their exit status. Tool is the capability the stage runner depends
// on; CommandTool implements it by rendering argument templates and running a
// subprocess whose output is streamed line by line to a callback.
//
// Argument templates may reference {frames}, {masks}, {stage1}, {output},
// {device}, and {weights}.
package inference
