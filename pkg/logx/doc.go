// Package logx is a thin structured-logging layer over zerolog.
//
// Components receive a Logger value; the Service behind it can be
// reconfigured at runtime (console/file sinks, event-bus forwarding)
// without invalidating loggers already handed out.
package logx
