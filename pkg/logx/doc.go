// Package logx configures rxalert's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp, short caller) while file and JSON sinks stay
// structured. The Service swaps sinks and levels at runtime on config reload.
package logx
